package bookimport

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
)

// encryptionXML renders META-INF/encryption.xml with one entry per
// algorithm, each covering its own file.
func encryptionXML(keyInfo string, algorithms ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<encryption xmlns="urn:oasis:names:tc:opendocument:xmlns:container"
            xmlns:enc="http://www.w3.org/2001/04/xmlenc#">`)
	for i, algo := range algorithms {
		b.WriteString(`
  <enc:EncryptedData>
    <enc:EncryptionMethod Algorithm="` + algo + `"/>`)
		if keyInfo != "" {
			b.WriteString(`
    <KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#">` + keyInfo + `</KeyInfo>`)
		}
		b.WriteString(`
    <enc:CipherData><enc:CipherReference URI="OEBPS/f` + string(rune('0'+i)) + `.bin"/></enc:CipherData>
  </enc:EncryptedData>`)
	}
	b.WriteString("\n</encryption>")
	return b.String()
}

const (
	idpfObfuscation  = "http://www.idpf.org/2008/embedding"
	adobeObfuscation = "http://ns.adobe.com/pdf/enc#RC"
	aes128           = "http://www.w3.org/2001/04/xmlenc#aes128-cbc"
)

func TestCheckDRM(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		wantFont bool
		wantErr  error
		wantMsg  string
	}{
		{
			name:  "no descriptors",
			files: map[string]string{"OEBPS/content.opf": "<package/>"},
		},
		{
			name:     "font obfuscation of both kinds",
			files:    map[string]string{encryptionPath: encryptionXML("", idpfObfuscation, adobeObfuscation)},
			wantFont: true,
		},
		{
			name:  "empty descriptor",
			files: map[string]string{encryptionPath: encryptionXML("")},
		},
		{
			name:     "descriptor with byte order mark",
			files:    map[string]string{encryptionPath: "\xEF\xBB\xBF" + encryptionXML("", idpfObfuscation)},
			wantFont: true,
		},
		{
			name:     "descriptor path in other case",
			files:    map[string]string{"meta-inf/ENCRYPTION.XML": encryptionXML("", idpfObfuscation)},
			wantFont: true,
		},
		{
			name: "obfuscation under a wrapper directory",
			files: map[string]string{
				"Book/" + containerPath:  testContainerXML,
				"Book/" + encryptionPath: encryptionXML("", adobeObfuscation),
			},
			wantFont: true,
		},
		{
			name: "fairplay under a wrapper directory",
			files: map[string]string{
				"Book/" + containerPath: testContainerXML,
				"Book/" + fairPlayPath:  "<sinf/>",
			},
			wantErr: ErrDRMProtected,
			wantMsg: "Apple FairPlay",
		},
		{
			name:    "obfuscated fonts next to encrypted text",
			files:   map[string]string{encryptionPath: encryptionXML("", idpfObfuscation, aes128)},
			wantErr: ErrDRMProtected,
			wantMsg: `OEBPS/f1.bin encrypted with "` + aes128 + `"`,
		},
		{
			name: "adept named in key info",
			files: map[string]string{
				encryptionPath: encryptionXML(`<resource xmlns="http://ns.adobe.com/adept">urn:uuid:1</resource>`, aes128),
			},
			wantErr: ErrDRMProtected,
			wantMsg: "Adobe ADEPT",
		},
		{
			name: "lcp named in key info",
			files: map[string]string{
				encryptionPath: encryptionXML(`<RetrievalMethod URI="license.lcpl#/encryption/content_key" Type="http://readium.org/2014/01/lcp#EncryptedContentKey"/>`, aes128),
			},
			wantErr: ErrDRMProtected,
			wantMsg: "Readium LCP",
		},
		{
			name:    "unreadable descriptor",
			files:   map[string]string{encryptionPath: "<encryption><EncryptedData>"},
			wantErr: ErrDRMProtected,
			wantMsg: "unreadable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			font, err := openTestPackage(t, tt.files).CheckDRM()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CheckDRM() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("CheckDRM() error = %q, want it to mention %q", err, tt.wantMsg)
			}
			if font != tt.wantFont {
				t.Errorf("CheckDRM() fontObfuscation = %v, want %v", font, tt.wantFont)
			}
		})
	}
}

func TestDRMSchemeOf(t *testing.T) {
	tests := []struct {
		fields []string
		want   string
	}{
		{[]string{aes128, ""}, ""},
		{[]string{"http://ns.adobe.com/adept/x", ""}, "Adobe ADEPT"},
		{[]string{aes128, "see http://readium.org/2014/01/lcp#key"}, "Readium LCP"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := drmSchemeOf(tt.fields...); got != tt.want {
			t.Errorf("drmSchemeOf(%q) = %q, want %q", tt.fields, got, tt.want)
		}
	}
}

// A protected package is refused before a book, chapter or workspace is
// created.
func TestImportEPUB_DRMStoresNothing(t *testing.T) {
	protected := testBook().files()
	protected[encryptionPath] = encryptionXML("", aes128)
	data := buildTestZipBytes(t, protected)

	store := NewMemoryStore()
	tmp := t.TempDir()
	im := NewImporter(store, WithTempDir(tmp))

	res, err := im.ImportEPUBAsBook(context.Background(), bytes.NewReader(data), int64(len(data)), DefaultSettings())
	if !errors.Is(err, ErrDRMProtected) {
		t.Fatalf("ImportEPUBAsBook() error = %v, want ErrDRMProtected", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	if len(store.books) != 0 || len(store.chapters) != 0 {
		t.Errorf("store holds %d books, %d chapters; want none", len(store.books), len(store.chapters))
	}
	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace left behind: %v", entries)
	}
}
