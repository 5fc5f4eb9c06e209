package bookimport

import (
	"encoding/xml"
	"fmt"
	"strings"
)

const (
	encryptionPath = "META-INF/encryption.xml"
	// A FairPlay sinf descriptor alone marks the package as protected.
	fairPlayPath = "META-INF/sinf.xml"
)

// obfuscationMethods are the algorithm URIs used to mangle embedded fonts.
// They hide the font, not the text, so packages using them still import.
var obfuscationMethods = map[string]bool{
	"http://www.idpf.org/2008/embedding": true,
	"http://ns.adobe.com/pdf/enc#RC":     true,
}

// drmScheme names a rights management system by a namespace that appears in
// its algorithm URI or key info.
type drmScheme struct {
	name      string
	namespace string
}

var drmSchemes = []drmScheme{
	{"Adobe ADEPT", "http://ns.adobe.com/adept"},
	{"Readium LCP", "http://readium.org/2014/01/lcp"},
}

type encryptionDoc struct {
	XMLName xml.Name         `xml:"encryption"`
	Items   []encryptedEntry `xml:"EncryptedData"`
}

type encryptedEntry struct {
	Method struct {
		Algorithm string `xml:"Algorithm,attr"`
	} `xml:"EncryptionMethod"`
	KeyInfo struct {
		Raw string `xml:",innerxml"`
	} `xml:"KeyInfo"`
	Cipher struct {
		Ref struct {
			URI string `xml:"URI,attr"`
		} `xml:"CipherReference"`
	} `xml:"CipherData"`
}

// CheckDRM inspects the encryption descriptors under META-INF. Real DRM
// and any encryption method it does not recognise yield ErrDRMProtected,
// wrapped with the scheme or algorithm found. Font obfuscation alone is not
// DRM; it is reported through fontObfuscation.
func (p *Package) CheckDRM() (fontObfuscation bool, err error) {
	if p.findFile(fairPlayPath) != nil {
		return false, fmt.Errorf("%w: Apple FairPlay", ErrDRMProtected)
	}

	f := p.findFile(encryptionPath)
	if f == nil {
		return false, nil
	}
	data, err := readZipFile(f)
	if err != nil {
		return false, err
	}

	var doc encryptionDoc
	if err := xml.Unmarshal(stripBOM(data), &doc); err != nil {
		return false, fmt.Errorf("%w: unreadable %s", ErrDRMProtected, encryptionPath)
	}

	for _, item := range doc.Items {
		algo := item.Method.Algorithm
		if obfuscationMethods[algo] {
			fontObfuscation = true
			continue
		}
		if name := drmSchemeOf(algo, item.KeyInfo.Raw); name != "" {
			return false, fmt.Errorf("%w: %s", ErrDRMProtected, name)
		}
		return false, fmt.Errorf("%w: %s encrypted with %q", ErrDRMProtected, item.Cipher.Ref.URI, algo)
	}
	return fontObfuscation, nil
}

// drmSchemeOf returns the name of the first known scheme mentioned by any
// of the given strings.
func drmSchemeOf(fields ...string) string {
	for _, s := range drmSchemes {
		for _, f := range fields {
			if strings.Contains(f, s.namespace) {
				return s.name
			}
		}
	}
	return ""
}
