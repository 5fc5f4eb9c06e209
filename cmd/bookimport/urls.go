package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type urlsArgs struct {
	retries  int
	timeout  time.Duration
	settings settingsArgs
}

var uArgs urlsArgs

var urlsCmd = &cobra.Command{
	Use:   "urls <url>...",
	Short: "Download EPUB or Word files and import each as a new book",
	Long:  "Download EPUB or Word files and import each as a new book. Files ending in .docx are imported as Word documents, everything else as EPUB",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runURLs,
}

func init() {
	urlsCmd.Flags().IntVar(&uArgs.retries, "retries", 3, "retries per download")
	urlsCmd.Flags().DurationVar(&uArgs.timeout, "timeout", 2*time.Minute, "timeout per download")
	addSettingsFlags(urlsCmd, &uArgs.settings)
	rootCmd.AddCommand(urlsCmd)
}

func newClient(retries int, timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(time.Second).
		SetLogger(quietLogger{}).
		SetHeader("User-Agent", "bookimport/"+Version).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})
}

// download fetches raw into memory.
func download(ctx context.Context, client *resty.Client, raw string) ([]byte, error) {
	resp, err := client.R().SetContext(ctx).Get(raw)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("unexpected status %s", resp.Status())
	}
	return resp.Body(), nil
}

// isWordURL reports whether the URL path names a .docx file.
func isWordURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(path.Ext(u.Path), ".docx")
}

func runURLs(cmd *cobra.Command, args []string) error {
	store, im, closeStore, err := session()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := cmd.Context()
	client := newClient(uArgs.retries, uArgs.timeout)
	s := uArgs.settings.settings()

	var failed int
	for _, raw := range args {
		data, err := download(ctx, client, raw)
		if err != nil {
			logger.Error("download failed", zap.String("url", raw), zap.Error(err))
			failed++
			continue
		}
		logger.Info("downloaded", zap.String("url", raw), zap.Int("bytes", len(data)))

		r := bytes.NewReader(data)
		if isWordURL(raw) {
			name := path.Base(raw)
			bookID, cerr := store.CreateBook(ctx, strings.TrimSuffix(name, path.Ext(name)))
			if cerr != nil {
				return fmt.Errorf("failed to create book: %w", cerr)
			}
			err = report(cmd, raw)(im.ImportWord(ctx, bookID, r, r.Size(), s))
		} else {
			err = report(cmd, raw)(im.ImportEPUBAsBook(ctx, r, r.Size(), s))
		}
		if err != nil {
			logger.Error("import failed", zap.String("url", raw), zap.Error(err))
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d imports failed", failed, len(args))
	}
	return nil
}

type quietLogger struct{}

func (quietLogger) Errorf(string, ...interface{}) {}
func (quietLogger) Warnf(string, ...interface{})  {}
func (quietLogger) Debugf(string, ...interface{}) {}
