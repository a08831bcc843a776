package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
)

// downloadTimeout bounds a single weights download
const downloadTimeout = 10 * time.Minute

// Downloader fetches files over HTTP
type Downloader struct {
	client *resty.Client
}

// NewDownloader returns a downloader with retries for transient failures
func NewDownloader() *Downloader {
	return &Downloader{
		client: resty.New().
			SetTimeout(downloadTimeout).
			SetRetryCount(2).
			SetRetryWaitTime(time.Second),
	}
}

// Fetch downloads url to dest.  The body is written to a temporary file
// that is renamed into place once complete.
func (d *Downloader) Fetch(ctx context.Context, url, dest string) error {

	if dir := filepath.Dir(dest); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating %s: %w", dir, err)
		}
	}

	tmp := dest + ".tmp"

	resp, err := d.client.R().
		SetContext(ctx).
		SetOutput(tmp).
		Get(url)

	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("error downloading %s: %w", url, err)
	}

	if resp.IsError() {
		os.Remove(tmp)
		return fmt.Errorf("error downloading %s: %s", url, resp.Status())
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("error saving %s: %w", dest, err)
	}

	return nil
}
