// Package httpfetch retrieves songs from the download service that exposes
// GET /download/song/{sourceID}. It implements both cache.Retriever (download
// to a local file) and cache.Locator (HEAD existence check plus remote URL).
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/MrWong99/chorus/internal/cache"
)

// ErrStatus is returned (wrapped) when the endpoint answers with a status
// other than 200.
var ErrStatus = errors.New("httpfetch: unexpected status")

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithMaxBytes caps the size of a single download. Zero disables the cap.
// Default: 64 MiB.
func WithMaxBytes(n int64) Option {
	return func(c *Client) {
		c.maxBytes = n
	}
}

// Client talks to one download service.
type Client struct {
	base     string
	http     *http.Client
	maxBytes int64
}

var (
	_ cache.Retriever = (*Client)(nil)
	_ cache.Locator   = (*Client)(nil)
)

// New returns a Client for the service at baseURL (e.g. "http://dl:8080").
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("httpfetch: invalid base url %q", baseURL)
	}
	c := &Client{
		base:     strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 10 * time.Minute},
		maxBytes: 64 << 20,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// URL returns the download URL for sourceID.
func (c *Client) URL(sourceID string) string {
	return c.base + "/download/song/" + url.PathEscape(sourceID)
}

// Exists sends a HEAD request and reports whether the service answered 200.
// Other statuses are reported as not found; transport errors are returned.
func (c *Client) Exists(ctx context.Context, sourceID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.URL(sourceID), nil)
	if err != nil {
		return false, fmt.Errorf("httpfetch: head %s: %w", sourceID, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("httpfetch: head %s: %w", sourceID, err)
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// Retrieve streams the song into destPath.
func (c *Client) Retrieve(ctx context.Context, sourceID, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(sourceID), nil)
	if err != nil {
		return fmt.Errorf("httpfetch: get %s: %w", sourceID, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("httpfetch: get %s: %w", sourceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("httpfetch: get %s: %w: %d", sourceID, ErrStatus, resp.StatusCode)
	}

	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("httpfetch: open %s: %w", destPath, err)
	}

	var body io.Reader = resp.Body
	if c.maxBytes > 0 {
		body = io.LimitReader(resp.Body, c.maxBytes+1)
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("httpfetch: download %s: %w", sourceID, err)
	}
	if c.maxBytes > 0 && n > c.maxBytes {
		return fmt.Errorf("httpfetch: download %s: exceeds %d bytes", sourceID, c.maxBytes)
	}
	if n == 0 {
		return fmt.Errorf("httpfetch: download %s: empty body", sourceID)
	}
	return nil
}
