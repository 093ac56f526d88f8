// Package ytdlpfetch retrieves YouTube audio with yt-dlp. It is the fallback
// retriever used when the download service is unavailable.
package ytdlpfetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lrstanley/go-ytdlp"

	"github.com/MrWong99/chorus/internal/cache"
)

// Option is a functional option for configuring a [Retriever].
type Option func(*Retriever)

// WithAudioFormat sets the format yt-dlp converts to. It should match the
// cache extension. Default: "mp3".
func WithAudioFormat(format string) Option {
	return func(r *Retriever) {
		if format != "" {
			r.format = format
		}
	}
}

// WithProxy routes yt-dlp traffic through proxy.
func WithProxy(proxy string) Option {
	return func(r *Retriever) {
		r.proxy = proxy
	}
}

// WithURLFunc overrides how a source ID is turned into a URL.
func WithURLFunc(fn func(sourceID string) string) Option {
	return func(r *Retriever) {
		r.urlFor = fn
	}
}

// Retriever downloads audio with the yt-dlp binary found on PATH.
type Retriever struct {
	format string
	proxy  string
	urlFor func(string) string
}

var _ cache.Retriever = (*Retriever)(nil)

// New returns a yt-dlp Retriever.
func New(opts ...Option) *Retriever {
	r := &Retriever{
		format: "mp3",
		urlFor: func(id string) string { return "https://www.youtube.com/watch?v=" + id },
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Retrieve downloads sourceID, extracts the audio track and moves the result
// to destPath.
func (r *Retriever) Retrieve(ctx context.Context, sourceID, destPath string) error {
	work, err := os.MkdirTemp(filepath.Dir(destPath), "ytdlp-*")
	if err != nil {
		return fmt.Errorf("ytdlpfetch: %w", err)
	}
	defer os.RemoveAll(work)

	cmd := ytdlp.New().
		Format("bestaudio/best").
		ExtractAudio().
		AudioFormat(r.format).
		NoPlaylist().
		NoPart().
		NoWarnings().
		IgnoreConfig().
		Quiet().
		Output(filepath.Join(work, "audio.%(ext)s"))
	if r.proxy != "" {
		cmd = cmd.Proxy(r.proxy)
	}

	if _, err := cmd.Run(ctx, r.urlFor(sourceID)); err != nil {
		return fmt.Errorf("ytdlpfetch: %s: %w", sourceID, err)
	}

	out, err := findOutput(work, r.format)
	if err != nil {
		return fmt.Errorf("ytdlpfetch: %s: %w", sourceID, err)
	}
	if err := os.Rename(out, destPath); err != nil {
		return fmt.Errorf("ytdlpfetch: %s: %w", sourceID, err)
	}
	return nil
}

// findOutput locates the converted file yt-dlp wrote into dir.
func findOutput(dir, format string) (string, error) {
	want := filepath.Join(dir, "audio."+format)
	if _, err := os.Stat(want); err == nil {
		return want, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "audio.*"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", errors.New("yt-dlp produced no output file")
	}
	return matches[0], nil
}
