// Package ytmusic provides a YouTube Music song provider built on
// github.com/raitonoberu/ytmusic. Track search is restricted to songs, which
// gives cleaner artist metadata than the general video search. Audio is
// obtained from the shared [provider.Fetcher] because YouTube Music tracks are
// ordinary YouTube videos.
package ytmusic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/chorus/pkg/provider"
	"github.com/MrWong99/chorus/pkg/provider/youtube"
	"github.com/MrWong99/chorus/pkg/track"
	"github.com/raitonoberu/ytmusic"
)

// Name is the registry name of this provider.
const Name = "ytmusic"

// Song is one YouTube Music track hit.
type Song struct {
	VideoID   string
	Title     string
	Artists   []string
	Duration  time.Duration
	Thumbnail string
}

// SearchFunc runs a track search. The default uses ytmusic.TrackSearch.
type SearchFunc func(ctx context.Context, query string) ([]Song, error)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithSearchFunc replaces the default YouTube Music search.
func WithSearchFunc(fn SearchFunc) Option {
	return func(p *Provider) {
		p.search = fn
	}
}

// WithLimit sets the maximum number of search results. Values < 1 are ignored.
func WithLimit(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.limit = n
		}
	}
}

// WithDefaultThumbnail sets the image used when a track has no artwork.
func WithDefaultThumbnail(url string) Option {
	return func(p *Provider) {
		p.defaultThumbnail = url
	}
}

// Provider implements provider.Provider for YouTube Music.
type Provider struct {
	search           SearchFunc
	fetcher          provider.Fetcher
	limit            int
	defaultThumbnail string
}

// New creates a YouTube Music Provider. fetcher must be non-nil.
func New(fetcher provider.Fetcher, opts ...Option) (*Provider, error) {
	if fetcher == nil {
		return nil, errors.New("ytmusic: fetcher must not be nil")
	}
	p := &Provider{
		search:  trackSearch,
		fetcher: fetcher,
		limit:   provider.DefaultSearchLimit,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name returns "ytmusic".
func (p *Provider) Name() string { return Name }

// Search returns up to the configured limit of songs matching keyword.
func (p *Provider) Search(ctx context.Context, keyword string) ([]track.Summary, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("ytmusic: search: %w", provider.ErrNoResults)
	}
	songs, err := p.search(ctx, keyword)
	if err != nil {
		return nil, fmt.Errorf("ytmusic: search %q: %w", keyword, err)
	}
	if len(songs) == 0 {
		return nil, fmt.Errorf("ytmusic: search %q: %w", keyword, provider.ErrNoResults)
	}
	if len(songs) > p.limit {
		songs = songs[:p.limit]
	}
	out := make([]track.Summary, len(songs))
	for i, s := range songs {
		out[i] = track.Summary{
			ID:       s.VideoID,
			Title:    track.OrUnknown(s.Title),
			Artist:   artistLine(s.Artists),
			Duration: provider.FormatDuration(s.Duration),
		}
	}
	return out, nil
}

// Resolve accepts YouTube or YouTube Music links as well as keywords.
func (p *Provider) Resolve(ctx context.Context, input string, requester track.Requester) (track.Record, error) {
	input = strings.TrimSpace(input)

	var song Song
	if id, ok := youtube.ExtractVideoID(input); ok {
		song = Song{VideoID: id}
		if songs, err := p.search(ctx, id); err == nil {
			for _, s := range songs {
				if s.VideoID == id {
					song = s
					break
				}
			}
		}
	} else {
		if input == "" {
			return track.Record{}, fmt.Errorf("ytmusic: resolve: empty input: %w", provider.ErrResolution)
		}
		songs, err := p.search(ctx, input)
		if err != nil || len(songs) == 0 {
			if err == nil {
				err = provider.ErrNoResults
			}
			return track.Record{}, fmt.Errorf("ytmusic: resolve %q: %w", input, errors.Join(provider.ErrResolution, err))
		}
		song = songs[0]
	}

	audioRef, err := p.fetcher.Fetch(ctx, song.VideoID)
	if err != nil {
		slog.Warn("ytmusic: audio unavailable", "source_id", song.VideoID, "err", err)
		audioRef = ""
	}

	image := song.Thumbnail
	if image == "" {
		image = p.defaultThumbnail
	}
	return track.Record{
		SourceID:    song.VideoID,
		Title:       track.OrUnknown(song.Title),
		Artist:      artistLine(song.Artists),
		Duration:    provider.FormatDuration(song.Duration),
		ImageURL:    image,
		Link:        "https://music.youtube.com/watch?v=" + song.VideoID,
		AudioRef:    audioRef,
		RequestedBy: requester,
		Provider:    Name,
	}, nil
}

func artistLine(artists []string) string {
	return track.OrUnknown(strings.Join(artists, ", "))
}

// trackSearch queries YouTube Music for songs. The library call does not
// accept a context, so it runs in a goroutine and is abandoned on cancel.
func trackSearch(ctx context.Context, query string) ([]Song, error) {
	type result struct {
		songs []Song
		err   error
	}
	done := make(chan result, 1)
	go func() {
		r, err := ytmusic.TrackSearch(query).Next()
		if err != nil {
			done <- result{err: err}
			return
		}
		songs := make([]Song, 0, len(r.Tracks))
		for _, t := range r.Tracks {
			if t.VideoID == "" {
				continue
			}
			artists := make([]string, 0, len(t.Artists))
			for _, a := range t.Artists {
				artists = append(artists, a.Name)
			}
			s := Song{
				VideoID:  t.VideoID,
				Title:    t.Title,
				Artists:  artists,
				Duration: time.Duration(t.Duration) * time.Second,
			}
			if n := len(t.Thumbnails); n > 0 {
				s.Thumbnail = t.Thumbnails[n-1].URL
			}
			songs = append(songs, s)
		}
		done <- result{songs: songs}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.songs, r.err
	}
}

var _ provider.Provider = (*Provider)(nil)
