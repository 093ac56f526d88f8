// Package youtube provides a YouTube-backed song provider. Search goes through
// the YouTube web search (github.com/ppalone/ytsearch); audio is obtained from
// the configured [provider.Fetcher] keyed by video ID.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/chorus/pkg/provider"
	"github.com/MrWong99/chorus/pkg/track"
)

// Name is the registry name of this provider.
const Name = "youtube"

// Video is one search hit as returned by a [Searcher].
type Video struct {
	ID        string
	Title     string
	Channel   string
	Duration  string
	Thumbnail string
}

// Searcher runs a video search against YouTube. Results are returned in the
// backend's ranking order.
type Searcher interface {
	SearchVideos(ctx context.Context, query string, limit int) ([]Video, error)
}

// Option is a functional option for configuring the YouTube Provider.
type Option func(*Provider)

// WithSearcher replaces the default ytsearch-backed searcher.
func WithSearcher(s Searcher) Option {
	return func(p *Provider) {
		p.searcher = s
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

// WithDefaultThumbnail sets the image used when a result has no thumbnail.
func WithDefaultThumbnail(url string) Option {
	return func(p *Provider) {
		p.defaultThumbnail = url
	}
}

// Provider implements provider.Provider for YouTube.
type Provider struct {
	searcher         Searcher
	fetcher          provider.Fetcher
	limit            int
	defaultThumbnail string
}

// New creates a YouTube Provider. fetcher must be non-nil.
func New(fetcher provider.Fetcher, opts ...Option) (*Provider, error) {
	if fetcher == nil {
		return nil, errors.New("youtube: fetcher must not be nil")
	}
	p := &Provider{
		fetcher: fetcher,
		limit:   provider.DefaultSearchLimit,
	}
	for _, o := range opts {
		o(p)
	}
	if p.searcher == nil {
		p.searcher = NewWebSearcher()
	}
	return p, nil
}

// Name returns "youtube".
func (p *Provider) Name() string { return Name }

// Search returns up to the configured limit of videos matching keyword.
func (p *Provider) Search(ctx context.Context, keyword string) ([]track.Summary, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("youtube: search: %w", provider.ErrNoResults)
	}
	videos, err := p.searcher.SearchVideos(ctx, keyword, p.limit)
	if err != nil {
		return nil, fmt.Errorf("youtube: search %q: %w", keyword, err)
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("youtube: search %q: %w", keyword, provider.ErrNoResults)
	}
	if len(videos) > p.limit {
		videos = videos[:p.limit]
	}
	out := make([]track.Summary, 0, len(videos))
	for _, v := range videos {
		out = append(out, track.Summary{
			ID:       v.ID,
			Title:    track.OrUnknown(v.Title),
			Artist:   track.OrUnknown(v.Channel),
			Duration: v.Duration,
		})
	}
	return out, nil
}

// Resolve turns a link or keyword into a Record. For links the video ID is
// taken from the URL and metadata is looked up best-effort; a failed lookup
// still yields a record with placeholder metadata.
func (p *Provider) Resolve(ctx context.Context, input string, requester track.Requester) (track.Record, error) {
	input = strings.TrimSpace(input)

	var v Video
	if id, ok := ExtractVideoID(input); ok {
		v = p.lookup(ctx, id)
	} else {
		if input == "" {
			return track.Record{}, fmt.Errorf("youtube: resolve: empty input: %w", provider.ErrResolution)
		}
		videos, err := p.searcher.SearchVideos(ctx, input, 1)
		if err != nil || len(videos) == 0 || videos[0].ID == "" {
			if err == nil {
				err = provider.ErrNoResults
			}
			return track.Record{}, fmt.Errorf("youtube: resolve %q: %w", input, errors.Join(provider.ErrResolution, err))
		}
		v = videos[0]
	}

	audioRef, err := p.fetcher.Fetch(ctx, v.ID)
	if err != nil {
		slog.Warn("youtube: audio unavailable", "source_id", v.ID, "err", err)
		audioRef = ""
	}

	image := v.Thumbnail
	if image == "" {
		image = p.defaultThumbnail
	}
	return track.Record{
		SourceID:    v.ID,
		Title:       track.OrUnknown(v.Title),
		Artist:      track.OrUnknown(v.Channel),
		Duration:    v.Duration,
		ImageURL:    image,
		Link:        WatchURL(v.ID),
		AudioRef:    audioRef,
		RequestedBy: requester,
		Provider:    Name,
	}, nil
}

// lookup searches for the video ID itself and returns the matching hit. When
// nothing matches only the ID is filled in.
func (p *Provider) lookup(ctx context.Context, id string) Video {
	videos, err := p.searcher.SearchVideos(ctx, id, p.limit)
	if err != nil {
		slog.Debug("youtube: metadata lookup failed", "source_id", id, "err", err)
		return Video{ID: id}
	}
	for _, v := range videos {
		if v.ID == id {
			return v
		}
	}
	return Video{ID: id}
}

var _ provider.Provider = (*Provider)(nil)
