package youtube

import (
	"context"
	"fmt"

	"github.com/ppalone/ytsearch"
)

// WebSearcher implements [Searcher] by scraping the YouTube web search via
// ytsearch. The backend returns a fixed-size page; results beyond the
// requested limit are dropped.
type WebSearcher struct {
	query func(ctx context.Context, q string) ([]ytsearch.VideoInfo, error)
}

// NewWebSearcher returns a WebSearcher using ytsearch's default HTTP client.
func NewWebSearcher() *WebSearcher {
	c := ytsearch.NewClient(nil)
	return &WebSearcher{
		query: func(ctx context.Context, q string) ([]ytsearch.VideoInfo, error) {
			res, err := c.Search(ctx, q)
			if err != nil {
				return nil, err
			}
			return res.Results, nil
		},
	}
}

// SearchVideos implements [Searcher].
func (s *WebSearcher) SearchVideos(ctx context.Context, query string, limit int) ([]Video, error) {
	results, err := s.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ytsearch: %w", err)
	}
	videos := make([]Video, 0, len(results))
	for _, r := range results {
		if limit > 0 && len(videos) == limit {
			break
		}
		if v, ok := videoFromResult(r); ok {
			videos = append(videos, v)
		}
	}
	return videos, nil
}

// videoFromResult maps one ytsearch result. Results without a video ID
// (channels, playlists) are skipped. The widest thumbnail wins; the static
// hqdefault URL is used when the result carries none.
func videoFromResult(r ytsearch.VideoInfo) (Video, bool) {
	if r.VideoID == "" {
		return Video{}, false
	}
	v := Video{
		ID:        r.VideoID,
		Title:     r.Title,
		Channel:   r.Channel,
		Duration:  r.Duration,
		Thumbnail: ThumbnailURL(r.VideoID),
	}
	var width uint
	for _, th := range r.Thumbnails {
		if th.URL != "" && th.Width >= width {
			v.Thumbnail, width = th.URL, th.Width
		}
	}
	return v, true
}

var _ Searcher = (*WebSearcher)(nil)
