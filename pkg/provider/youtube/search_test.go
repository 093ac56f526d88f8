package youtube

import (
	"context"
	"errors"
	"testing"

	"github.com/ppalone/ytsearch"

	"github.com/MrWong99/chorus/pkg/provider/mock"
)

func TestVideoFromResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     ytsearch.VideoInfo
		want   Video
		wantOK bool
	}{
		{
			name: "full result",
			in: ytsearch.VideoInfo{
				VideoID:  "dQw4w9WgXcQ",
				Title:    "Never Gonna Give You Up",
				Channel:  "Rick Astley",
				Duration: "3:33",
				Thumbnails: []ytsearch.Thumbnail{
					{URL: "https://i.ytimg.com/small.jpg", Width: 168},
					{URL: "https://i.ytimg.com/large.jpg", Width: 720},
					{URL: "https://i.ytimg.com/mid.jpg", Width: 336},
				},
			},
			want: Video{
				ID:        "dQw4w9WgXcQ",
				Title:     "Never Gonna Give You Up",
				Channel:   "Rick Astley",
				Duration:  "3:33",
				Thumbnail: "https://i.ytimg.com/large.jpg",
			},
			wantOK: true,
		},
		{
			name: "no thumbnails",
			in:   ytsearch.VideoInfo{VideoID: "abc123xyz90", Title: "Yellow", Channel: "Coldplay", Duration: "4:29"},
			want: Video{
				ID:        "abc123xyz90",
				Title:     "Yellow",
				Channel:   "Coldplay",
				Duration:  "4:29",
				Thumbnail: ThumbnailURL("abc123xyz90"),
			},
			wantOK: true,
		},
		{
			name: "not a video",
			in:   ytsearch.VideoInfo{Title: "Some Channel"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := videoFromResult(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("videoFromResult = %+v, %v; want %+v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestWebSearcher_SearchCarriesArtistAndDuration(t *testing.T) {
	t.Parallel()

	ws := &WebSearcher{query: func(context.Context, string) ([]ytsearch.VideoInfo, error) {
		return []ytsearch.VideoInfo{
			{Title: "A channel"},
			{VideoID: "dQw4w9WgXcQ", Title: "Never Gonna Give You Up", Channel: "Rick Astley", Duration: "3:33"},
			{VideoID: "abc123xyz90", Title: "Yellow", Channel: "Coldplay", Duration: "4:29"},
			{VideoID: "zzz123xyz90", Title: "Beyond the limit"},
		}, nil
	}}
	p := newTestProvider(t, ws, &mock.Fetcher{}, WithLimit(2))

	got, err := p.Search(context.Background(), "rick")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Artist != "Rick Astley" || got[0].Duration != "3:33" {
		t.Errorf("first = %+v, want artist and duration from the result", got[0])
	}
	if got[1].ID != "abc123xyz90" || got[1].Artist != "Coldplay" {
		t.Errorf("second = %+v", got[1])
	}
}

func TestWebSearcher_Error(t *testing.T) {
	t.Parallel()

	errDown := errors.New("youtube unreachable")
	ws := &WebSearcher{query: func(context.Context, string) ([]ytsearch.VideoInfo, error) {
		return nil, errDown
	}}
	if _, err := ws.SearchVideos(context.Background(), "q", 5); !errors.Is(err, errDown) {
		t.Errorf("err = %v, want wrapped backend error", err)
	}
}
