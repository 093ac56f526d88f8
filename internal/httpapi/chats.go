package httpapi

import (
	"net/http"
	"time"

	"github.com/MrWong99/chorus/internal/queue"
	"github.com/MrWong99/chorus/pkg/track"
)

// chatView is the JSON form of a [queue.ChatState].
type chatView struct {
	ChatID     int64       `json:"chat_id"`
	Title      string      `json:"title,omitempty"`
	Idle       bool        `json:"idle"`
	NowPlaying *playingView `json:"now_playing,omitempty"`
	Pending    []trackView `json:"pending"`
}

type playingView struct {
	trackView
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
}

type trackView struct {
	SourceID    string `json:"source_id"`
	Provider    string `json:"provider,omitempty"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Duration    string `json:"duration,omitempty"`
	Link        string `json:"link,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}

func newTrackView(r track.Record) trackView {
	return trackView{
		SourceID:    r.SourceID,
		Provider:    r.Provider,
		Title:       r.Title,
		Artist:      r.Artist,
		Duration:    r.Duration,
		Link:        r.Link,
		RequestedBy: r.RequestedBy.Mention(),
	}
}

func newChatView(st queue.ChatState) chatView {
	v := chatView{
		ChatID:  st.ChatID,
		Title:   st.ChatTitle,
		Idle:    st.Idle(),
		Pending: make([]trackView, 0, len(st.Pending)),
	}
	if np := st.NowPlaying; np != nil {
		v.NowPlaying = &playingView{
			trackView: newTrackView(np.Track),
			SessionID: np.SessionID,
			StartedAt: np.StartedAt,
		}
	}
	for _, r := range st.Pending {
		v.Pending = append(v.Pending, newTrackView(r))
	}
	return v
}

func (s *Server) listChats(w http.ResponseWriter, _ *http.Request) {
	states := s.chats.Chats()
	out := make([]chatView, 0, len(states))
	for _, st := range states {
		out = append(out, newChatView(st))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getChat(w http.ResponseWriter, r *http.Request) {
	id, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	st, found := s.chats.Peek(id)
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown chat"})
		return
	}
	writeJSON(w, http.StatusOK, newChatView(st))
}
