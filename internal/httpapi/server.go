// Package httpapi serves chorus's operational HTTP surface: liveness and
// readiness probes, Prometheus metrics, JSON snapshots of every chat's queue
// and a websocket feed of playback events.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/chorus/internal/observe"
	"github.com/MrWong99/chorus/internal/queue"
)

// ChatLister returns snapshots of every known chat. [queue.Store] implements
// it.
type ChatLister interface {
	Chats() []queue.ChatState
	Peek(chatID int64) (queue.ChatState, bool)
}

// Option configures a [Server].
type Option func(*Server)

// WithCheckers adds readiness checks to /readyz.
func WithCheckers(c ...Checker) Option {
	return func(s *Server) { s.checkers = append(s.checkers, c...) }
}

// WithChats enables /debug/chats.
func WithChats(l ChatLister) Option {
	return func(s *Server) { s.chats = l }
}

// WithFeed enables the /debug/chats/{id}/feed websocket.
func WithFeed(f *Feed) Option {
	return func(s *Server) { s.feed = f }
}

// WithMetricsHandler replaces the Prometheus handler served on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithObserveMetrics sets the metrics used by the request middleware.
func WithObserveMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithOriginPatterns lists the origins allowed to open the feed websocket.
// Without patterns only same-origin requests are accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

// Server is the HTTP server.
type Server struct {
	checkers       []Checker
	chats          ChatLister
	feed           *Feed
	metricsHandler http.Handler
	metrics        *observe.Metrics
	originPatterns []string
}

// New creates a Server.
func New(opts ...Option) *Server {
	s := &Server{metricsHandler: promhttp.Handler()}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the routed and instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthz)
	mux.Handle("GET /readyz", readyz(s.checkers))
	mux.Handle("GET /metrics", s.metricsHandler)
	if s.chats != nil {
		mux.HandleFunc("GET /debug/chats", s.listChats)
		mux.HandleFunc("GET /debug/chats/{id}", s.getChat)
	}
	if s.feed != nil {
		mux.HandleFunc("GET /debug/chats/{id}/feed", s.streamFeed)
	}
	return observe.Middleware(s.metrics)(mux)
}

// TLS names a certificate and key file.
type TLS struct {
	CertFile string
	KeyFile  string
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. tls may be nil.
func (s *Server) ListenAndServe(ctx context.Context, addr string, tls *TLS) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		var err error
		if tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		errc <- err
	}()
	slog.Info("http server listening", "addr", addr, "tls", tls != nil)

	select {
	case err := <-errc:
		return fmt.Errorf("httpapi: serve %s: %w", addr, err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpapi: shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("httpapi: serve %s: %w", addr, err)
	}
	return nil
}

func chatIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid chat id"})
		return 0, false
	}
	return id, true
}

// streamFeed upgrades to a websocket and writes one JSON message per
// dispatcher event of the chat. Chat ID 0 streams every chat.
func (s *Server) streamFeed(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		slog.Warn("httpapi: websocket accept", "err", err)
		return
	}
	defer conn.CloseNow()

	events, cancel := s.feed.Subscribe(chatID)
	defer cancel()

	// The feed is write-only; CloseRead handles pings and the close frame.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-events:
			if !open {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, conn, ev)
			wcancel()
			if err != nil {
				observe.Logger(ctx).Debug("httpapi: feed write", "chat_id", chatID, "err", err)
				return
			}
		}
	}
}
