// Package app wires the chorus subsystems into a running application.
//
// The App struct owns the platform-independent lifecycle: New builds the
// history store, the download cache, the providers, the queue and the
// dispatcher; Run serves the HTTP surface; Shutdown tears everything down in
// order. The chat platform (the voice transport and anything that listens to
// playback events) is injected through options, so tests can run the whole
// pipeline against mocks.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/chorus/internal/cache"
	"github.com/MrWong99/chorus/internal/cache/objstore"
	"github.com/MrWong99/chorus/internal/config"
	"github.com/MrWong99/chorus/internal/dispatch"
	"github.com/MrWong99/chorus/internal/fetch/httpfetch"
	"github.com/MrWong99/chorus/internal/fetch/ytdlpfetch"
	"github.com/MrWong99/chorus/internal/history"
	"github.com/MrWong99/chorus/internal/httpapi"
	"github.com/MrWong99/chorus/internal/observe"
	"github.com/MrWong99/chorus/internal/queue"
	"github.com/MrWong99/chorus/internal/resilience"
	"github.com/MrWong99/chorus/pkg/provider"
	"github.com/MrWong99/chorus/pkg/provider/youtube"
	"github.com/MrWong99/chorus/pkg/provider/ytmusic"
	"github.com/MrWong99/chorus/pkg/transport"
)

// Leaver disconnects from a chat's voice session.
type Leaver interface {
	Leave(ctx context.Context, chatID int64) error
}

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics

	// Injected or built in New.
	registry  *config.Registry
	transport transport.Transport
	history   history.Store
	fetcher   provider.Fetcher
	leaver    Leaver
	notifiers []dispatch.Notifier

	providers  []provider.Provider
	store      *queue.Store
	dispatcher *dispatch.Dispatcher
	feed       *httpapi.Feed
	checkers   []httpapi.Checker

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithTransport sets the voice transport. Required.
func WithTransport(tr transport.Transport) Option {
	return func(a *App) { a.transport = tr }
}

// WithHistoryStore injects a history store instead of creating one from config.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.history = s }
}

// WithFetcher injects the download cache instead of building one from config.
func WithFetcher(f provider.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithRegistry replaces the provider registry. The default registry knows
// "youtube" and "ytmusic".
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithNotifier adds a dispatcher notifier, for example the channel announcer.
func WithNotifier(n dispatch.Notifier) Option {
	return func(a *App) { a.notifiers = append(a.notifiers, n) }
}

// WithLeaver is used to leave voice sessions once a chat goes idle, when
// discord.leave_when_idle is set.
func WithLeaver(l Leaver) Option {
	return func(a *App) { a.leaver = l }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.transport == nil {
		return nil, errors.New("app: a transport is required")
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.registry == nil {
		a.registry = NewRegistry()
	}

	// ── 1. History ───────────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 2. Download cache ────────────────────────────────────────────────
	if err := a.initCache(ctx); err != nil {
		return nil, fmt.Errorf("app: init cache: %w", err)
	}

	// ── 3. Providers ─────────────────────────────────────────────────────
	if err := a.initProviders(); err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}

	// ── 4. Queue and dispatcher ──────────────────────────────────────────
	a.initDispatcher()

	return a, nil
}

func (a *App) initHistory(ctx context.Context) error {
	if a.history != nil {
		return nil
	}
	if dsn := a.cfg.History.PostgresDSN; dsn != "" {
		pg, err := history.NewPostgres(ctx, dsn)
		if err != nil {
			return err
		}
		a.history = pg
		a.checkers = append(a.checkers, httpapi.Checker{Name: "history", Check: pg.Ping})
		slog.Info("history: using postgres")
	} else {
		a.history = history.NewMemory(a.cfg.History.PerChat)
		slog.Info("history: keeping plays in memory", "per_chat", a.cfg.History.PerChat)
	}
	a.closers = append(a.closers, func() error {
		a.history.Close()
		return nil
	})
	return nil
}

func (a *App) initCache(ctx context.Context) error {
	if a.fetcher != nil {
		return nil
	}
	cc := a.cfg.Cache

	var dl *httpfetch.Client
	if cc.DownloadBaseURL != "" {
		var opts []httpfetch.Option
		if cc.MaxDownloadBytes > 0 {
			opts = append(opts, httpfetch.WithMaxBytes(cc.MaxDownloadBytes))
		}
		var err error
		if dl, err = httpfetch.New(cc.DownloadBaseURL, opts...); err != nil {
			return err
		}
	}

	if cc.Backend == config.CacheRemote {
		if dl == nil {
			return errors.New("remote backend needs cache.download_base_url")
		}
		remote, err := cache.NewRemote(dl, a.metrics)
		if err != nil {
			return err
		}
		a.fetcher = remote
		return nil
	}

	store, err := a.newCacheStore(ctx)
	if err != nil {
		return err
	}
	retriever, err := a.newRetriever(dl)
	if err != nil {
		return err
	}
	c, err := cache.New(store, retriever,
		cache.WithExtension(cc.Extension),
		cache.WithRetrieveTimeout(cc.RetrieveTimeout),
		cache.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.fetcher = c
	return nil
}

func (a *App) newCacheStore(ctx context.Context) (cache.Store, error) {
	cc := a.cfg.Cache
	if cc.Backend != config.CacheMinIO {
		return cache.NewDiskStore(cc.Dir)
	}
	st, err := objstore.New(ctx, objstore.Config{
		Endpoint:      cc.MinIO.Endpoint,
		AccessKey:     cc.MinIO.AccessKey,
		SecretKey:     cc.MinIO.SecretKey,
		Bucket:        cc.MinIO.Bucket,
		Region:        cc.MinIO.Region,
		UseSSL:        cc.MinIO.UseSSL,
		Prefix:        cc.MinIO.Prefix,
		PublicBaseURL: cc.MinIO.PublicBaseURL,
		PresignExpiry: cc.MinIO.PresignExpiry,
	})
	if err != nil {
		return nil, err
	}
	a.checkers = append(a.checkers, httpapi.Checker{Name: "objstore", Check: st.Ping})
	return st, nil
}

// newRetriever puts the download service first and yt-dlp behind it, each
// guarded by its own circuit breaker.
func (a *App) newRetriever(dl *httpfetch.Client) (cache.Retriever, error) {
	cc := a.cfg.Cache
	var ytdlp cache.Retriever
	if cc.YTDLP.Enabled {
		ytdlp = ytdlpfetch.New(
			ytdlpfetch.WithAudioFormat(cc.YTDLP.AudioFormat),
			ytdlpfetch.WithProxy(cc.YTDLP.Proxy),
		)
	}
	fb := a.fallbackConfig()
	switch {
	case dl != nil && ytdlp != nil:
		r := resilience.NewRetrieverFallback(dl, "download-service", fb)
		r.AddFallback("yt-dlp", ytdlp)
		return r, nil
	case dl != nil:
		return resilience.NewRetrieverFallback(dl, "download-service", fb), nil
	case ytdlp != nil:
		return resilience.NewRetrieverFallback(ytdlp, "yt-dlp", fb), nil
	}
	return nil, errors.New("no retriever configured")
}

func (a *App) fallbackConfig() resilience.FallbackConfig {
	return resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		MaxFailures:  a.cfg.Cache.Breaker.MaxFailures,
		ResetTimeout: a.cfg.Cache.Breaker.ResetTimeout,
	}}
}

// initProviders creates every configured provider. When more than one is
// configured, each one falls back to the others in configuration order.
func (a *App) initProviders() error {
	var built []provider.Provider
	for _, entry := range a.cfg.Providers.Entries {
		p, err := a.registry.CreateProvider(entry, a.fetcher)
		if err != nil {
			return err
		}
		built = append(built, observe.InstrumentProvider(p, a.metrics))
		slog.Info("provider created", "name", entry.Name)
	}
	if len(built) == 0 {
		return errors.New("no providers configured")
	}
	if len(built) == 1 {
		a.providers = built
		return nil
	}
	for n, primary := range built {
		fb := resilience.NewProviderFallback(primary, a.fallbackConfig())
		for m, other := range built {
			if m != n {
				fb.AddFallback(other)
			}
		}
		a.providers = append(a.providers, fb)
	}
	return nil
}

func (a *App) initDispatcher() {
	a.store = queue.NewStore(
		queue.WithMaxPending(a.cfg.Queue.MaxPending),
		queue.WithMetrics(a.metrics),
	)
	a.feed = httpapi.NewFeed()
	a.closers = append(a.closers, func() error {
		a.feed.Close()
		return nil
	})

	opts := []dispatch.Option{
		dispatch.WithMetrics(a.metrics),
		dispatch.WithNotifier(history.NewRecorder(a.history)),
	}
	for _, n := range a.notifiers {
		opts = append(opts, dispatch.WithNotifier(n))
	}
	opts = append(opts, dispatch.WithNotifier(a.feed))
	if a.cfg.Discord.LeaveWhenIdle && a.leaver != nil {
		opts = append(opts, dispatch.WithNotifier(leaveWhenIdle(a.leaver)))
	}
	a.dispatcher = dispatch.New(a.store, a.transport, opts...)
}

// leaveWhenIdle disconnects from voice once a chat has nothing left to play.
func leaveWhenIdle(l Leaver) dispatch.Notifier {
	return dispatch.NotifierFunc(func(ctx context.Context, ev dispatch.Event) {
		if ev.Kind != dispatch.EventIdle {
			return
		}
		if err := l.Leave(ctx, ev.Chat.ID); err != nil {
			slog.Warn("app: leave idle voice session", "chat_id", ev.Chat.ID, "err", err)
		}
	})
}

// NewRegistry returns a registry with the built-in providers.
func NewRegistry() *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterProvider(youtube.Name, func(entry config.ProviderEntry, f provider.Fetcher) (provider.Provider, error) {
		return youtube.New(f,
			youtube.WithLimit(entry.SearchLimit),
			youtube.WithDefaultThumbnail(entry.DefaultThumbnail),
		)
	})
	reg.RegisterProvider(ytmusic.Name, func(entry config.ProviderEntry, f provider.Fetcher) (provider.Provider, error) {
		return ytmusic.New(f,
			ytmusic.WithLimit(entry.SearchLimit),
			ytmusic.WithDefaultThumbnail(entry.DefaultThumbnail),
		)
	})
	return reg
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Dispatcher returns the dispatcher.
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }

// Providers returns the providers in configuration order.
func (a *App) Providers() []provider.Provider { return a.providers }

// History returns the play history store.
func (a *App) History() history.Store { return a.history }

// Feed returns the live event feed.
func (a *App) Feed() *httpapi.Feed { return a.feed }

// Metrics returns the metrics sink.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// HTTPServer builds the operational HTTP server.
func (a *App) HTTPServer() *httpapi.Server {
	opts := []httpapi.Option{
		httpapi.WithObserveMetrics(a.metrics),
		httpapi.WithCheckers(a.checkers...),
	}
	if a.cfg.Server.Debug {
		opts = append(opts, httpapi.WithChats(a.store), httpapi.WithFeed(a.feed))
	}
	return httpapi.New(opts...)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled. Without a listen address it just
// waits.
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		<-ctx.Done()
		return ctx.Err()
	}
	var tls *httpapi.TLS
	if t := a.cfg.Server.TLS; t != nil {
		tls = &httpapi.TLS{CertFile: t.CertFile, KeyFile: t.KeyFile}
	}
	return a.HTTPServer().ListenAndServe(ctx, addr, tls)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
