// Package cache implements the download cache that sits between providers and
// the audio retrieval backends.
//
// [Cache.Fetch] guarantees that concurrent requests for the same source ID
// result in exactly one retrieval. Completed downloads are committed to a
// [Store] under "{sourceID}.{ext}"; a failed retrieval leaves nothing behind,
// so the next Fetch starts over. Nothing is retried automatically.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/chorus/internal/observe"
	"github.com/MrWong99/chorus/pkg/provider"
)

var (
	// ErrFetch is returned (wrapped) by [Cache.Fetch] when the audio could not
	// be retrieved or stored.
	ErrFetch = errors.New("cache: fetch failed")

	// ErrInvalidSourceID is returned when a source ID contains characters that
	// are not safe to use in a file or object name.
	ErrInvalidSourceID = errors.New("cache: invalid source id")
)

var sourceIDPattern = regexp.MustCompile(`^[0-9A-Za-z_.-]+$`)

// ValidSourceID reports whether id may be used as a cache key.
func ValidSourceID(id string) bool {
	return len(id) <= 128 && sourceIDPattern.MatchString(id) && id != "." && id != ".."
}

// Retriever downloads the audio for sourceID into destPath. destPath exists
// and is empty when Retrieve is called; implementations overwrite it.
type Retriever interface {
	Retrieve(ctx context.Context, sourceID, destPath string) error
}

// Store persists completed downloads.
type Store interface {
	// Exists reports whether key has been committed.
	Exists(ctx context.Context, key string) (bool, error)

	// Commit moves the finished file at tmpPath into the store under key.
	Commit(ctx context.Context, key, tmpPath string) error

	// Ref returns the audio reference handed to the transport for key. It
	// must not perform network or disk I/O.
	Ref(key string) (string, error)
}

// tempDirer is implemented by stores that want temporary files created next
// to their final location (so Commit can rename).
type tempDirer interface {
	TempDir() string
}

// Option is a functional option for configuring a [Cache].
type Option func(*Cache)

// WithExtension sets the file extension used for stored objects. Default: "mp3".
func WithExtension(ext string) Option {
	return func(c *Cache) {
		if ext != "" {
			c.ext = ext
		}
	}
}

// WithRetrieveTimeout bounds a single retrieval. Zero means no bound.
// Default: 5m.
func WithRetrieveTimeout(d time.Duration) Option {
	return func(c *Cache) {
		c.retrieveTimeout = d
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// Cache is a single-flight download cache keyed by source ID. It implements
// provider.Fetcher.
type Cache struct {
	store           Store
	retriever       Retriever
	ext             string
	retrieveTimeout time.Duration
	metrics         *observe.Metrics

	group singleflight.Group

	mu    sync.RWMutex
	ready map[string]string // sourceID → store key
}

var _ provider.Fetcher = (*Cache)(nil)

// New creates a Cache backed by store that fills misses through retriever.
func New(store Store, retriever Retriever, opts ...Option) (*Cache, error) {
	if store == nil {
		return nil, errors.New("cache: store must not be nil")
	}
	if retriever == nil {
		return nil, errors.New("cache: retriever must not be nil")
	}
	c := &Cache{
		store:           store,
		retriever:       retriever,
		ext:             "mp3",
		retrieveTimeout: 5 * time.Minute,
		ready:           make(map[string]string),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// Key returns the store key for sourceID.
func (c *Cache) Key(sourceID string) string {
	return sourceID + "." + c.ext
}

// Ready reports whether sourceID is known to be stored, without touching the
// store.
func (c *Cache) Ready(sourceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ready[sourceID]
	return ok
}

// Fetch returns the audio reference for sourceID, retrieving it if needed.
//
// Concurrent calls for the same ID share one retrieval and all observe its
// outcome. A caller whose ctx ends stops waiting and gets ctx.Err(); the
// shared retrieval keeps running for the others.
func (c *Cache) Fetch(ctx context.Context, sourceID string) (string, error) {
	if !ValidSourceID(sourceID) {
		return "", fmt.Errorf("cache: fetch %q: %w: %w", sourceID, ErrFetch, ErrInvalidSourceID)
	}

	c.mu.RLock()
	key, ok := c.ready[sourceID]
	c.mu.RUnlock()
	if ok {
		c.metrics.RecordCacheFetch(ctx, observe.OutcomeHit)
		return c.store.Ref(key)
	}

	ctx, span := observe.StartSpan(ctx, "cache.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("source_id", sourceID))

	// fill runs detached from the caller's cancellation so one impatient
	// waiter cannot abort the download for everyone else.
	fillCtx := context.WithoutCancel(ctx)
	leader := false
	ch := c.group.DoChan(sourceID, func() (any, error) {
		leader = true
		return c.fill(fillCtx, sourceID)
	})

	select {
	case <-ctx.Done():
		err := fmt.Errorf("cache: fetch %s: %w", sourceID, ctx.Err())
		observe.FailSpan(span, err)
		return "", err
	case res := <-ch:
		outcome := observe.OutcomeCoalesced
		switch {
		case res.Err != nil:
			outcome = observe.OutcomeError
		case leader:
			outcome = observe.OutcomeMiss
		}
		c.metrics.RecordCacheFetch(ctx, outcome)
		span.SetAttributes(attribute.String("outcome", outcome))
		if res.Err != nil {
			observe.FailSpan(span, res.Err)
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// fill performs the store lookup and, on a miss, the retrieval. It runs at
// most once per source ID at a time.
func (c *Cache) fill(ctx context.Context, sourceID string) (string, error) {
	key := c.Key(sourceID)
	log := observe.Logger(ctx).With("source_id", sourceID)

	exists, err := c.store.Exists(ctx, key)
	if err != nil {
		log.Warn("cache: store lookup failed, retrieving anyway", "err", err)
	}
	if exists {
		return c.markReady(sourceID, key)
	}

	if c.retrieveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.retrieveTimeout)
		defer cancel()
	}

	tmpPath, err := c.tempFile(sourceID)
	if err != nil {
		return "", fmt.Errorf("cache: fetch %s: %w: %w", sourceID, ErrFetch, err)
	}
	defer os.Remove(tmpPath)

	start := time.Now()
	err = c.retriever.Retrieve(ctx, sourceID, tmpPath)
	c.metrics.RetrievalDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("status", observe.Status(err))))
	if err != nil {
		log.Warn("cache: retrieval failed", "err", err)
		return "", fmt.Errorf("cache: fetch %s: %w: %w", sourceID, ErrFetch, err)
	}

	if err := c.store.Commit(ctx, key, tmpPath); err != nil {
		return "", fmt.Errorf("cache: commit %s: %w: %w", sourceID, ErrFetch, err)
	}
	log.Info("cache: stored", "key", key, "elapsed", time.Since(start))
	return c.markReady(sourceID, key)
}

func (c *Cache) markReady(sourceID, key string) (string, error) {
	ref, err := c.store.Ref(key)
	if err != nil {
		return "", fmt.Errorf("cache: ref %s: %w: %w", sourceID, ErrFetch, err)
	}
	c.mu.Lock()
	c.ready[sourceID] = key
	c.mu.Unlock()
	return ref, nil
}

func (c *Cache) tempFile(sourceID string) (string, error) {
	dir := os.TempDir()
	if td, ok := c.store.(tempDirer); ok {
		dir = td.TempDir()
	}
	f, err := os.CreateTemp(dir, sourceID+"-*.part")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

// Forget drops sourceID from the in-memory ready set so the next Fetch checks
// the store again. It does not delete stored data.
func (c *Cache) Forget(sourceID string) {
	c.mu.Lock()
	delete(c.ready, sourceID)
	c.mu.Unlock()
	slog.Debug("cache: forgot entry", "source_id", sourceID)
}
