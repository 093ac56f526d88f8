package resilience

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/chorus/internal/cache"
)

type writeRetriever struct {
	name  string
	err   error
	calls int
}

func (w *writeRetriever) Retrieve(_ context.Context, sourceID, destPath string) error {
	w.calls++
	if w.err != nil {
		_ = os.WriteFile(destPath, []byte("partial"), 0o644)
		return w.err
	}
	return os.WriteFile(destPath, []byte(w.name+":"+sourceID), 0o644)
}

func TestRetrieverFallback_FailsOverToSecondBackend(t *testing.T) {
	t.Parallel()

	primary := &writeRetriever{name: "http", err: errors.New("502 bad gateway")}
	secondary := &writeRetriever{name: "ytdlp"}
	f := NewRetrieverFallback(primary, "http", FallbackConfig{})
	f.AddFallback("ytdlp", secondary)

	dest := filepath.Join(t.TempDir(), "out")
	if err := f.Retrieve(context.Background(), "abc", dest); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "ytdlp:abc" {
		t.Errorf("content = %q, want ytdlp:abc", data)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Errorf("calls = (%d, %d), want (1, 1)", primary.calls, secondary.calls)
	}
}

func TestRetrieverFallback_WithCache(t *testing.T) {
	t.Parallel()

	primary := &writeRetriever{name: "http", err: errors.New("down")}
	secondary := &writeRetriever{name: "ytdlp", err: errors.New("also down")}
	f := NewRetrieverFallback(primary, "http", FallbackConfig{})
	f.AddFallback("ytdlp", secondary)

	store, err := cache.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c, err := cache.New(store, f)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Fetch(context.Background(), "abc")
	if !errors.Is(err, cache.ErrFetch) || !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrFetch wrapping ErrAllFailed", err)
	}
	if ok, _ := store.Exists(context.Background(), "abc.mp3"); ok {
		t.Error("partial download was committed")
	}
	if got := f.BreakerStates(); got["http"] != StateClosed {
		t.Errorf("http breaker = %v after one failure, want closed", got["http"])
	}
}
