package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func writeConfig(t *testing.T, path string, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := ConfigPath(t.TempDir())
	writeConfig(t, path, "rate_limit_ms: 100\n")

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	if got := w.Current().RateLimitMs; got != 100 {
		t.Fatalf("initial RateLimitMs = %d", got)
	}

	reloaded := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})

	writeConfig(t, path, "rate_limit_ms: 250\n")

	select {
	case cfg := <-reloaded:
		if cfg.RateLimitMs != 250 {
			t.Errorf("reloaded RateLimitMs = %d", cfg.RateLimitMs)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
	if got := w.Current().RateLimitMs; got != 250 {
		t.Errorf("Current not updated, RateLimitMs = %d", got)
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := ConfigPath(t.TempDir())
	writeConfig(t, path, "rate_limit_ms: 100\n")

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	var reloads atomic.Int32
	done := make(chan struct{})
	w.OnChange(func(*Config) {
		if reloads.Add(1) == 1 {
			close(done)
		}
	})

	// An editor-style burst of writes within the debounce window.
	for i := 0; i < 5; i++ {
		writeConfig(t, path, "rate_limit_ms: 300\n")
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
	// Let any stragglers land before counting.
	time.Sleep(2 * debounceWindow)
	if n := reloads.Load(); n > 2 {
		t.Errorf("burst triggered %d reloads, want at most 2", n)
	}
}

func TestWatcherKeepsPreviousOnBadConfig(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := ConfigPath(t.TempDir())
	writeConfig(t, path, "rate_limit_ms: 100\n")

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, "storage: [broken\n")
	time.Sleep(3 * debounceWindow)

	if got := w.Current().RateLimitMs; got != 100 {
		t.Errorf("previous config lost, RateLimitMs = %d", got)
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := ConfigPath(t.TempDir())
	writeConfig(t, path, "rate_limit_ms: 100\n")

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	w.Stop()
	w.Stop()
}
