package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startWatcher runs a watcher over path and funnels reloaded configs
// into the returned channel.
func startWatcher(t *testing.T, path string) (*Watcher, <-chan *Config) {
	t.Helper()

	w, err := NewWatcher(path, discardLogger())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.debounce = 20 * time.Millisecond

	ch := make(chan *Config, 8)
	go func() {
		_ = w.Watch(context.Background(), func(cfg *Config) {
			ch <- cfg
		})
	}()
	t.Cleanup(func() { _ = w.Stop() })

	// Give the watcher a beat to register the directory before the
	// test writes to it.
	time.Sleep(100 * time.Millisecond)

	return w, ch
}

func awaitReload(t *testing.T, ch <-chan *Config) *Config {
	t.Helper()
	select {
	case cfg := <-ch:
		return cfg
	case <-time.After(5 * time.Second):
		t.Fatal("no reload delivered")
		return nil
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "proxy_port: 9001\n")
	_, ch := startWatcher(t, path)

	if err := os.WriteFile(path, []byte("proxy_port: 9002\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	cfg := awaitReload(t, ch)
	if cfg.ProxyPort != 9002 {
		t.Errorf("ProxyPort = %d, want 9002", cfg.ProxyPort)
	}
}

func TestWatcher_KeepsLastGoodConfigOnBrokenReload(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "proxy_port: 9001\n")
	_, ch := startWatcher(t, path)

	// A rewrite that fails validation must not be delivered.
	if err := os.WriteFile(path, []byte("proxy_port: -1\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	// The next good rewrite is.
	if err := os.WriteFile(path, []byte("proxy_port: 9003\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	cfg := awaitReload(t, ch)
	if cfg.ProxyPort != 9003 {
		t.Errorf("ProxyPort = %d, want 9003 (broken intermediate skipped)", cfg.ProxyPort)
	}
}

func TestWatcher_DebouncesWriteBursts(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "proxy_port: 9100\n")
	_, ch := startWatcher(t, path)

	for port := 9101; port <= 9105; port++ {
		body := []byte("proxy_port: " + strconv.Itoa(port) + "\n")
		if err := os.WriteFile(path, body, 0o644); err != nil {
			t.Fatalf("rewrite config: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	// The burst may surface as one or two reloads depending on timing,
	// but the final state must arrive.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-ch:
			if cfg.ProxyPort == 9105 {
				return
			}
		case <-deadline:
			t.Fatal("final config never delivered")
		}
	}
}

func TestWatcher_StopTerminatesWatch(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "proxy_port: 9001\n")
	w, err := NewWatcher(path, discardLogger())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- w.Watch(context.Background(), func(*Config) {})
	}()
	time.Sleep(100 * time.Millisecond)

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after Stop")
	}

	// A second Stop is a no-op.
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestWatcher_ContextCancelTerminatesWatch(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "proxy_port: 9001\n")
	w, err := NewWatcher(path, discardLogger())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, func(*Config) {})
	}()
	time.Sleep(100 * time.Millisecond)

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestNewWatcher_RequiresPath(t *testing.T) {
	if _, err := NewWatcher("", discardLogger()); err == nil {
		t.Error("NewWatcher accepted an empty path")
	}
}
