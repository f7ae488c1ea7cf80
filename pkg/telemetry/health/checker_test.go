package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRunAllHealthy(t *testing.T) {
	c := NewChecker(&Config{Version: "1.2.3"})
	c.Register("storage", func(ctx context.Context) error { return nil })
	c.Register("config", func(ctx context.Context) error { return nil })

	report := c.Run(context.Background())
	if report.Status != StatusOK {
		t.Errorf("status = %q, want %q", report.Status, StatusOK)
	}
	if report.Version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", report.Version)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("checks = %d, want 2", len(report.Checks))
	}
	for _, chk := range report.Checks {
		if chk.Status != StatusOK {
			t.Errorf("check %q status = %q, want ok", chk.Name, chk.Status)
		}
		if chk.Error != "" {
			t.Errorf("check %q error = %q, want empty", chk.Name, chk.Error)
		}
	}
}

func TestRunCriticalFailure(t *testing.T) {
	c := NewChecker(nil)
	c.Register("storage", func(ctx context.Context) error {
		return errors.New("disk full")
	})
	c.RegisterWarn("breaker", func(ctx context.Context) error { return nil })

	report := c.Run(context.Background())
	if report.Status != StatusError {
		t.Errorf("status = %q, want %q", report.Status, StatusError)
	}

	var storage *CheckResult
	for i := range report.Checks {
		if report.Checks[i].Name == "storage" {
			storage = &report.Checks[i]
		}
	}
	if storage == nil {
		t.Fatal("storage check missing from report")
	}
	if storage.Status != StatusError {
		t.Errorf("storage status = %q, want error", storage.Status)
	}
	if storage.Error != "disk full" {
		t.Errorf("storage error = %q, want %q", storage.Error, "disk full")
	}
}

func TestRunWarningDegrades(t *testing.T) {
	c := NewChecker(nil)
	c.Register("storage", func(ctx context.Context) error { return nil })
	c.RegisterWarn("breaker", func(ctx context.Context) error {
		return errors.New("circuit open")
	})

	report := c.Run(context.Background())
	if report.Status != StatusDegraded {
		t.Errorf("status = %q, want %q", report.Status, StatusDegraded)
	}
}

func TestRunCriticalOutranksWarning(t *testing.T) {
	c := NewChecker(nil)
	c.RegisterWarn("breaker", func(ctx context.Context) error {
		return errors.New("circuit open")
	})
	c.Register("storage", func(ctx context.Context) error {
		return errors.New("unwritable")
	})

	report := c.Run(context.Background())
	if report.Status != StatusError {
		t.Errorf("status = %q, want %q", report.Status, StatusError)
	}
}

func TestRunTimesOutSlowCheck(t *testing.T) {
	c := NewChecker(&Config{CheckTimeout: 20 * time.Millisecond})
	c.Register("slow", func(ctx context.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	start := time.Now()
	report := c.Run(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Run took %v, want well under a second", elapsed)
	}
	if report.Status != StatusError {
		t.Errorf("status = %q, want error for timed-out check", report.Status)
	}
}

func TestHandlerStatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		register func(*Checker)
		wantCode int
		wantBody Status
	}{
		{
			name: "healthy",
			register: func(c *Checker) {
				c.Register("storage", func(ctx context.Context) error { return nil })
			},
			wantCode: 200,
			wantBody: StatusOK,
		},
		{
			name: "degraded still serves",
			register: func(c *Checker) {
				c.RegisterWarn("breaker", func(ctx context.Context) error {
					return errors.New("circuit open")
				})
			},
			wantCode: 200,
			wantBody: StatusDegraded,
		},
		{
			name: "critical failure returns 503",
			register: func(c *Checker) {
				c.Register("storage", func(ctx context.Context) error {
					return errors.New("unwritable")
				})
			},
			wantCode: 503,
			wantBody: StatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(nil)
			tt.register(c)

			rec := httptest.NewRecorder()
			c.Handler()(rec, httptest.NewRequest("GET", "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantCode)
			}
			var report Report
			if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
				t.Fatalf("body is not JSON: %v", err)
			}
			if report.Status != tt.wantBody {
				t.Errorf("report status = %q, want %q", report.Status, tt.wantBody)
			}
		})
	}
}

func TestHandlerRejectsPost(t *testing.T) {
	c := NewChecker(nil)
	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("POST", "/health", nil))
	if rec.Code != 405 {
		t.Errorf("status code = %d, want 405", rec.Code)
	}
}

func TestWritableDir(t *testing.T) {
	t.Run("writable", func(t *testing.T) {
		dir := t.TempDir()
		if err := WritableDir(dir)(context.Background()); err != nil {
			t.Errorf("WritableDir on temp dir: %v", err)
		}
	})

	t.Run("creates missing directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "traces")
		if err := WritableDir(dir)(context.Background()); err != nil {
			t.Errorf("WritableDir on missing dir: %v", err)
		}
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("directory was not created: %v", err)
		}
	})

	t.Run("read-only directory fails", func(t *testing.T) {
		if os.Getuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		dir := t.TempDir()
		if err := os.Chmod(dir, 0o555); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { os.Chmod(dir, 0o755) })
		if err := WritableDir(dir)(context.Background()); err == nil {
			t.Error("WritableDir on read-only dir succeeded, want error")
		}
	})
}

func TestAlways(t *testing.T) {
	sentinel := errors.New("config failed to load")
	if err := Always(sentinel)(context.Background()); !errors.Is(err, sentinel) {
		t.Errorf("Always returned %v, want sentinel", err)
	}
}
