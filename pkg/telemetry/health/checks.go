package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// WritableDir returns a check that verifies the directory exists (creating
// it if needed) and accepts writes. It probes by creating and removing a
// marker file.
func WritableDir(dir string) CheckFunc {
	return func(ctx context.Context) error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}

		probe := filepath.Join(dir, ".health-probe")
		if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
			return fmt.Errorf("write probe: %w", err)
		}
		if err := os.Remove(probe); err != nil {
			return fmt.Errorf("remove probe: %w", err)
		}
		return nil
	}
}

// Always returns a check that reports the given error unconditionally.
// Useful for surfacing a startup failure through the health endpoint.
func Always(err error) CheckFunc {
	return func(ctx context.Context) error {
		return err
	}
}
