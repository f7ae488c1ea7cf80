package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"traceforge-hq/traceforge/pkg/config"
	"traceforge-hq/traceforge/pkg/telemetry/health"
	"traceforge-hq/traceforge/pkg/vcr"
)

// Server is the TraceForge gateway process: the HTTP listener plus the
// component graph behind it.
type Server struct {
	config  *config.Config
	version string
	logger  *slog.Logger

	comp       *components
	httpServer *http.Server

	shutdownChan chan struct{}
	stopOnce     sync.Once
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New assembles a server from a loaded configuration. The version
// string shows up in health reports and metrics.
func New(cfg *config.Config, version string) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	logger := slog.Default().With("component", "server")
	comp, err := buildComponents(cfg, version, logger)
	if err != nil {
		return nil, err
	}

	return &Server{
		config:       cfg,
		version:      version,
		logger:       logger,
		comp:         comp,
		shutdownChan: make(chan struct{}),
	}, nil
}

// Start binds the listener and blocks until the context is cancelled,
// SIGINT or SIGTERM arrives, Stop is called, or the listener fails.
// It performs the shutdown itself before returning.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr(),
		Handler:      s.routes(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}
	s.isRunning = true
	s.mu.Unlock()

	if s.comp.pruner != nil {
		if err := s.comp.pruner.Start(ctx); err != nil {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			return fmt.Errorf("start retention pruner: %w", err)
		}
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening",
			"addr", s.httpServer.Addr,
			"vcr_mode", string(s.comp.vcr.Mode()),
			"storage_backend", s.config.Storage.Backend,
			"version", s.version)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
	case sig := <-sigChan:
		s.logger.Info("signal received, shutting down", "signal", sig.String())
	case <-s.shutdownChan:
		s.logger.Info("stop requested, shutting down")
	case err := <-errChan:
		return errors.Join(fmt.Errorf("http server: %w", err), s.Shutdown(context.Background()))
	}

	return s.Shutdown(context.Background())
}

// Stop asks a blocked Start to begin shutdown. It does not wait for
// the shutdown to finish and is safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.shutdownChan)
	})
}

// Shutdown drains the listener within the configured shutdown timeout
// and tears the components down in dependency order. Only the first
// call does the work; later calls return nil.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info("shutting down gateway")

		var errs []error

		s.mu.Lock()
		srv := s.httpServer
		s.mu.Unlock()

		if srv != nil {
			drainCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(drainCtx); err != nil {
				errs = append(errs, fmt.Errorf("http server: %w", err))
			}
		}

		if err := s.comp.Close(ctx); err != nil {
			errs = append(errs, err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		shutdownErr = errors.Join(errs...)
		if shutdownErr != nil {
			s.logger.Error("gateway stopped with errors", "error", shutdownErr)
			return
		}
		s.logger.Info("gateway stopped")
	})

	return shutdownErr
}

// IsRunning reports whether Start has bound the listener and Shutdown
// has not completed.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the complete middleware-wrapped route tree without
// binding a listener.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// Health runs the registered health checks and returns the report.
func (s *Server) Health(ctx context.Context) health.Report {
	return s.comp.checker.Run(ctx)
}

// ApplyConfig applies the runtime-tunable subset of a freshly loaded
// configuration to the running components: the provider routing table,
// the VCR mode and match policy, and the redaction field set. Listener
// settings and storage layout changes need a restart and are ignored.
func (s *Server) ApplyConfig(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	mode, err := vcr.ParseMode(cfg.VCR.Mode)
	if err != nil {
		return fmt.Errorf("apply vcr mode: %w", err)
	}
	match, err := vcr.ParseMatchMode(cfg.VCR.MatchMode)
	if err != nil {
		return fmt.Errorf("apply vcr match mode: %w", err)
	}
	if err := s.comp.router.Reload(routingRules(cfg)); err != nil {
		return fmt.Errorf("apply provider rules: %w", err)
	}
	s.comp.vcr.Reconfigure(mode, match)
	if s.comp.recorder != nil {
		s.comp.recorder.SetRedactor(newRedactor(cfg))
	}

	s.logger.Info("runtime configuration applied",
		"providers", len(cfg.Providers),
		"vcr_mode", string(mode))
	return nil
}
