// Package server provides the application server: it assembles the
// services from configuration and runs the HTTP listener until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/maxscroll/internal/api"
	"github.com/JakeFAU/maxscroll/internal/app"
	"github.com/JakeFAU/maxscroll/internal/config"
	"github.com/JakeFAU/maxscroll/internal/logging"
	"github.com/JakeFAU/maxscroll/internal/telemetry"
)

// Server contains the running service's dependencies.
type Server struct {
	cfg            config.Config
	logger         *zap.Logger
	app            *app.App
	apiServer      *api.Server
	tracerShutdown func(context.Context) error
}

// Build creates the service dependencies.
func Build(ctx context.Context, cfg config.Config) (*Server, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("pubsub", cfg.PubSub.Enabled),
	)

	s := &Server{cfg: cfg, logger: logger}
	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		s.tracerShutdown = tp.Shutdown
	}

	s.app, err = app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		if s.tracerShutdown != nil {
			_ = s.tracerShutdown(ctx)
		}
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	s.apiServer = api.NewServer(
		s.app.Registry(),
		s.app.Metrics(),
		s.ready,
		cfg,
		logger.Named("api"),
	)
	return s, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.apiServer.Handler()
}

func (s *Server) ready(ctx context.Context) error {
	pinger, ok := s.app.Provider().(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	if err := pinger.Ping(ctx); err != nil {
		return fmt.Errorf("state store: %w", err)
	}
	return nil
}

// Run starts the service and blocks until ctx is canceled or a termination
// signal arrives.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go s.app.Registry().Run(ctx, s.cfg.Registry.SweepInterval())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(s.cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	go func() {
		s.logger.Info("http server started", zap.Int("port", s.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	s.logger.Info("shutdown initiated")

	timeout := time.Duration(s.cfg.Server.ShutdownTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("server shutdown error", zap.Error(err))
	}

	return s.Close(shutdownCtx)
}

// Close gracefully shuts down the service dependencies.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	if s.app != nil {
		if err := s.app.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.tracerShutdown != nil {
		if err := s.tracerShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	if err := s.logger.Sync(); err != nil {
		s.logger.Debug("logger sync failed", zap.Error(err))
	}
	s.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
