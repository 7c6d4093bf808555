package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"go.uber.org/zap"

	appext "github.com/masegraye/appext-go"
)

// ServeConfig configures a gateway server.
type ServeConfig struct {
	// Connector opens the local host sessions the gateway exposes.
	// Required.
	Connector appext.Connector

	// Addr is the address to listen on.
	// Examples: ":8090", "0.0.0.0:8090", "localhost:8090"
	// Default: ":8090"
	Addr string

	// Listener, when set, is used instead of listening on Addr.
	Listener net.Listener

	// Token enables bearer token authentication when not empty.
	Token string

	// Logger receives service logs. Default: zap.NewNop().
	Logger *zap.Logger

	// GracefulShutdownTimeout is max time for graceful shutdown.
	// After timeout, forces shutdown.
	// Default: 30 seconds
	GracefulShutdownTimeout time.Duration

	// StopCh signals server shutdown.
	// If nil, server runs until SIGTERM/SIGINT.
	StopCh <-chan struct{}
}

// Validate checks ServeConfig for errors.
func (cfg *ServeConfig) Validate() error {
	if cfg.Connector == nil {
		return fmt.Errorf("%w: Connector must be set", appext.ErrInvalidConfig)
	}
	if cfg.Listener == nil && cfg.Addr == "" {
		return fmt.Errorf("%w: Addr or Listener must be set", appext.ErrInvalidConfig)
	}
	if cfg.GracefulShutdownTimeout < 0 {
		return fmt.Errorf("%w: GracefulShutdownTimeout must not be negative", appext.ErrInvalidConfig)
	}
	return nil
}

// Serve serves the host service for cfg.Connector.
// This function blocks until the server is shut down via StopCh or signal.
// Open sessions are closed on shutdown.
func Serve(cfg *ServeConfig) error {
	if cfg.Addr == "" && cfg.Listener == nil {
		cfg.Addr = ":8090"
	}
	if cfg.GracefulShutdownTimeout == 0 {
		cfg.GracefulShutdownTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	svc := NewService(cfg.Connector, WithServiceLogger(cfg.Logger))

	var opts []connect.HandlerOption
	if cfg.Token != "" {
		auth := NewTokenAuth("", StaticToken(cfg.Token))
		opts = append(opts, connect.WithInterceptors(auth.ServerInterceptor()))
	}

	mux := http.NewServeMux()
	path, handler := svc.Handler(opts...)
	mux.Handle(path, handler)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopCh := cfg.StopCh
	if stopCh == nil {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		shutdownCh := make(chan struct{})
		go func() {
			<-sigCh
			close(shutdownCh)
		}()
		stopCh = shutdownCh
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.Listener != nil {
			err = srv.Serve(cfg.Listener)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	cfg.Logger.Info("gateway serving", zap.String("addr", cfg.Addr), zap.Bool("auth", cfg.Token != ""))

	select {
	case err := <-errCh:
		svc.Close()
		return err
	case <-stopCh:
		return gracefulShutdown(srv, svc, cfg)
	}
}

// gracefulShutdown drains requests and then closes open sessions.
func gracefulShutdown(srv *http.Server, svc *Service, cfg *ServeConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		svc.Close()
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := svc.Close(); err != nil {
		cfg.Logger.Warn("closing sessions failed", zap.Error(err))
	}
	cfg.Logger.Info("gateway stopped")
	return nil
}
