package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ccheshirecat/msgbus/internal/msgbus/loop"
	"github.com/ccheshirecat/msgbus/internal/server/catalog"
	"github.com/ccheshirecat/msgbus/internal/server/config"
)

// App wires the config, bus loop, topic catalog and HTTP transport.
type App struct {
	cfg          config.ServerConfig
	logger       *slog.Logger
	loop         *loop.Loop
	store        catalog.Store
	httpServer   *http.Server
	shutdownWait time.Duration
	ready        chan net.Addr
}

// New constructs the daemon application.
func New(cfg config.ServerConfig, logger *slog.Logger, l *loop.Loop, store catalog.Store, handler http.Handler) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if l == nil {
		return nil, fmt.Errorf("bus loop must not be nil")
	}
	if handler == nil {
		handler = http.NewServeMux()
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPListen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &App{
		cfg:          cfg,
		logger:       logger,
		loop:         l,
		store:        store,
		httpServer:   httpServer,
		shutdownWait: 15 * time.Second,
		ready:        make(chan net.Addr, 1),
	}, nil
}

// Ready yields the bound listen address once the HTTP server is accepting.
func (a *App) Ready() <-chan net.Addr { return a.ready }

// OnShutdown registers fn to run when the HTTP server begins shutting down.
func (a *App) OnShutdown(fn func()) { a.httpServer.RegisterOnShutdown(fn) }

// Run starts the bus loop and HTTP server, blocking until ctx is canceled
// or either of them fails.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.httpServer.Addr, err)
	}

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loopErr := make(chan error, 1)
	go func() { loopErr <- a.loop.Run(loopCtx) }()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("api server listening", "addr", ln.Addr().String())
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	a.ready <- ln.Addr()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
	case err := <-loopErr:
		runErr = fmt.Errorf("bus loop stopped: %w", err)
	}

	a.shutdown()
	return runErr
}

func (a *App) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownWait)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown", "error", err)
	}

	a.loop.Close()
	select {
	case <-a.loop.Done():
	case <-shutdownCtx.Done():
		a.logger.Error("bus loop did not stop", "error", shutdownCtx.Err())
	}

	if a.store != nil {
		if err := a.store.Close(shutdownCtx); err != nil {
			a.logger.Error("store close", "error", err)
		}
	}
	a.logger.Info("daemon stopped")
}
