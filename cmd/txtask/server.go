package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/phrazzld/txtask/internal/api"
)

// serveHTTP runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully within the configured timeout.
func (app *application) serveHTTP(ctx context.Context) error {
	server := &http.Server{
		Addr: fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: api.NewRouter(api.RouterConfig{
			Tasks:      app.registry,
			Runs:       app.runs,
			NewManager: app.newManager,
			Logger:     app.logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		app.logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	app.logger.Info("server shutdown completed")
	return nil
}
