package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/restransform/internal/config"
	"github.com/vyrodovalexey/restransform/internal/observability"
)

// run starts the server and blocks until a shutdown signal arrives.
func run(app *application, configPath string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.server.Start(ctx); err != nil {
		app.logger.Fatal("failed to start server", observability.Error(err))
	}

	watcher := startConfigWatcher(ctx, app, configPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	app.logger.Info("received shutdown signal", observability.String("signal", sig.String()))

	app.shutdown(watcher)
}

// shutdown drains and stops every component within the shutdown timeout.
func (a *application) shutdown(watcher *config.Watcher) {
	// Fail readiness first so load balancers stop sending traffic.
	a.health.SetDraining(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout.Duration())
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if err := a.server.Stop(shutdownCtx); err != nil {
		a.logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	if err := a.tracer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	a.logger.Info("restransform stopped")
}
