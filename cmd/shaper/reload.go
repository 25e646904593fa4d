package main

import (
	"context"

	"github.com/vyrodovalexey/restransform/internal/config"
	"github.com/vyrodovalexey/restransform/internal/observability"
	"github.com/vyrodovalexey/restransform/internal/rules"
)

// startConfigWatcher reloads the routes whenever the configuration file
// changes. A file that fails to validate or compile leaves the running rules
// untouched.
func startConfigWatcher(ctx context.Context, app *application, configPath string) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, app.reload,
		config.WithLogger(app.logger),
		config.WithCheck(func(cfg *config.Config) error {
			_, err := rules.Compile(cfg)
			return err
		}),
		config.WithErrorCallback(func(error) {
			app.metrics.RecordReload(false)
		}),
	)
	if err != nil {
		app.logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		app.logger.Warn("failed to start config watcher", observability.Error(err))
		_ = watcher.Stop()
		return nil
	}

	return watcher
}

// reload swaps in the routes of newCfg. Server and upstream settings are
// read once at startup.
func (a *application) reload(newCfg *config.Config) {
	set, err := rules.Compile(newCfg, rules.WithLogger(a.logger))
	if err != nil {
		a.logger.Error("failed to compile reloaded routes", observability.Error(err))
		a.metrics.RecordReload(false)
		return
	}

	if newCfg.Upstream.URL != a.config.Upstream.URL || newCfg.Server.Listen != a.config.Server.Listen {
		a.logger.Warn("server and upstream changes require a restart",
			observability.String("upstream", a.config.Upstream.URL),
			observability.String("listen", a.config.Server.Listen),
		)
	}

	a.registry.Swap(set)
	a.metrics.RecordReload(true)
	a.metrics.SetRulesLoaded(set.Len())

	a.logger.Info("routes reloaded", observability.Int("routes", set.Len()))
}
