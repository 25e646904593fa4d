// Package main is the entry point for the shaping proxy.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vyrodovalexey/restransform/internal/config"
	"github.com/vyrodovalexey/restransform/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags(os.Args[1:])

	if flags.showVersion {
		printVersion()
		return
	}

	cfg, err := loadAndValidateConfig(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger := initLogger(resolveLogConfig(flags, cfg.Observability.Logging))
	defer func() { _ = logger.Sync() }()

	logger.Info("starting restransform",
		observability.String("version", version),
		observability.String("config", flags.configPath),
		observability.String("upstream", cfg.Upstream.URL),
		observability.Int("routes", len(cfg.Routes)),
	)

	app, err := newApplication(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", observability.Error(err))
	}

	run(app, flags.configPath)
}

// parseFlags parses command line flags. Log flags left empty fall back to
// the configuration file.
func parseFlags(args []string) cliFlags {
	fs := flag.NewFlagSet("shaper", flag.ExitOnError)
	configPath := fs.String("config", getEnvOrDefault("SHAPER_CONFIG_PATH", "configs/shaper.yaml"),
		"Path to configuration file")
	logLevel := fs.String("log-level", getEnvOrDefault("SHAPER_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", getEnvOrDefault("SHAPER_LOG_FORMAT", ""),
		"Log format (json, console)")
	showVersion := fs.Bool("version", false, "Show version information")
	_ = fs.Parse(args)

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("restransform version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// resolveLogConfig merges the command line over the configuration file.
func resolveLogConfig(flags cliFlags, logging config.Logging) observability.LogConfig {
	cfg := observability.DefaultLogConfig()
	cfg.Level = firstNonEmpty(flags.logLevel, logging.Level, cfg.Level)
	cfg.Format = firstNonEmpty(flags.logFormat, logging.Format, cfg.Format)
	cfg.Output = firstNonEmpty(logging.Output, cfg.Output)
	return cfg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// initLogger initializes the logger.
func initLogger(cfg observability.LogConfig) observability.Logger {
	logger, err := observability.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
