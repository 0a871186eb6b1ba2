// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	kfile "github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"

	"github.com/mosaicview/mosaic/internal/bus"
	"github.com/mosaicview/mosaic/internal/config"
	"github.com/mosaicview/mosaic/internal/logging"
	"github.com/mosaicview/mosaic/internal/observability"
	"github.com/mosaicview/mosaic/internal/plugin"
	"github.com/mosaicview/mosaic/internal/plugin/capability"
	"github.com/mosaicview/mosaic/internal/resource"
	"github.com/mosaicview/mosaic/plugins/allviewer"
	"github.com/mosaicview/mosaic/plugins/findme"
)

// hostConfig holds configuration for the host command, resolved from flags
// overlaid on the config file.
type hostConfig struct {
	pluginsDir   string
	metricsAddr  string
	logFormat    string
	debug        bool
	activate     bool
	galleryPaths []string
}

// Validate checks that the configuration is valid.
func (cfg *hostConfig) Validate() error {
	if cfg.pluginsDir == "" {
		return fmt.Errorf("plugins-dir is required")
	}
	if cfg.logFormat != "json" && cfg.logFormat != "text" {
		return fmt.Errorf("log-format must be 'json' or 'text', got %q", cfg.logFormat)
	}
	return nil
}

// Default values for host command flags.
const (
	defaultPluginsDir  = "plugins.d"
	defaultMetricsAddr = "127.0.0.1:9100"
	defaultLogFormat   = "json"
)

// NewHostCmd creates the host subcommand.
func NewHostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Start the plugin host process",
		Long: `Start the host process which loads plugin manifests, drives the
plugin lifecycle, and serves metrics and health endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveHostConfig(cmd)
			if err != nil {
				return err
			}
			return runHost(cmd.Context(), cfg, cmd)
		},
	}

	cmd.Flags().String("plugins-dir", defaultPluginsDir, "directory of per-plugin manifest directories")
	cmd.Flags().String("metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", defaultLogFormat, "log format (json or text)")
	cmd.Flags().Bool("debug", false, "enable debug logging")
	cmd.Flags().Bool("activate", true, "activate plugins after loading")
	cmd.Flags().StringSlice("gallery-paths", nil, "image folders registered as the gallery source")

	return cmd
}

// resolveHostConfig layers the command's flags over the config file: file
// values fill in flags the user did not set.
func resolveHostConfig(cmd *cobra.Command) (*hostConfig, error) {
	k := koanf.New(".")

	if _, err := os.Stat(configFile); err == nil {
		if err := k.Load(kfile.Provider(configFile), kyaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configFile, err)
		}
	}

	if err := k.Load(posflag.Provider(cmd.Flags(), ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to read flags: %w", err)
	}

	cfg := &hostConfig{
		pluginsDir:   k.String("plugins-dir"),
		metricsAddr:  k.String("metrics-addr"),
		logFormat:    k.String("log-format"),
		debug:        k.Bool("debug"),
		activate:     k.Bool("activate"),
		galleryPaths: k.Strings("gallery-paths"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// builtinCatalog lists the plugins compiled into this host binary.
func builtinCatalog() (*plugin.Catalog, error) {
	catalog := plugin.NewCatalog()
	if err := catalog.Add(allviewer.ID, allviewer.Factory); err != nil {
		return nil, err
	}
	if err := catalog.Add(findme.ID, findme.Factory); err != nil {
		return nil, err
	}
	return catalog, nil
}

// runHost starts the host process and blocks until shutdown.
func runHost(ctx context.Context, cfg *hostConfig, cmd *cobra.Command) error {
	logging.SetDefault("mosaic", version, cfg.logFormat, cfg.debug)
	logger := slog.Default()

	logger.Info("starting host process",
		"plugins_dir", cfg.pluginsDir,
		"log_format", cfg.logFormat,
	)

	cfgMgr := config.NewManager(configFile, logger)
	if err := cfgMgr.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	eventBus := bus.New(bus.WithLogger(logger))

	resMgr := resource.NewManager(logger)
	if len(cfg.galleryPaths) > 0 {
		src := resource.Source{
			ID:       "gallery",
			Includes: cfg.galleryPaths,
			Filter:   resource.Filter{Recursive: true},
		}
		if err := resMgr.AddSource(src); err != nil {
			return fmt.Errorf("failed to register gallery source: %w", err)
		}
		logger.Info("gallery source registered", "paths", cfg.galleryPaths)
	}

	enforcer := capability.NewEnforcer()
	pctx := plugin.NewContext(eventBus, cfgMgr, resMgr, logger)
	registry := plugin.NewRegistry(pctx, plugin.Options{
		AutoInitialize: true,
		ActivateOnLoad: cfg.activate,
		Debug:          cfg.debug,
	}, plugin.WithEnforcer(enforcer))

	catalog, err := builtinCatalog()
	if err != nil {
		return fmt.Errorf("failed to build plugin catalog: %w", err)
	}

	if err := registry.LoadAll(ctx, cfg.pluginsDir, catalog); err != nil {
		return fmt.Errorf("failed to load plugins: %w", err)
	}

	logger.Info("plugins loaded",
		"registered", registry.Count(),
		"active", len(registry.Active()),
	)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start observability server if configured
	var obsServer *observability.Server
	if cfg.metricsAddr != "" {
		// Ready once plugins are loaded, which is the case by this point
		obsServer = observability.NewServer(cfg.metricsAddr, func() bool { return true })
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Host process started")
	logger.Info("host ready", "plugins", registry.Count())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	// Graceful shutdown
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	registry.Shutdown(shutdownCtx)
	eventBus.Clear()

	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors watches a server's error channel and cancels the
// context on error, so a failed server triggers graceful shutdown. Exits on
// error, channel close, or context cancellation.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
