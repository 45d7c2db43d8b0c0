package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridianlabs/topoview/pkg/backend"
	"github.com/meridianlabs/topoview/pkg/config"
	"github.com/meridianlabs/topoview/pkg/logging"
	"github.com/meridianlabs/topoview/pkg/observability"
	"github.com/meridianlabs/topoview/pkg/simgraph"
	"github.com/meridianlabs/topoview/pkg/topology"
	"github.com/meridianlabs/topoview/pkg/watcher"
	"github.com/meridianlabs/topoview/pkg/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := config.Flags()
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	lvl, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logging.Configure(lvl, cfg.LogFormat)
	logging.Info("starting topoview",
		"listen", cfg.Listen,
		"backend", cfg.BackendMode,
		"topologyFile", cfg.TopologyFile,
		"topologyURL", cfg.TopologyURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.TracingEnabled,
		ServiceName: "topoview",
		Exporter:    cfg.TracingExporter,
		Endpoint:    cfg.TracingEndpoint,
		SampleRatio: cfg.TracingSample,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing)

	var collector *observability.Collector
	if cfg.MetricsEnabled {
		collector, err = observability.NewCollector(nil)
		if err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	inv := topology.NewInventory(provider)
	if err := inv.Refresh(ctx); err != nil {
		// The service still starts; sessions defer restoration and the
		// refresh loop keeps retrying.
		logging.Warn("initial topology refresh failed", "error", err)
	}

	client := buildBackend(cfg, inv)
	if collector != nil {
		client = backend.NewInstrumented(client, collector)
	}

	server := web.NewServer(web.Options{
		Inventory:      inv,
		Backend:        client,
		Collector:      collector,
		SessionTTL:     cfg.SessionTTL,
		RequestTimeout: cfg.RequestTimeout,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg.Listen)
	})

	if cfg.TopologyFile != "" && cfg.WatchTopology {
		g.Go(func() error {
			return watchTopologyFile(gctx, cfg.TopologyFile, inv)
		})
	}
	if cfg.TopologyFile == "" && cfg.RefreshInterval > 0 {
		g.Go(func() error {
			pollTopology(gctx, cfg.RefreshInterval, inv)
			return nil
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logging.Info("shutdown complete")
	return nil
}

func buildProvider(cfg *config.Config) (topology.Provider, error) {
	if cfg.TopologyFile != "" {
		return topology.NewFileProvider(cfg.TopologyFile), nil
	}
	return topology.NewHTTPProvider(cfg.TopologyURL, cfg.RequestTimeout), nil
}

func buildBackend(cfg *config.Config, inv *topology.Inventory) backend.Client {
	if cfg.BackendMode == "http" {
		return backend.NewHTTPClient(cfg.BackendURL, cfg.RequestTimeout)
	}
	return simgraph.New(inv)
}

// watchTopologyFile reloads the snapshot when the file changes on disk.
// Events are debounced so editors that write in bursts trigger one reload.
func watchTopologyFile(ctx context.Context, path string, inv *topology.Inventory) error {
	sw, err := watcher.NewSnapshotWatcher(path)
	if err != nil {
		return fmt.Errorf("creating topology watcher: %w", err)
	}
	if err := sw.Start(ctx); err != nil {
		return fmt.Errorf("starting topology watcher: %w", err)
	}
	defer sw.Stop()

	deb := watcher.NewDebouncer(sw.Events(), 500*time.Millisecond, 5*time.Second)
	deb.Start(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-deb.Output():
			if !ok {
				return nil
			}
			if err := inv.Refresh(ctx); err != nil {
				logging.Warn("topology reload failed", "path", path, "error", err)
			}
		}
	}
}

// pollTopology refreshes from the upstream API on a fixed interval
func pollTopology(ctx context.Context, interval time.Duration, inv *topology.Inventory) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := inv.Refresh(ctx); err != nil {
				logging.Warn("topology refresh failed", "error", err)
			}
		}
	}
}
