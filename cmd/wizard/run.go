package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/dnscache"

	wizard "github.com/wizardlabs/wizard/internal"
	"github.com/wizardlabs/wizard/internal/auth"
	"github.com/wizardlabs/wizard/internal/backend"
	"github.com/wizardlabs/wizard/internal/backend/cloud"
	"github.com/wizardlabs/wizard/internal/backend/local"
	"github.com/wizardlabs/wizard/internal/circuitbreaker"
	"github.com/wizardlabs/wizard/internal/classify"
	"github.com/wizardlabs/wizard/internal/config"
	"github.com/wizardlabs/wizard/internal/dispatch"
	"github.com/wizardlabs/wizard/internal/gateway"
	"github.com/wizardlabs/wizard/internal/pairing"
	"github.com/wizardlabs/wizard/internal/policy"
	"github.com/wizardlabs/wizard/internal/ratelimit"
	"github.com/wizardlabs/wizard/internal/server"
	"github.com/wizardlabs/wizard/internal/storage/sqlite"
	"github.com/wizardlabs/wizard/internal/syncer"
	"github.com/wizardlabs/wizard/internal/syncer/providers"
	"github.com/wizardlabs/wizard/internal/telemetry"
	"github.com/wizardlabs/wizard/internal/worker"
)

func run(configPath string) error {
	log := slog.Default()
	server.Version = version

	// Config with hot reload. Only the cloud kill switch applies live;
	// everything else takes effect on restart.
	var enforcer *policy.Enforcer
	watcher, err := config.NewWatcher(configPath, func(c *config.Config) {
		if enforcer != nil {
			enforcer.SetCloudEnabled(cloudEnabled(c))
		}
	}, log)
	if err != nil {
		return err
	}
	cfg := watcher.Current()

	log.Info("starting wizard", "version", version, "addr", cfg.Server.Addr)

	// Open database
	store, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	// Shared DNS cache for outbound backends and providers.
	resolver := &dnscache.Resolver{}

	// Backends
	localBackend := local.New(cfg.Gateway.LocalURL, cfg.Gateway.LocalTimeout, resolver)
	var cloudBackend backend.Backend
	enabled := cloudEnabled(cfg)
	if enabled {
		cloudBackend = cloud.New(cfg.Gateway.CloudKey, cfg.Gateway.CloudURL, cfg.Gateway.CloudTimeout, resolver)
	} else {
		log.Info("cloud backend disabled", "local_only", cfg.Policy.LocalOnly, "key_present", cfg.Gateway.CloudKey != "")
	}

	// Policy, cost, breakers
	enforcer = policy.New(policy.Config{CloudEnabled: enabled, DailyBudget: cfg.Gateway.DailyBudget})
	cost := gateway.NewCostTracker(cfg.Gateway.DailyBudget, cfg.Gateway.MonthlyBudget, cfg.Gateway.RequestCap)
	breakers := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())

	// Usage recording runs on its own worker so completions never block on
	// the database.
	usage := worker.NewUsageRecorder(store)

	gw := gateway.New(gateway.Config{
		GeneralModel: cfg.Gateway.GeneralModel,
		CodeModel:    cfg.Gateway.CodeModel,
		CloudModel:   cfg.Gateway.CloudModel,
	}, gateway.Deps{
		Classifier: classify.New(),
		Enforcer:   enforcer,
		Cost:       cost,
		Quota:      gateway.NewQuotaTracker(nil),
		Breakers:   breakers,
		Local:      localBackend,
		Cloud:      cloudBackend,
		Usage:      usage,
		Log:        log,
	})

	dispatcher := dispatch.New(dispatch.Config{ShellEnabled: true})

	// Auth and pairing
	deviceAuth, err := auth.NewDeviceAuth(store)
	if err != nil {
		return err
	}
	pairAddr := cfg.Pairing.Address
	if pairAddr == "" {
		pairAddr = "http://localhost" + cfg.Server.Addr
	}
	pairingMgr := pairing.New(store, pairAddr, cfg.Pairing.CodeTTL, log)

	limiter := ratelimit.New(nil, nil)

	// Sync
	factory := syncer.NewFactory()
	providers.RegisterDefaults(factory)
	creds := syncer.NewCredentialManager(store)
	queue := syncer.NewEventQueue(
		func(_ context.Context, provider string, events []wizard.SyncEvent) error {
			log.Debug("sync events delivered", "provider", provider, "count", len(events))
			return nil
		},
		time.Duration(cfg.Sync.DebounceSeconds)*time.Second,
		cfg.Sync.BatchSize,
		log,
	)
	orch := syncer.New(factory, creds, store, queue, log)
	var syncKeys []string
	for _, p := range cfg.Sync.Providers {
		if !p.IsEnabled() {
			continue
		}
		orch.Configure(p.Key, syncer.ProviderConfig{Key: p.Key, BaseURL: p.BaseURL, Options: p.Options})
		syncKeys = append(syncKeys, p.Key)
	}

	// Telemetry
	var (
		metrics  *telemetry.Metrics
		gatherer prometheus.Gatherer
	)
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metrics = telemetry.NewMetrics(reg)
		gatherer = reg
	}
	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(context.Background(),
			cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(ctx) //nolint:errcheck
		}()
	}

	// Background workers
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	runner := worker.NewRunner(
		usage,
		worker.NewSyncFlusher(queue),
		worker.NewMaintenance(pairingMgr, limiter, breakers),
		worker.NewUsagePruner(store),
	)
	workerDone := make(chan error, 1)
	go func() { workerDone <- runner.Run(workerCtx) }()
	go watcher.Watch(workerCtx) //nolint:errcheck

	// Sampled gauges that have no natural increment site.
	if metrics != nil {
		go func() {
			tick := time.NewTicker(15 * time.Second)
			defer tick.Stop()
			for {
				select {
				case <-workerCtx.Done():
					return
				case <-tick.C:
					metrics.UsageQueueLength.Set(float64(usage.Len()))
					for b, state := range breakers.States() {
						var v float64
						if state == "open" {
							v = 1
						}
						metrics.BreakerOpen.WithLabelValues(b).Set(v)
					}
				}
			}
		}()
	}

	handler := server.New(server.Deps{
		Auth:       deviceAuth,
		Gateway:    gw,
		Dispatcher: dispatcher,
		Limiter:    limiter,
		Pairing:    pairingMgr,
		Sync:       orch,
		Store:      store,
		Policy:     enforcer,
		Breakers:   breakers,
		Metrics:    metrics,
		Gatherer:   gatherer,
		ReadyCheck: store.Ping,
		Features: server.Features{
			CloudEnabled:  enabled,
			ShellEnabled:  true,
			SyncProviders: syncKeys,
		},
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info("wizard ready", "addr", srv.Addr, "cloud", enabled, "sync_providers", syncKeys)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig)
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Stop workers after the HTTP server has drained; the usage recorder
	// and sync flusher drain their queues on cancellation.
	stopWorkers()
	select {
	case err := <-workerDone:
		if err != nil {
			log.Warn("worker shutdown", "error", err)
		}
	case <-shutdownCtx.Done():
		log.Warn("worker shutdown timed out")
	}

	log.Info("wizard stopped")
	return nil
}

// cloudEnabled decides whether the cloud path is usable at all: the policy
// must allow it, local-only must be off, and a key must be present.
func cloudEnabled(cfg *config.Config) bool {
	return cfg.Policy.CloudEnabled && !cfg.Policy.LocalOnly && cfg.Gateway.CloudKey != ""
}
