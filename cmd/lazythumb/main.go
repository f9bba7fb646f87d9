package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"lazythumb/internal/cache"
	"lazythumb/internal/capture"
	"lazythumb/internal/handlers"
	"lazythumb/internal/logging"
	"lazythumb/internal/media"
	"lazythumb/internal/metrics"
	"lazythumb/internal/middleware"
	"lazythumb/internal/startup"
	"lazythumb/internal/visibility"
)

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	metrics.InitializeMetrics(config.CacheBackend, config.MediaBackend)
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

	// Initialize cache
	ctx := context.Background()
	store, err := startup.OpenCache(ctx, config)
	if err != nil {
		startup.LogFatal("Failed to initialize cache: %v", err)
	}

	// Initialize decoder and encoder
	decoder, err := startup.OpenDecoder(config)
	if err != nil {
		startup.LogFatal("Failed to initialize decoder: %v", err)
	}
	encoder := media.NewEncoder(config.Encoder)
	logging.Info("  [OK] Encoder: %s", config.Encoder)

	// Surfaces share one viewport fed by the intersections endpoint
	manager := capture.NewManager(capture.Deps{
		Cache:      store,
		Factory:    decoder.Factory,
		Encoder:    encoder,
		Visibility: visibility.NewViewport(),
	}, capture.Options{
		Gate:      config.GateOptions(),
		Extractor: config.ExtractorSettings(),
		Log:       logging.With("component", "capture"),
	})

	collector := metrics.NewCollector(statsProvider(store, manager), config.StatsInterval)
	collector.Start()

	// Initialize handlers
	h := handlers.New(manager, store, config.SourcePolicy())

	// Setup router
	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	h.Register(router)

	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Logger(loggingConfig)(router)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// GET /api/surfaces/{id}?wait= holds the response open
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsRouter := http.NewServeMux()
		metricsRouter.Handle("/metrics", h.MetricsHandler())
		metricsSrv = &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           metricsRouter,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	go handleShutdown(srv, metricsSrv, shutdownDeps{
		manager:   manager,
		store:     store,
		decoder:   decoder,
		collector: collector,
	})

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-shutdownDone
}

// shutdownDone is closed once handleShutdown has released everything.
var shutdownDone = make(chan struct{})

func statsProvider(store cache.Store, manager *capture.Manager) metrics.StatsProvider {
	return metrics.StatsProviderFunc(func() metrics.Stats {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		stats := metrics.Stats{ActiveSessions: manager.Active()}
		cs, err := store.Stats(ctx)
		if err != nil {
			logging.Warn("Failed to read cache stats: %v", err)
			return stats
		}
		stats.CacheEntries = cs.Entries
		stats.CacheBytes = cs.TotalBytes
		stats.CacheQuota = cs.QuotaBytes
		return stats
	})
}

type shutdownDeps struct {
	manager   *capture.Manager
	store     cache.Store
	decoder   *startup.Decoder
	collector *metrics.Collector
}

func handleShutdown(srv, metricsSrv *http.Server, deps shutdownDeps) {
	defer close(shutdownDone)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Unmounting surfaces")
	deps.manager.Close()
	startup.LogShutdownStepComplete("Surfaces unmounted")

	deps.collector.Stop()

	startup.LogShutdownStep("Releasing decoder")
	if err := deps.decoder.Close(); err != nil {
		logging.Warn("Decoder close error: %v", err)
	}
	media.ShutdownVips()
	startup.LogShutdownStepComplete("Decoder released")

	startup.LogShutdownStep("Closing cache")
	if err := deps.store.Close(); err != nil {
		logging.Warn("Cache close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Cache closed")
	}

	startup.LogShutdownComplete()
}
