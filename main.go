package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streamcheck/work/batch"
	"streamcheck/work/client"
	"streamcheck/work/config"
	"streamcheck/work/convert"
	"streamcheck/work/fallback"
	"streamcheck/work/logger"
	"streamcheck/work/middleware"
	"streamcheck/work/monitor"
	"streamcheck/work/notify"
	"streamcheck/work/probe"
	"streamcheck/work/quality"
	"streamcheck/work/repository"
	"streamcheck/work/rewrite"
)

var Version = "v0.1.0"

// Server bundles the validation components behind the HTTP API.
type Server struct {
	cfg          *config.Config
	prober       *probe.Prober
	orchestrator *batch.Orchestrator
	advisor      *convert.Advisor
	validator    *quality.Validator
	selector     *fallback.Selector
	monitors     *monitor.Manager
	repo         repository.ChannelRepository
	store        *repository.SQLiteRepository
}

func main() {

	// load our config
	cfg := config.LoadConfig()
	logger.SetLogLevel(cfg.LogLevel)
	if cfg.Debug {
		logger.SetLogLevel("DEBUG")
	}

	// shared HTTP client for all outbound probes
	httpClient := client.NewHeaderSettingClient(cfg)

	// cache-busting rewriter and the probe built on it
	rewriter := rewrite.New(cfg)
	prober := probe.New(cfg, httpClient, rewriter)

	// notification fan-out with the static subscriber set
	notifier := notify.NewNotifier(256,
		&notify.LogSubscriber{ObfuscateUrls: cfg.ObfuscateUrls},
		&notify.MetricsSubscriber{},
	)
	notifier.Start()

	validator := quality.New(cfg, httpClient)
	selector := fallback.New(cfg, validator, notifier)
	orchestrator := batch.New(cfg, prober)
	advisor := convert.New(cfg, prober)

	monitors := monitor.NewManager(cfg, validator, notifier)
	monitors.Start()

	srv := &Server{
		cfg:          cfg,
		prober:       prober,
		orchestrator: orchestrator,
		advisor:      advisor,
		validator:    validator,
		selector:     selector,
		monitors:     monitors,
	}

	// the SQLite catalog is optional; without it only inline channel lists work
	store, err := repository.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		logger.Warn("Channel database unavailable (%v), paginated runs need inline channels", err)
	} else {
		srv.store = store
		srv.repo = store
		defer store.Close()
	}

	router := mux.NewRouter()
	srv.setupRoutes(router)
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	addr := fmt.Sprintf(":%d", cfg.ListenPort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      middleware.Compression(router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // batch runs answer synchronously
	}

	logger.Info("Starting streamcheck %s", Version)
	logger.Info("  - Base URL: %s", cfg.BaseURL)
	logger.Info("  - Worker Threads: %d", cfg.WorkerThreads)
	logger.Info("  - Batch Size: %d", cfg.BatchSize)
	logger.Info("  - Check Timeout: %s", cfg.CheckTimeout)
	logger.Info("  - Max Retries: %d", cfg.MaxRetries)
	logger.Info("  - Monitor Interval: %s", cfg.MonitorInterval)
	logger.Info("  - UID Cache Expiry: %s", cfg.UIDCacheExpiry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed: %v", err)
	}

	monitors.Stop()
	notifier.Stop()
}
