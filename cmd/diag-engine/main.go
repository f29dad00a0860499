package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentrastack/sentra-diag/internal/api"
	"github.com/sentrastack/sentra-diag/internal/cache"
	"github.com/sentrastack/sentra-diag/internal/config"
	"github.com/sentrastack/sentra-diag/internal/engine"
	"github.com/sentrastack/sentra-diag/internal/knowledge"
	"github.com/sentrastack/sentra-diag/internal/metrics"
	"github.com/sentrastack/sentra-diag/internal/parser"
	"github.com/sentrastack/sentra-diag/internal/rules"
	"github.com/sentrastack/sentra-diag/internal/services"
	"github.com/sentrastack/sentra-diag/internal/session"
	"github.com/sentrastack/sentra-diag/internal/stats"
	"github.com/sentrastack/sentra-diag/internal/synth"
	"github.com/sentrastack/sentra-diag/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting sentra-diag", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled {
		provider, err := cache.NewMemoryProvider(cfg.Cache.TTL)
		if err != nil {
			logger.Warn("knowledge cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			defer provider.Close()
		}
	}

	var knowledgeStore knowledge.Store
	if cfg.Knowledge.IndexPath != "" {
		store, err := knowledge.OpenSQLiteStore(cfg.Knowledge.IndexPath, cfg.Knowledge.RelevanceFloor)
		if err != nil {
			logger.Warn("knowledge index unavailable, retrieval disabled",
				slog.String("path", cfg.Knowledge.IndexPath), slog.Any("error", err))
		} else {
			knowledgeStore = store
			defer store.Close()
			if version, err := store.Version(context.Background()); err == nil {
				logger.Info("knowledge index loaded", slog.String("version", version))
			}
		}
	}
	if knowledgeStore == nil {
		knowledgeStore = knowledge.NewMemoryStore(nil, "empty", cfg.Knowledge.RelevanceFloor)
	}

	matchers, err := rules.LoadDir(cfg.Rules.Dir, logger)
	if err != nil {
		logger.Error("failed to load rule packs", slog.Any("error", err))
		os.Exit(1)
	}

	enhancer := stats.NewEnhancer(cfg.Models.Path, cfg.Analysis.AnomalyContamination, cfg.Analysis.MinAnomalySamples, logger)

	retriever := knowledge.NewRetriever(knowledgeStore, cacheProvider, logger,
		cfg.Analysis.MaxKnowledgeQueries, cfg.Analysis.HealthyThreshold, cfg.Cache.TTL)

	var llmClient synth.Client
	if cfg.LLM.Endpoint != "" {
		llmClient = synth.NewHTTPClient(cfg.LLM.Endpoint, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout)
	} else {
		logger.Warn("no LLM endpoint configured, narratives use the deterministic template")
	}
	synthEngine := synth.NewEngine(llmClient, logger, 0)

	pipeline := engine.NewPipeline(logger, parser.NewRegistry(), matchers, enhancer, retriever, synthEngine)

	coordinator := session.NewCoordinator(logger, session.NewMemoryStore(), pipeline,
		cfg.Analysis.MaxConcurrentSessions, cfg.Analysis.SessionRetention, cfg.Analysis.WorkDir)

	diagService := services.NewDiagService(logger, coordinator)
	handler := api.NewHandler(logger, diagService, cfg.Server.MaxUploadBytes)

	server, err := api.NewServer(cfg.Server, handler)
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coordinator.StartReaper(ctx, cfg.Analysis.ReaperInterval)

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("sentra-diag stopped")
}
