package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	alhttp "github.com/agentlens/agentlens/internal/adapter/http"
	"github.com/agentlens/agentlens/internal/adapter/jsonl"
	almcp "github.com/agentlens/agentlens/internal/adapter/mcp"
	alnats "github.com/agentlens/agentlens/internal/adapter/nats"
	lensotel "github.com/agentlens/agentlens/internal/adapter/otel"
	"github.com/agentlens/agentlens/internal/adapter/ristretto"
	"github.com/agentlens/agentlens/internal/adapter/ws"
	"github.com/agentlens/agentlens/internal/config"
	"github.com/agentlens/agentlens/internal/logger"
	"github.com/agentlens/agentlens/internal/service"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}

	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"config", cfgPath,
		"port", cfg.Server.Port,
		"mcp_addr", cfg.MCP.Addr,
		"history_path", cfg.History.Path,
		"history_cap", cfg.History.Cap,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---

	store, err := jsonl.Open(cfg.History.Path, jsonl.Options{
		Cap:         cfg.History.Cap,
		MaxLogBytes: cfg.History.MaxLogSizeMB << 20,
	})
	if err != nil {
		return fmt.Errorf("history store: %w", err)
	}
	defer func() { _ = store.Close() }()
	slog.Info("history loaded", "depth", store.Len())

	cache, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	metrics, err := lensotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	var queue *alnats.Queue
	if cfg.NATS.Enabled {
		queue, err = alnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Close() }()
	}

	// --- Services ---

	hub := ws.NewHub()
	var recordSvc *service.RecordService
	if queue != nil {
		recordSvc = service.NewRecordService(store, queue, hub, metrics)
	} else {
		recordSvc = service.NewRecordService(store, nil, hub, metrics)
	}
	inspectSvc := service.NewInspectService(store, cache, metrics)

	if queue != nil {
		cancelSub, err := recordSvc.StartCallSubscriber(ctx)
		if err != nil {
			return fmt.Errorf("call subscriber: %w", err)
		}
		defer cancelSub()
		slog.Info("nats subscriber started", "url", cfg.NATS.URL)
	}

	// --- MCP ---

	mcpSrv := almcp.NewServer(almcp.ServerConfig{
		Addr:    cfg.MCP.Addr,
		Name:    cfg.MCP.Name,
		Version: cfg.MCP.Version,
		APIKey:  cfg.MCP.APIKey,
	}, almcp.ServerDeps{
		Calls: inspectSvc,
		Stats: inspectSvc,
	})

	// --- HTTP ---

	handlers := &alhttp.Handlers{
		Inspect: inspectSvc,
		Record:  recordSvc,
		Hub:     hub,
		Version: cfg.MCP.Version,
	}

	r := chi.NewRouter()
	r.Use(alhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(alhttp.RequestContext)
	r.Use(alhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(lensotel.HTTPMiddleware(cfg.Logging.Service))

	alhttp.MountRoutes(r, handlers)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting mcp server", "addr", cfg.MCP.Addr)
		return mcpSrv.Start()
	})

	g.Go(func() error {
		slog.Info("starting http server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := mcpSrv.Stop(shutdownCtx); err != nil {
			slog.Warn("mcp shutdown", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
