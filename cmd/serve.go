package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tsphub/internal/adminapi"
	"github.com/nextlevelbuilder/tsphub/internal/catalog"
	"github.com/nextlevelbuilder/tsphub/internal/config"
	"github.com/nextlevelbuilder/tsphub/internal/detector"
	"github.com/nextlevelbuilder/tsphub/internal/hub"
	"github.com/nextlevelbuilder/tsphub/internal/managedstore"
	"github.com/nextlevelbuilder/tsphub/internal/mcp"
	"github.com/nextlevelbuilder/tsphub/internal/planner"
	"github.com/nextlevelbuilder/tsphub/internal/sessions"
	"github.com/nextlevelbuilder/tsphub/internal/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the hub: connect to configured back ends and serve the Front Door",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

// runServe follows the teacher's cmd/gateway.go runGateway shape:
// structured logging setup, config load, component wiring, signal-driven
// graceful shutdown — generalized from a chat gateway's channel/agent
// wiring to the hub's catalog/detector/planner/router wiring.
func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("config invalid", "error", err)
		os.Exit(2)
	}

	if !cfg.Enabled {
		slog.Info("hub disabled (HUB_ENABLED=false); exiting")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, os.Getenv("HUB_TELEMETRY_ENABLED") == "true", Version)
	if err != nil {
		slog.Warn("telemetry init failed; continuing without it", "error", err)
		shutdownTelemetry = func(context.Context) error { return nil }
	}
	defer shutdownTelemetry(context.Background())

	hints, err := catalog.LoadHints(cfg.CategoryMapPath)
	if err != nil {
		slog.Error("category map load failed", "error", err)
		os.Exit(2)
	}
	cat := catalog.NewMap(hints)
	if stop, err := cat.WatchHints(cfg.CategoryMapPath); err != nil {
		slog.Warn("category map watch unavailable", "error", err)
	} else {
		defer stop()
	}

	backends := cfg.BackendServers
	var managed *managedstore.Store
	if cfg.PostgresDSN != "" {
		managed, err = managedstore.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			slog.Warn("managed store unavailable; continuing on file/env backends only", "error", err)
		} else {
			defer managed.Close()
			records, err := managed.ListBackends(ctx)
			if err != nil {
				slog.Warn("managed store: list backends failed", "error", err)
			}
			for _, rec := range records {
				if _, exists := backends[rec.Name]; !exists {
					backends[rec.Name] = rec.ToBackendConfig()
				}
			}
		}
	}

	router := mcp.NewRouter(cat, cfg.ClientTimeoutMS, 64)
	router.ConnectAll(ctx, backends)
	if router.ReadyCount() == 0 && !cfg.Fallback {
		slog.Error("fatal startup: no back-end reachable and fallback disabled")
		os.Exit(1)
	}

	supervisor := mcp.NewSupervisor(router, backends)
	go supervisor.Run(ctx)

	detCfg := detector.DefaultConfig()
	detCfg.DetectionBudgetMS = cfg.DetectionTimeoutMS
	det := detector.New(detCfg, time.Duration(cfg.DetectionCacheTTLSec)*time.Second, 4096)
	plCfg := planner.DefaultConfig()
	plCfg.MaxTools = cfg.MaxTools
	plCfg.DecisionCacheTTL = time.Duration(cfg.DecisionCacheTTLSec) * time.Second
	pl := planner.New(plCfg, cat)

	sessMgr := sessions.NewManager(30*time.Minute, cat.TotalTokenCost)
	go sessMgr.RunGC(ctx, 5*time.Minute)

	h := hub.New(cfg, cat, det, pl, router, sessMgr)

	var adminSrv *adminapi.Server
	if cfg.Gateway.Port > 0 {
		adminSrv = adminapi.New(cfg.Gateway, h)
		go func() {
			if err := adminSrv.Start(ctx); err != nil {
				slog.Error("adminapi server error", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)
		router.Shutdown()
		cancel()
	}()

	slog.Info("tsphub serving",
		"version", Version,
		"backends_ready", router.ReadyCount(),
		"backends_configured", len(backends),
		"tools", len(cat.All()),
	)

	<-ctx.Done()
	slog.Info("tsphub stopped")
}
