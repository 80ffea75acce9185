package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jengzang/trackmap/internal/analysis"
	"github.com/jengzang/trackmap/internal/analysis/foundation"
	"github.com/jengzang/trackmap/internal/api"
	"github.com/jengzang/trackmap/internal/config"
	"github.com/jengzang/trackmap/internal/handler"
	"github.com/jengzang/trackmap/internal/logging"
	"github.com/jengzang/trackmap/internal/middleware"
	"github.com/jengzang/trackmap/internal/render"
	"github.com/jengzang/trackmap/internal/service"
	"github.com/jengzang/trackmap/internal/supervisor"
	"github.com/jengzang/trackmap/internal/tile"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "trackmap:", err)
		os.Exit(1)
	}
}

func run() error {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	stores, err := service.OpenStores(cfg.Database.PointsPath, cfg.Database.DensityDir, cfg.Database.MaxOpenConns, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	density, err := service.NewDensityService(stores.Density, logger)
	if err != nil {
		return err
	}
	points := service.NewPointService(stores.Points, density, logger)

	engine := analysis.NewEngine(logger,
		foundation.NewNeighborBackfillAnalyzer(stores.Points, cfg.Backfill.BatchSize, logger),
		service.NewDensityRecomputeJob(points),
	)

	tiles, err := tile.NewHTTPSource(tile.Config{
		URLTemplate:       cfg.Tiles.URLTemplate,
		CacheDir:          cfg.Tiles.CacheDir,
		UserAgent:         cfg.Tiles.UserAgent,
		RequestsPerSecond: cfg.Tiles.RequestsPerSecond,
		Burst:             cfg.Tiles.Burst,
		Timeout:           cfg.Tiles.Timeout,
	}, logger)
	if err != nil {
		return err
	}

	colorMode, err := render.ParseColorMode(cfg.Render.ColorMode)
	if err != nil {
		return err
	}
	pipeline := render.NewPipeline(render.PipelineConfig{
		Tiles:               tiles,
		TileConcurrency:     cfg.Tiles.FetchConcurrency,
		RedrawOnTranslation: cfg.Tiles.RedrawOnTranslation,
		TileLockTimeout:     cfg.Render.TileLockTimeout,
		Density:             func(zoom int) render.DensityGrid { return density.StoreForZoom(zoom) },
		DensityRefreshBatch: cfg.Render.DensityRefreshBatch,
		DensityLockTimeout:  cfg.Render.DensityLockTimeout,
		Points:              points,
		Point: render.PointLayerConfig{
			ColorMode:           colorMode,
			ColorSeed:           cfg.Render.ColorSeed,
			LineThresholdMillis: cfg.Render.LineThreshold.Milliseconds(),
		},
		PointLockTimeout: cfg.Render.PointLockTimeout,
		Attribution:      cfg.Tiles.Attribution,
	}, logger)

	// 初始化路由
	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerMinute, time.Minute)
	router := api.SetupRouter(api.Handlers{
		Points:      handler.NewPointHandler(points),
		Density:     handler.NewDensityHandler(density),
		Maintenance: handler.NewMaintenanceHandler(ctx, engine),
		Render:      handler.NewRenderHandler(pipeline, points, cfg.Render, logger),
	}, limiter, cfg.Server.JWTSecret, logger)
	if cfg.Server.JWTSecret == "" {
		logger.Warn("authentication disabled, set server.jwt_secret to protect mutating routes")
	}

	server := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(logging.Slog(logger), supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))
	tree.AddAPIService(supervisor.NewRateLimiterService(limiter))
	if cfg.Backfill.RunAtStart || cfg.Backfill.Interval > 0 {
		tree.AddMaintenanceService(supervisor.NewJobService(engine, foundation.NeighborBackfillName, cfg.Backfill.Interval, logger))
	}

	// 启动服务器
	logger.Info("server starting", zap.String("addr", cfg.Server.Port))
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
