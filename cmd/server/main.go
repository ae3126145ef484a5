package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"marketpulse/internal/ai"
	"marketpulse/internal/alert"
	"marketpulse/internal/config"
	cronrunner "marketpulse/internal/cron"
	"marketpulse/internal/db"
	"marketpulse/internal/enrich"
	"marketpulse/internal/handler"
	"marketpulse/internal/logger"
	"marketpulse/internal/market"
	"marketpulse/internal/repository"
	gormrepository "marketpulse/internal/repository/gorm"
	memoryrepository "marketpulse/internal/repository/memory"
	"marketpulse/internal/source"
	"marketpulse/internal/store"
	"marketpulse/internal/threat"
	"marketpulse/internal/trading"
	"marketpulse/internal/tts"
	"marketpulse/internal/ws"
)

func main() {
	cfgPath := os.Getenv("MP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("MP_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repo repository.Repository
	var dbConn *db.DB
	if cfg.DB.Enabled {
		dbConn, err = db.Open(cfg.DB)
		if err != nil {
			logger.Fatal("db open failed", zap.Error(err))
		}
		defer db.Close(dbConn)
		if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
			logger.Warn("failed to set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(dbConn); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
		repo = gormrepository.New(dbConn.Gorm)
	} else {
		logger.Info("db disabled, alerts and archive held in memory")
		repo = memoryrepository.New()
	}

	notifStore := store.New(cfg.Store.RetentionCap, logger)
	if cfg.Store.ArchiveToDB {
		notifStore.SetArchiver(&gormrepository.EvictionArchiver{Repo: repo, Logger: logger})
	}

	adapter := market.NewAdapter(cfg.Exchange, logger)
	aiClient := ai.New(cfg.Enrich, logger)
	enricher := enrich.New(notifStore, aiClient, cfg.Enrich, logger)
	tradingClient := trading.NewClient(cfg.Trading)

	snap := source.LoadSnapshot(cfg.Sources.SnapshotPath, logger)
	sourceHub := source.NewHub(enricher, snap, logger)

	if cfg.Sources.Social.Enabled {
		sourceHub.Register(&source.SocialCollector{
			Logger:     logger,
			Config:     cfg.Sources.Social,
			Tracker:    source.NewTracker("social", snap),
			HighValue:  cfg.Sources.HighValue,
			BackoffCap: cfg.Sources.BackoffCap,
		})
	}
	if cfg.Sources.News.Enabled {
		sourceHub.Register(&source.NewsCollector{
			Logger:     logger,
			Config:     cfg.Sources.News,
			Tracker:    source.NewTracker("news", snap),
			BackoffCap: cfg.Sources.BackoffCap,
		})
	}
	if cfg.Sources.Technical.Enabled {
		sourceHub.Register(&source.TechnicalCollector{
			Adapter:    adapter,
			Store:      notifStore,
			Logger:     logger,
			Config:     cfg.Sources.Technical,
			Tracker:    source.NewTracker("technical", snap),
			BackoffCap: cfg.Sources.BackoffCap,
		})
	}
	if cfg.Sources.PriceUpdate.Enabled {
		sourceHub.Register(&source.PriceUpdateCollector{
			Adapter:    adapter,
			Positions:  tradingClient,
			Logger:     logger,
			Config:     cfg.Sources.PriceUpdate,
			Tracker:    source.NewTracker("price_update", snap),
			BackoffCap: cfg.Sources.BackoffCap,
		})
	}

	wsHub := ws.NewHub(cfg.Delivery, adapter, logger)
	wsHub.Symbols = cfg.Sources.Technical.Symbols
	wsHub.Timeframe = cfg.Sources.Technical.Timeframe
	wsHub.OriginPatterns = cfg.Server.CORSOrigins
	notifStore.SetSink(wsHub.Sink())

	ttsEngine := tts.NewEngine(cfg.TTS, logger, tts.BuildProviders(cfg.TTS, nil)...)

	alertEngine := &alert.Engine{
		Repo:        repo,
		Adapter:     adapter,
		Enricher:    enricher,
		Logger:      logger,
		Config:      cfg.Alerts,
		Timeframe:   cfg.Sources.Technical.Timeframe,
		CandleLimit: cfg.Sources.Technical.CandleLimit,
	}

	var detector *threat.Detector
	if cfg.Threat.Enabled {
		detector = &threat.Detector{
			Ticks:     sourceHub.SubscribeTicks(128),
			Positions: tradingClient,
			Enricher:  enricher,
			Logger:    logger,
			Config:    cfg.Threat,
		}
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(handler.CORS(cfg.Server.CORSOrigins))
	// Position IDs embed encoded slashes; keep them escaped until the handler.
	engine.UseRawPath = true

	healthHandler := &handler.HealthHandler{}
	if dbConn != nil {
		healthHandler.DB = dbConn.Gorm
	}
	healthHandler.Register(engine)

	startedAt := time.Now()
	(&handler.NotificationHandler{Store: notifStore, Enricher: enricher}).Register(engine)
	(&handler.AlertHandler{Repo: repo, Adapter: adapter}).Register(engine)
	(&handler.TradingHandler{Client: tradingClient}).Register(engine)
	(&handler.MarketHandler{Adapter: adapter}).Register(engine)
	(&handler.VoiceHandler{Engine: ttsEngine}).Register(engine)
	(&handler.SystemHandler{
		Sources:   sourceHub,
		Delivery:  wsHub,
		Store:     notifStore,
		StartedAt: startedAt,
		BaseCtx:   ctx,
	}).Register(engine)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws/notifications", wsHub.Serve(ws.TopicNotifications))
	engine.GET("/ws/prices", wsHub.Serve(ws.TopicPrices))
	engine.GET("/ws/market-data", wsHub.Serve(ws.TopicMarketData))

	go func() {
		if err := notifStore.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("store loop stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := sourceHub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("source hub stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := wsHub.RunTicks(ctx, sourceHub.SubscribeTicks(256)); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("tick fanout stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := wsHub.RunMarketData(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("market data publisher stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := alertEngine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("alert engine stopped", zap.Error(err))
		}
	}()
	if detector != nil {
		go func() {
			if err := detector.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("threat detector stopped", zap.Error(err))
			}
		}()
	}

	cronRunner := cronrunner.New(logger, ctx)
	_, err = cronRunner.Add("@every 1h", func(ctx context.Context) {
		pruned, err := repo.PruneArchive(ctx, cfg.Store.RetentionCap*10)
		if err != nil {
			logger.Warn("archive prune failed", zap.Error(err))
			return
		}
		if pruned > 0 {
			logger.Info("archive pruned", zap.Int64("rows", pruned))
		}
	})
	if err != nil {
		logger.Warn("cron register archive prune failed", zap.Error(err))
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	if err := snap.Flush(); err != nil {
		logger.Warn("final snapshot flush failed", zap.Error(err))
	}
	logger.Info("bye")
}
