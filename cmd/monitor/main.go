package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mediameter/internal/collector"
	"mediameter/internal/config"
	cronrunner "mediameter/internal/cron"
	"mediameter/internal/db"
	"mediameter/internal/handler"
	"mediameter/internal/logger"
	"mediameter/internal/matcher"
	"mediameter/internal/pipeline"
	"mediameter/internal/registry"
	gormrepository "mediameter/internal/repository/gorm"
	"mediameter/internal/service"
)

func main() {
	cfgPath := os.Getenv("MM_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("MM_ENV_ONLY"); envOnlyRaw != "" {
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

	dbConn, err := db.Open(cfg.DB)
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

	store := gormrepository.New(dbConn.Gorm)
	registryProvider := &registry.Provider{Repo: store}
	textMatcher := &matcher.Matcher{SnippetRunes: cfg.Matcher.SnippetRunes}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runners := map[string]*pipeline.Runner{}
	addRunner := func(col collector.Collector, interval time.Duration) {
		runners[col.Name()] = &pipeline.Runner{
			Collector:   col,
			Repo:        store,
			Registry:    registryProvider,
			Matcher:     textMatcher,
			Logger:      logger,
			Interval:    interval,
			BackoffBase: cfg.Pipeline.BackoffBase,
			BackoffMax:  cfg.Pipeline.BackoffMax,
		}
	}

	if cfg.Collectors.Feeds.Enabled {
		addRunner(collector.NewFeedCollector(cfg.Collectors.Feeds, logger), cfg.Collectors.Feeds.PollInterval)
	}
	if cfg.Collectors.Discord.Enabled {
		token := strings.TrimSpace(os.Getenv(cfg.Collectors.Discord.BotTokenEnv))
		if token == "" {
			logger.Warn("discord collector enabled but bot token env is empty",
				zap.String("env", cfg.Collectors.Discord.BotTokenEnv))
		} else {
			session, err := discordgo.New("Bot " + token)
			if err != nil {
				logger.Fatal("discord session init failed", zap.Error(err))
			}
			addRunner(collector.NewDiscordCollector(cfg.Collectors.Discord, session, logger), cfg.Collectors.Discord.PollInterval)
		}
	}
	if cfg.Collectors.Social.Enabled {
		token := strings.TrimSpace(os.Getenv(cfg.Collectors.Social.AccessTokenEnv))
		addRunner(collector.NewSocialCollector(cfg.Collectors.Social, registryProvider, token, logger), cfg.Collectors.Social.PollInterval)
	}
	if len(runners) == 0 {
		logger.Warn("no collectors enabled, serving API only")
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	entityHandler := &handler.EntityHandler{Repo: store, Logger: logger}
	entityHandler.Register(engine)
	mentionHandler := &handler.MentionHandler{Repo: store, Logger: logger}
	mentionHandler.Register(engine)
	collectorHandler := &handler.CollectorHandler{
		Repo:    store,
		Runners: runners,
		Logger:  logger,
		BaseCtx: ctx,
	}
	collectorHandler.Register(engine)
	statsHandler := &handler.StatsHandler{Repo: store}
	statsHandler.Register(engine)

	var wg sync.WaitGroup
	for _, runner := range runners {
		runner := runner
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("runner stopped", zap.Error(err))
			}
		}()
	}

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Aggregates.Enabled {
		aggregates := &service.AggregateService{
			Repo:         store,
			Logger:       logger,
			LookbackDays: cfg.Aggregates.LookbackDays,
		}
		if _, err := cronRunner.Add(cfg.Aggregates.RebuildSpec, func(ctx context.Context) {
			if err := aggregates.RunOnce(ctx); err != nil {
				logger.Warn("aggregate rebuild failed", zap.Error(err))
			}
		}); err != nil {
			logger.Warn("cron register aggregate rebuild failed", zap.Error(err))
		}
	}
	if cfg.Retention.Enabled {
		retention := &service.RetentionService{
			Repo:        store,
			Logger:      logger,
			RunKeepDays: cfg.Retention.RunKeepDays,
		}
		if _, err := cronRunner.Add(cfg.Retention.CleanupSpec, func(ctx context.Context) {
			if err := retention.RunOnce(ctx); err != nil {
				logger.Warn("run retention cleanup failed", zap.Error(err))
			}
		}); err != nil {
			logger.Warn("cron register retention cleanup failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	// Let in-flight collection cycles finish and record their runs.
	wg.Wait()
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
