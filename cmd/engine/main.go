package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"tradepool/internal/config"
	cronrunner "tradepool/internal/cron"
	"tradepool/internal/db"
	"tradepool/internal/handler"
	"tradepool/internal/identity"
	"tradepool/internal/ledger"
	"tradepool/internal/logger"
	gormrepository "tradepool/internal/repository/gorm"
	"tradepool/internal/service"

	_ "tradepool/docs"
)

func main() {
	cfgPath := os.Getenv("TP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("TP_ENV_ONLY"); envOnlyRaw != "" {
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

	lc := initLedgerClient(cfg.Ledger, logger)
	var ledgerGW ledger.Gateway
	if lc != nil {
		ledgerGW = lc
	}
	var identityResolver identity.Resolver
	if base := strings.TrimSpace(cfg.Identity.BaseURL); base != "" {
		identityResolver = &identity.Client{
			BaseURL: base,
			HTTP:    &http.Client{Timeout: cfg.Identity.Timeout},
		}
	}

	cycleEngine := &service.CycleEngine{
		Repo:   store,
		Ledger: ledgerGW,
		Logger: logger,
		Config: cfg.Cycle,
	}
	allocator := &service.PoolAllocator{
		Repo:      store,
		Ledger:    ledgerGW,
		Identity:  identityResolver,
		Engine:    cycleEngine,
		Logger:    logger,
		Purchase:  cfg.Purchase,
		Insurance: cfg.Insurance,
	}
	scheduler := &service.Scheduler{
		Repo:   store,
		Engine: cycleEngine,
		Logger: logger,
		Config: cfg.Cycle,
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
	if lc != nil {
		healthHandler.Ledger = lc
	}
	healthHandler.Register(engine)
	blockHandler := &handler.BlockHandler{Repo: store, Allocator: allocator}
	blockHandler.Register(engine)
	poolHandler := &handler.PoolHandler{Repo: store, Allocator: allocator}
	poolHandler.Register(engine)
	cycleHandler := &handler.CycleHandler{Repo: store, Engine: cycleEngine}
	cycleHandler.Register(engine)
	categoryHandler := &handler.CategoryHandler{Repo: store}
	categoryHandler.Register(engine)
	reportHandler := &handler.ReportHandler{Repo: store}
	reportHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Jobs.Enabled {
		jobs := []struct {
			name string
			spec string
			run  func(context.Context) error
		}{
			{"start_due_cycles", cfg.Jobs.StartDue, scheduler.StartDueCycles},
			{"complete_due_cycles", cfg.Jobs.CompleteDue, scheduler.CompleteDueCycles},
			{"replenish_pools", cfg.Jobs.Replenish, scheduler.ReplenishPools},
			{"weekly_report", cfg.Jobs.Report, scheduler.Report},
		}
		for _, j := range jobs {
			if _, err := cronRunner.Add(j.name, j.spec, j.run); err != nil {
				logger.Warn("cron register failed",
					zap.String("job", j.name),
					zap.String("spec", j.spec),
					zap.Error(err),
				)
			}
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	} else {
		logger.Info("scheduler jobs disabled")
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

func initLedgerClient(cfg config.LedgerConfig, logger *zap.Logger) *ledger.Client {
	base := strings.TrimSpace(cfg.BaseURL)
	apiKey := strings.TrimSpace(cfg.APIKey)
	if base == "" || apiKey == "" {
		if logger != nil {
			logger.Warn("ledger not configured (balance movements disabled)")
		}
		return nil
	}

	c := &ledger.Client{
		BaseURL: base,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: cfg.Timeout},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Login(ctx); err != nil {
		if logger != nil {
			logger.Warn("ledger login failed (will retry per request)", zap.Error(err))
		}
		return c
	}
	if logger != nil {
		logger.Info("ledger login ok")
	}
	return c
}
