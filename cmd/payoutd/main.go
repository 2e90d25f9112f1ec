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
	"go.uber.org/zap"

	"payouts/internal/config"
	cronrunner "payouts/internal/cron"
	"payouts/internal/db"
	"payouts/internal/gateway"
	"payouts/internal/handler"
	"payouts/internal/logger"
	"payouts/internal/metrics"
	"payouts/internal/models"
	"payouts/internal/notify"
	gormrepository "payouts/internal/repository/gorm"
	"payouts/internal/service"
)

func main() {
	cfgPath := os.Getenv("PAYOUT_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("PAYOUT_ENV_ONLY"); envOnlyRaw != "" {
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
	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	policy := &service.PolicyResolver{Config: cfg.Policy, Flags: settingsSvc}
	transferGateway := gateway.New(cfg.Gateway)
	notifier := notify.New(cfg.Notify)
	reg := metrics.NewRegistry()

	finalizerSvc := &service.PayoutFinalizerService{
		Repo:   store,
		Policy: policy,
		Logger: logger,
		Config: cfg.Finalizer,
		Flags:  settingsSvc,
	}
	sweepSvc := &service.EligibilitySweepService{
		Repo:    store,
		Policy:  policy,
		Notify:  notifier,
		Logger:  logger,
		Config:  cfg.Sweep,
		Flags:   settingsSvc,
		Metrics: reg,
	}
	processorSvc := &service.PayoutProcessorService{
		Repo:    store,
		Gateway: transferGateway,
		Notify:  notifier,
		Policy:  policy,
		Logger:  logger,
		Config:  cfg.Processor,
		Flags:   settingsSvc,
		Metrics: reg,
	}
	reserveSvc := &service.ReserveReleaseService{
		Repo:    store,
		Gateway: transferGateway,
		Notify:  notifier,
		Policy:  policy,
		Logger:  logger,
		Config:  cfg.Reserve,
		Flags:   settingsSvc,
		Metrics: reg,
	}
	chargebackSvc := &service.ChargebackService{
		Repo:    store,
		Reserve: reserveSvc,
		Logger:  logger,
	}
	reviewSvc := &service.ReviewWorkflowService{
		Repo:   store,
		Notify: notifier,
		Logger: logger,
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
	payoutHandler := &handler.PayoutHandler{Repo: store, Review: reviewSvc}
	payoutHandler.Register(engine)
	chargebackHandler := &handler.ChargebackHandler{Repo: store, Service: chargebackSvc}
	chargebackHandler.Register(engine)
	pipelineHandler := &handler.PipelineHandler{
		Repo:      store,
		Finalizer: finalizerSvc,
		Sweep:     sweepSvc,
		Processor: processorSvc,
		Reserve:   reserveSvc,
	}
	pipelineHandler.Register(engine)
	settingsHandler := &handler.SettingsHandler{Repo: store, Settings: settingsSvc}
	settingsHandler.Register(engine)
	engine.GET("/metrics", gin.WrapH(reg.Handler()))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx)
		jobs := []struct {
			name string
			spec string
			run  func(context.Context, string) (service.RunResult, error)
		}{
			{models.RunJobFinalizer, cfg.Cron.Finalizer, finalizerSvc.RunOnce},
			{models.RunJobSweep, cfg.Cron.Sweep, sweepSvc.RunOnce},
			{models.RunJobProcessor, cfg.Cron.Processor, processorSvc.ProcessEligiblePayouts},
			{models.RunJobReserve, cfg.Cron.Reserve, reserveSvc.ProcessReserveReleases},
		}
		for _, j := range jobs {
			j := j
			_, err := cronRunner.Add(j.name, j.spec, func(ctx context.Context) {
				result, err := j.run(ctx, models.RunTriggerCron)
				if err != nil {
					logger.Warn("cron run failed", zap.String("job", j.name), zap.Error(err))
					return
				}
				if result.Processed > 0 || result.Held > 0 || result.Released > 0 ||
					result.Forfeited > 0 || result.Errors > 0 || result.Conflicts > 0 {
					logger.Info("cron run done",
						zap.String("job", j.name),
						zap.Int("processed", result.Processed),
						zap.Int("held", result.Held),
						zap.Int("released", result.Released),
						zap.Int("forfeited", result.Forfeited),
						zap.Int("errors", result.Errors),
						zap.Int("conflicts", result.Conflicts),
					)
				}
			})
			if err != nil {
				logger.Warn("cron register failed", zap.String("job", j.name), zap.Error(err))
			}
		}
		cronRunner.Start()
		defer cronRunner.Stop()
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
