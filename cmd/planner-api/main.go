package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/studyflow-app/planner-api/api/swagger"
	"github.com/studyflow-app/planner-api/internal/handler"
	internalmiddleware "github.com/studyflow-app/planner-api/internal/middleware"
	"github.com/studyflow-app/planner-api/internal/repository"
	"github.com/studyflow-app/planner-api/internal/service"
	"github.com/studyflow-app/planner-api/pkg/cache"
	"github.com/studyflow-app/planner-api/pkg/config"
	"github.com/studyflow-app/planner-api/pkg/database"
	"github.com/studyflow-app/planner-api/pkg/logger"
	corsmiddleware "github.com/studyflow-app/planner-api/pkg/middleware/cors"
	reqidmiddleware "github.com/studyflow-app/planner-api/pkg/middleware/requestid"
	"github.com/studyflow-app/planner-api/pkg/storage"
)

// @title StudyFlow Planner API
// @version 1.0.0
// @description Study schedule generation and plan management service
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching and async jobs degrade", "error", err)
		redisClient = nil
	}

	fileStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	validate := validator.New()

	courseRepo := repository.NewCourseRepository(db)
	prefRepo := repository.NewPreferenceRepository(db)
	planRepo := repository.NewPlanRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	tokenSvc := service.NewTokenService(cfg.JWT.Secret)
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	prefSvc := service.NewPreferenceService(prefRepo, validate, logr)
	plannerSvc := service.NewPlanGeneratorService(planRepo, sessionRepo, prefRepo, cacheRepo, metricsSvc, validate, logr, service.PlanGeneratorConfig{
		ProposalTTL:  cfg.Planner.ProposalTTL,
		MaxWeeks:     cfg.Planner.MaxWeeks,
		JobTTL:       cfg.Planner.JobTTL,
		JobWorkers:   cfg.Planner.JobWorkers,
		JobQueueSize: cfg.Planner.JobQueueSize,
		ListCacheTTL: cfg.Planner.ListCacheTTL,
	})
	exportSvc := service.NewPlanExportService(plannerSvc, fileStore, signer, service.PlanExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr, nil, nil)

	plannerHandler := handler.NewPlannerHandler(plannerSvc, courseSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	prefHandler := handler.NewPreferenceHandler(prefSvc)
	exportHandler := handler.NewExportHandler(exportSvc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	plannerSvc.StartWorkers(ctx)
	defer plannerSvc.StopWorkers()
	go runExportCleanup(ctx, exportSvc, cfg.Exports.CleanupInterval, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// The signed token is the credential: exported links must work without a
	// session, so the download route stays outside the JWT group.
	r.GET(cfg.APIPrefix+"/exports/download", exportHandler.Download)

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(tokenSvc))
	{
		api.GET("/courses", courseHandler.List)
		api.POST("/courses", courseHandler.Create)
		api.GET("/courses/:id", courseHandler.Get)
		api.PUT("/courses/:id", courseHandler.Update)
		api.DELETE("/courses/:id", courseHandler.Delete)

		api.GET("/preferences", prefHandler.Get)
		api.PUT("/preferences", prefHandler.Upsert)

		api.POST("/plans/generate", plannerHandler.Generate)
		api.POST("/plans/generate/async", plannerHandler.GenerateAsync)
		api.GET("/plans/jobs/:id", plannerHandler.JobStatus)
		api.POST("/plans", plannerHandler.Save)
		api.GET("/plans", plannerHandler.List)
		api.GET("/plans/:id", plannerHandler.Get)
		api.GET("/plans/:id/sessions", plannerHandler.Sessions)
		api.POST("/plans/:id/confirm", plannerHandler.Confirm)
		api.DELETE("/plans/:id", plannerHandler.Delete)
		api.POST("/plans/:id/export", exportHandler.Export)

		api.GET("/sessions", plannerHandler.Calendar)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

func runExportCleanup(ctx context.Context, exports *service.PlanExportService, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := exports.Cleanup(0)
			if err != nil {
				logr.Sugar().Warnw("export cleanup failed", "error", err)
				continue
			}
			if len(removed) > 0 {
				logr.Sugar().Infow("export cleanup removed files", "count", len(removed))
			}
		}
	}
}
