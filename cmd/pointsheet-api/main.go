package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/pointsheet/pointsheet-api/api/swagger"
	"github.com/pointsheet/pointsheet-api/internal/handler"
	"github.com/pointsheet/pointsheet-api/internal/middleware"
	"github.com/pointsheet/pointsheet-api/internal/repository"
	"github.com/pointsheet/pointsheet-api/internal/service"
	"github.com/pointsheet/pointsheet-api/pkg/cache"
	"github.com/pointsheet/pointsheet-api/pkg/config"
	"github.com/pointsheet/pointsheet-api/pkg/database"
	"github.com/pointsheet/pointsheet-api/pkg/jobs"
	"github.com/pointsheet/pointsheet-api/pkg/logger"
	corsmiddleware "github.com/pointsheet/pointsheet-api/pkg/middleware/cors"
	reqidmiddleware "github.com/pointsheet/pointsheet-api/pkg/middleware/requestid"
	"github.com/pointsheet/pointsheet-api/pkg/storage"
)

// @title PointSheet API
// @version 1.0.0
// @description Behavior point sheet tracking for schools
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
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	schoolRepo := repository.NewSchoolRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	planRepo := repository.NewPlanRepository(db)
	dayRepo := repository.NewDayRepository(db)
	staffRepo := repository.NewStaffRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	exportRepo := repository.NewExportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	validate := validator.New()
	metricsService := service.NewMetricsService()
	dayCache := service.NewDayCacheService(cacheRepo, metricsService, cfg.Cache.DayTTL, logr, cfg.Cache.Enabled)

	authService := service.NewAuthService(staffRepo, cacheRepo, validate, logr, service.AuthConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
		Issuer: cfg.JWT.Issuer,
	})
	claimsSync := service.NewClaimsSyncService(staffRepo, cacheRepo, metricsService, logr)
	claimsQueue := jobs.NewQueue("claims_sync", claimsSync.Handle, jobs.QueueConfig{
		Workers:    cfg.Claims.Workers,
		BufferSize: cfg.Claims.BufferSize,
		MaxRetries: cfg.Claims.MaxRetries,
		RetryDelay: cfg.Claims.RetryDelay,
		Logger:     logr,
	})
	claimsSync.AttachQueue(claimsQueue)

	schoolService := service.NewSchoolService(schoolRepo, auditRepo, validate, logr)
	studentService := service.NewStudentService(studentRepo, auditRepo, validate, logr)
	planService := service.NewPlanService(planRepo, studentRepo, auditRepo, dayCache, validate, logr)
	scoringService := service.NewScoringService(dayRepo, planRepo, auditRepo, dayCache, metricsService, validate, logr)
	dayService := service.NewDayService(dayRepo, planRepo, dayCache, logr)
	staffService := service.NewStaffService(staffRepo, auditRepo, claimsSync, validate, logr)
	auditService := service.NewAuditService(auditRepo, cfg.Audit.MaxPageSize, logr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	claimsQueue.Start(ctx)
	defer claimsQueue.Stop()

	var exportService *service.ExportService
	if cfg.Exports.Enabled {
		fileStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportWorker := service.NewExportWorker(exportRepo, planRepo, studentRepo, dayRepo, fileStore, metricsService, cfg.Exports.WorkerRetries, logr)
		exportQueue := jobs.NewQueue("exports", exportWorker.Handle, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			Logger:     logr,
		})
		exportService = service.NewExportService(exportRepo, planRepo, exportQueue, signer, fileStore, metricsService, logr, service.ExportServiceConfig{
			APIPrefix:       cfg.APIPrefix,
			ResultTTL:       cfg.Exports.SignedURLTTL,
			CleanupInterval: cfg.Exports.CleanupInterval,
		})

		exportQueue.Start(ctx)
		defer exportQueue.Stop()
		exportService.RecoverPendingJobs(ctx)
		exportService.StartCleanup(ctx)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsService))

	handler.RegisterRoutes(r, handler.RouterDeps{
		Auth:           authService,
		Schools:        schoolService,
		Students:       studentService,
		Plans:          planService,
		Days:           dayService,
		Scoring:        scoringService,
		Staff:          staffService,
		Audit:          auditService,
		Exports:        exportService,
		StaffDirectory: staffRepo,
		Health:         handler.NewMetricsHandler(metricsService, db, redisClient),
	})

	if cfg.Env != config.EnvProduction && cfg.Swagger.Enabled {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
