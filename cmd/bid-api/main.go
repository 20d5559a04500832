package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/zcahkwn/student-bid-sub000/api/swagger"
	"github.com/zcahkwn/student-bid-sub000/internal/handler"
	"github.com/zcahkwn/student-bid-sub000/internal/middleware"
	"github.com/zcahkwn/student-bid-sub000/internal/models"
	"github.com/zcahkwn/student-bid-sub000/internal/repository"
	"github.com/zcahkwn/student-bid-sub000/internal/service"
	"github.com/zcahkwn/student-bid-sub000/pkg/cache"
	"github.com/zcahkwn/student-bid-sub000/pkg/config"
	"github.com/zcahkwn/student-bid-sub000/pkg/database"
	"github.com/zcahkwn/student-bid-sub000/pkg/jobs"
	"github.com/zcahkwn/student-bid-sub000/pkg/logger"
	corsmiddleware "github.com/zcahkwn/student-bid-sub000/pkg/middleware/cors"
	reqidmiddleware "github.com/zcahkwn/student-bid-sub000/pkg/middleware/requestid"
	"github.com/zcahkwn/student-bid-sub000/pkg/storage"
)

// @title Student Bidding API
// @version 0.1.0
// @description Token ledger, opportunity registry, bid submission and winner selection
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Bidding.CacheEnabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
	}

	reportArchive, err := storage.NewLocalStorage(cfg.Report.ExportDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare report archive", "error", err)
	}
	reportSigner := storage.NewSignedURLSigner(cfg.JWT.Secret, cfg.Report.URLTTL)

	validate := validator.New()

	historyRepo := repository.NewTokenHistoryRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db, historyRepo)
	studentRepo := repository.NewStudentRepository(db)
	classRepo := repository.NewClassRepository(db)
	opportunityRepo := repository.NewOpportunityRepository(db)
	bidRepo := repository.NewBidRepository(db, enrollmentRepo, historyRepo)
	selectionRepo := repository.NewSelectionRepository(db, historyRepo)
	cascadeRepo := repository.NewCascadeRepository(db, enrollmentRepo, historyRepo)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close()

	metricsSvc := service.NewMetricsService()

	auditQueue := jobs.NewQueue("audit", func(ctx context.Context, job jobs.Job) error {
		entry, ok := job.Payload.(*models.AuditLog)
		if !ok {
			return fmt.Errorf("unexpected audit payload type %T", job.Payload)
		}
		return auditRepo.Create(ctx, entry)
	}, jobs.QueueConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		Logger:     logr,
	})

	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	classSvc := service.NewClassService(classRepo, cascadeRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, classRepo, cfg.Bidding.TokenAllowance, validate, logr)
	opportunitySvc := service.NewOpportunityService(opportunityRepo, cascadeRepo, classRepo, cacheRepo, cfg.Bidding.OpportunityCacheTTL, validate, logr)
	bidSvc := service.NewBidService(bidRepo, opportunityRepo, enrollmentRepo, cacheRepo, metricsSvc, cfg.Bidding.EnforceCapacity, validate, logr)
	selectionSvc := service.NewSelectionService(selectionRepo, opportunityRepo, cacheRepo, metricsSvc, cfg.Bidding.TokenAllowance, validate, logr)
	historySvc := service.NewTokenHistoryService(historyRepo, logr)
	reportSvc := service.NewReportService(opportunityRepo, bidRepo, reportArchive, reportSigner, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	handler.RegisterRoutes(r, handler.RouterConfig{
		APIPrefix:  cfg.APIPrefix,
		JWTSecret:  cfg.JWT.Secret,
		AuditQueue: auditQueue,
		Metrics:    metricsSvc,

		Students:      handler.NewStudentHandler(studentSvc),
		Classes:       handler.NewClassHandler(classSvc),
		Enrollments:   handler.NewEnrollmentHandler(enrollmentSvc),
		Opportunities: handler.NewOpportunityHandler(opportunitySvc, reportSvc),
		Bids:          handler.NewBidHandler(bidSvc),
		Selections:    handler.NewSelectionHandler(selectionSvc),
		TokenHistory:  handler.NewTokenHistoryHandler(historySvc),
		MetricsH:      handler.NewMetricsHandler(metricsSvc),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	auditQueue.Start(ctx)
	defer auditQueue.Stop()

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
