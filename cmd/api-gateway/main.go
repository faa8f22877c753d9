package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/course-admin-api/api/swagger"
	"github.com/noah-isme/course-admin-api/internal/handler"
	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/repository"
	"github.com/noah-isme/course-admin-api/internal/service"
	"github.com/noah-isme/course-admin-api/pkg/cache"
	"github.com/noah-isme/course-admin-api/pkg/config"
	"github.com/noah-isme/course-admin-api/pkg/database"
	"github.com/noah-isme/course-admin-api/pkg/jobs"
	"github.com/noah-isme/course-admin-api/pkg/logger"
	"github.com/noah-isme/course-admin-api/pkg/storage"
)

// @title Course Admin API
// @version 1.0.0
// @description Course catalogue, enrollment and grading service
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, db, err := openStores(cfg, logr)
	if err != nil {
		logr.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	if db != nil {
		defer db.Close()
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, course cache disabled", zap.Error(err))
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)
	if err := cacheSvc.Invalidate(ctx, cache.CoursePattern); err != nil {
		logr.Warn("failed to clear course cache", zap.Error(err))
	}

	authSvc := service.NewAuthService(stores.Users, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	if err := authSvc.EnsureUser(ctx, cfg.Admin.Email, cfg.Admin.Password, cfg.Admin.FullName, models.RoleAdmin); err != nil {
		logr.Fatal("failed to seed admin account", zap.Error(err))
	}

	courseSvc := service.NewCourseService(stores.Courses, cacheSvc, validate, logr)
	studentSvc := service.NewStudentService(stores.Students, cacheSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(stores.Enrollments, stores.Courses, cacheSvc, metrics, logr)
	gradeSvc := service.NewGradeService(stores.Grades, stores.Courses, stores.Students, metrics, validate, logr)
	exportSvc := service.NewExportService(gradeSvc, logr)

	var exportJobHandler *handler.ExportJobHandler
	if cfg.Exports.Enabled {
		files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Fatal("failed to prepare export storage", zap.Error(err))
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		downloadBase := strings.TrimRight(cfg.APIPrefix, "/") + "/exports/download"
		worker := service.NewExportWorker(stores.ExportJobs, exportSvc, files, signer, metrics, downloadBase, cfg.Exports.WorkerRetries, logr)
		queue := jobs.NewQueue("gradebook-exports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			RetryDelay: 2 * time.Second,
			Logger:     logr,
		})
		queue.Start(ctx)
		defer queue.Stop()

		exportJobs := service.NewExportJobService(stores.ExportJobs, stores.Courses, queue, files, signer, metrics, validate, logr,
			service.ExportJobConfig{CleanupInterval: cfg.Exports.CleanupInterval})
		exportJobs.RecoverPendingJobs(ctx)
		exportJobs.StartCleanup(ctx)
		exportJobHandler = handler.NewExportJobHandler(exportJobs)
	}

	checks := map[string]handler.ReadinessCheck{"store": stores.Ping}
	if cacheSvc.Enabled() {
		checks["cache"] = cacheRepo.Ping
	}

	r := handler.NewRouter(handler.RouterConfig{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
	}, handler.Handlers{
		Auth:       handler.NewAuthHandler(authSvc),
		Course:     handler.NewCourseHandler(courseSvc, enrollmentSvc),
		Student:    handler.NewStudentHandler(studentSvc),
		Enrollment: handler.NewEnrollmentHandler(enrollmentSvc),
		Grade:      handler.NewGradeHandler(gradeSvc, exportSvc),
		User:       handler.NewUserHandler(service.NewUserService(stores.Users, validate, logr)),
		ExportJobs: exportJobHandler,
		Dashboard:  handler.NewDashboardHandler(service.NewDashboardService(stores.Dashboard, cacheSvc, cfg.Cache.DashboardTTL, logr)),
		Metrics:    handler.NewMetricsHandler(metrics, checks),
	}, authSvc, metrics, logr)

	if cfg.Docs.Enabled && cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

func openStores(cfg *config.Config, logr *zap.Logger) (repository.Stores, *sqlx.DB, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logr.Warn("using in-memory store; data is lost on restart")
		return repository.NewMemoryStore().Stores(), nil, nil
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return repository.Stores{}, nil, err
	}
	return repository.NewPostgresStores(db), db, nil
}
