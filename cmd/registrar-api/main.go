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
	"github.com/redis/go-redis/v9"
	"github.com/sendgrid/sendgrid-go"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sis-registrar-api/api/swagger"
	"github.com/noah-isme/sis-registrar-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sis-registrar-api/internal/middleware"
	"github.com/noah-isme/sis-registrar-api/internal/repository"
	"github.com/noah-isme/sis-registrar-api/internal/service"
	"github.com/noah-isme/sis-registrar-api/pkg/cache"
	"github.com/noah-isme/sis-registrar-api/pkg/config"
	"github.com/noah-isme/sis-registrar-api/pkg/jobs"
	"github.com/noah-isme/sis-registrar-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sis-registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sis-registrar-api/pkg/middleware/requestid"
)

// @title Registrar API
// @version 1.0.0
// @description Course registration: enrollment, waitlists, holds and section capacity.
// @BasePath /api/v1
// @schemes http

const relayBatchSize = 500

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("registrar stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	checks := map[string]handler.Pinger{}
	store, closeStore, err := openBackend(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer closeStore()
	if store.ping != nil {
		checks[cfg.Enrollment.Store] = store.ping
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	if cacheRepo.Enabled() {
		checks["redis"] = cacheRepo
	}

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Availability.CacheTTL, logr, cfg.Availability.CacheEnabled)
	locks := service.NewLockManager(cfg.Enrollment.LockTimeout)

	sinks := []service.NotificationSink{service.NewLogSink(logr)}
	if cacheRepo.Enabled() {
		sinks = append(sinks, service.NewPubSubSink(cacheRepo, cfg.Events.Channel))
	}
	if cfg.Notifications.SendGridAPIKey != "" {
		email := service.NewEmailSink(sendgrid.NewSendClient(cfg.Notifications.SendGridAPIKey),
			cfg.Notifications.AppName, cfg.Notifications.FromEmail, store.students, store.sections)
		sinks = append(sinks, service.NewDedupSink(email, cacheRepo, cfg.Events.DedupTTL))
	}
	dispatcher := service.NewEventDispatcher(store.enrollments, sinks, jobs.QueueConfig{
		Workers:    cfg.Events.Workers,
		MaxRetries: cfg.Events.Retries,
		RetryDelay: cfg.Events.RetryDelay,
	}, 0, metricsSvc, logr)

	holdSvc := service.NewHoldService(store.holds, store.students, nil, logr)
	engine := service.NewEnrollmentService(store.sections, holdSvc, store.students, store.history, store.enrollments,
		locks, dispatcher, cacheSvc, metricsSvc, service.RetryPolicy{
			Attempts:        cfg.Enrollment.RetryAttempts,
			InitialInterval: cfg.Enrollment.RetryInitialInterval,
			MaxInterval:     cfg.Enrollment.RetryMaxInterval,
		}, nil, logr)
	catalogSvc := service.NewCatalogService(store.sections, store.enrollments, engine, cacheSvc, cfg.Availability.CacheTTL, nil, logr)
	rosterSvc := service.NewRosterService(store.sections, store.enrollments, store.students, logr)
	reconciler := service.NewReconciliationService(store.sections, store.students, store.enrollments, locks, metricsSvc, logr)

	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	scheduler := jobs.NewScheduler(logr, time.Minute)
	if err := scheduler.Add("outbox_relay", cfg.Schedules.OutboxRelay, func(ctx context.Context) error {
		_, err := dispatcher.Relay(ctx, relayBatchSize)
		return err
	}); err != nil {
		return err
	}
	if err := scheduler.Add("reconcile", cfg.Schedules.Reconcile, reconciler.Task); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), routes{
		enrollments: handler.NewEnrollmentHandler(engine),
		sections:    handler.NewSectionHandler(catalogSvc, engine, rosterSvc),
		holds:       handler.NewHoldHandler(holdSvc),
		students:    handler.NewStudentHandler(engine),
		metrics:     metricsHandler,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("store", cfg.Enrollment.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

type routes struct {
	enrollments *handler.EnrollmentHandler
	sections    *handler.SectionHandler
	holds       *handler.HoldHandler
	students    *handler.StudentHandler
	metrics     *handler.MetricsHandler
}

func registerRoutes(api *gin.RouterGroup, h routes) {
	sections := api.Group("/sections")
	sections.GET("", h.sections.List)
	sections.GET("/:id", h.sections.Get)
	sections.GET("/:id/availability", h.sections.Availability)
	sections.PUT("/:id/capacity", h.sections.UpdateCapacity)
	sections.GET("/:id/waitlist", h.sections.Waitlist)
	sections.GET("/:id/roster", h.sections.Roster)

	students := api.Group("/students")
	students.GET("/:id/holds", h.holds.List)
	students.POST("/:id/holds", h.holds.Place)
	students.GET("/:id/enrollments", h.students.Enrollments)
	students.GET("/:id/load", h.students.Load)

	api.POST("/holds/:id/clear", h.holds.Clear)

	enrollments := api.Group("/enrollments")
	enrollments.POST("", h.enrollments.Create)
	enrollments.GET("/:id", h.enrollments.Get)
	enrollments.GET("/:id/position", h.enrollments.Position)
	enrollments.DELETE("/:id", h.enrollments.Delete)

	api.GET("/metrics/registrar", h.metrics.Snapshot)
}
