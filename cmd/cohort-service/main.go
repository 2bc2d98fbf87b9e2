package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/cohort-builder/pkg/cohort"
	"github.com/synaptica-ai/cohort-builder/pkg/common/config"
	"github.com/synaptica-ai/cohort-builder/pkg/common/database"
	"github.com/synaptica-ai/cohort-builder/pkg/common/kafka"
	"github.com/synaptica-ai/cohort-builder/pkg/common/logger"
	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
	"github.com/synaptica-ai/cohort-builder/pkg/funnel"
	"github.com/synaptica-ai/cohort-builder/pkg/gateway/middleware"
	"github.com/synaptica-ai/cohort-builder/pkg/gateway/routes"
	"github.com/synaptica-ai/cohort-builder/pkg/review"
	"github.com/synaptica-ai/cohort-builder/pkg/terminology"
)

const serviceName = "cohort-service"

func main() {
	logger.Init()
	cfg := config.Load()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to Postgres")
	}
	statuses := review.NewRepository(db)
	definitions := cohort.NewDefinitionRepository(db)
	if err := statuses.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate review tables")
	}
	if err := definitions.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate cohort definitions")
	}

	catalog, err := terminology.Load(cfg.CatalogPath)
	if err != nil {
		if catalog == nil {
			logger.Log.WithError(err).Fatal("Failed to load criteria catalog")
		}
		logger.Log.WithError(err).Warn("Criteria catalog unavailable, using built-in tree")
	}

	pages := review.NewRedisPageCache(database.GetRedis(cfg), cfg.ReviewCacheTTL)
	resolver := review.NewResolver(statuses, pages, review.Limits{
		DefaultPageSize: cfg.ReviewDefaultPageSize,
		MaxPageSize:     cfg.ReviewMaxPageSize,
	}).WithFetchTimeout(cfg.ReviewFetchTimeout)

	producer := kafka.NewProducer(cfg, cfg.KafkaCountTopic)
	search := cohort.NewSearchClient(cfg.SearchBaseURL, cfg.SearchTimeout, cfg.SearchRetries)
	agg := funnel.NewAggregator(search, cfg.FunnelConcurrency).WithCacheTTL(cfg.FunnelCacheTTL)
	sessions := cohort.NewRegistry(ctx, search, agg, cfg.DebounceWindow, producer)

	// Review status changes made elsewhere invalidate cached pages.
	consumer := kafka.NewConsumer(cfg, cfg.KafkaReviewStatusTopic, cfg.KafkaGroupID)
	go func() {
		err := consumer.Consume(ctx, func(ctx context.Context, event models.Event) error {
			cohortID, _ := event.Data["cohort_id"].(string)
			if cohortID == "" {
				return nil
			}
			return resolver.Invalidate(ctx, cohortID)
		})
		if err != nil && ctx.Err() == nil {
			logger.Log.WithError(err).Error("Review status consumer stopped")
		}
	}()

	go expireSessions(ctx, sessions, cfg.SessionTTL)

	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))
	router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	router.Use(middleware.Session)

	routes.NewHealthHandler(serviceName).Register(router)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	routes.NewCohortHandler(sessions, definitions, search).Register(apiRouter)
	routes.NewReviewHandler(resolver, definitions).Register(apiRouter)
	routes.NewCriteriaHandler(catalog).Register(apiRouter)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Cohort Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Cohort Service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	stop()
	sessions.Shutdown()
	if err := consumer.Close(); err != nil {
		logger.Log.WithError(err).Warn("Failed to close review status consumer")
	}
	if err := producer.Close(); err != nil {
		logger.Log.WithError(err).Warn("Failed to close count producer")
	}
	if err := database.CloseRedis(); err != nil {
		logger.Log.WithError(err).Warn("Failed to close Redis")
	}
	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Warn("Failed to close Postgres")
	}

	logger.Log.Info("Cohort Service stopped")
}

func expireSessions(ctx context.Context, sessions *cohort.Registry, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Expire(ttl); n > 0 {
				logger.Log.WithField("sessions", n).Info("Expired idle cohort builder sessions")
			}
		}
	}
}
