package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcare/mcare-backend/internal/auditlog"
	"github.com/mcare/mcare-backend/internal/billing"
	"github.com/mcare/mcare-backend/internal/casemgmt"
	"github.com/mcare/mcare-backend/internal/events"
	"github.com/mcare/mcare-backend/internal/feedback"
	"github.com/mcare/mcare-backend/internal/httpapi"
	"github.com/mcare/mcare-backend/internal/identity"
	"github.com/mcare/mcare-backend/internal/ratelimit"
	"github.com/mcare/mcare-backend/internal/schema"
	"github.com/mcare/mcare-backend/internal/scoring"
	"github.com/mcare/mcare-backend/internal/tenancy"
	"github.com/mcare/mcare-backend/pkg/config"
	"github.com/mcare/mcare-backend/pkg/dbx"
	"github.com/mcare/mcare-backend/pkg/logger"
	"github.com/mcare/mcare-backend/pkg/messaging"
)

// Environment variables follow the MCARE_ prefix this service's config
// layer applies to every key (e.g. DATABASE_URL -> MCARE_DATABASE_URL,
// BOOTSTRAP_TOKEN -> MCARE_BOOTSTRAP_TOKEN). The per-minute rate limit is
// MCARE_RATELIMIT_PER_MINUTE and the environment name is
// MCARE_SERVER_ENVIRONMENT; there is no log-level setting.
func main() {
	cfg, err := config.LoadWithValidation("mcare-api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("mcare-api", cfg.Server.Environment)
	log.Info().Msg("starting mcare-api")

	db, err := dbx.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := schema.Bootstrap(context.Background(), db.DB); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap schema")
	}

	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeUsageEvents, "mcare-api", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create usage-event publisher")
	}

	usageConsumer, err := events.NewUsageEventConsumer(rmq, db, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create usage-event consumer")
	}

	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()
	if err := usageConsumer.Start(consumerCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to start usage-event consumer")
	}
	log.Info().Msg("usage-event consumer started")

	gateway := tenancy.NewGateway(db)

	identityRepo := identity.NewRepository(db)
	identitySvc := identity.NewService(identityRepo, gateway, cfg.Bootstrap.Token)

	auditWriter := auditlog.NewWriter(db, log)
	billingGate := billing.NewGate(db, cfg.Billing.FreeTierEventLimit)
	scorer := scoring.NewDeterministicStub()

	caseRepo := casemgmt.NewRepository(db)
	casesSvc := casemgmt.NewService(caseRepo, gateway, auditWriter, billingGate, scorer, identitySvc)

	feedbackRepo := feedback.NewRepository(db)
	feedbackSvc := feedback.NewService(feedbackRepo, gateway)

	limiter := ratelimit.New(ratelimit.Config{Limit: cfg.RateLimit.PerMinute, Window: cfg.RateLimit.Window})
	go evictIdleBucketsPeriodically(consumerCtx, limiter)

	router := httpapi.NewRouter(httpapi.Deps{
		DB:        db,
		RMQ:       rmq,
		Identity:  identitySvc,
		Cases:     casesSvc,
		Feedback:  feedbackSvc,
		Billing:   billingGate,
		Gateway:   gateway,
		Limiter:   limiter,
		Publisher: publisher,
		Logger:    log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down mcare-api")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// evictIdleBucketsPeriodically bounds the rate limiter's bucket map
// memory; correctness never depends on it running.
func evictIdleBucketsPeriodically(ctx context.Context, limiter *ratelimit.Limiter) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.EvictIdle(30 * time.Minute)
		}
	}
}
