package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/septivank/water-meter-agent/internal/anomaly"
	"github.com/septivank/water-meter-agent/internal/auth"
	"github.com/septivank/water-meter-agent/internal/backend"
	"github.com/septivank/water-meter-agent/internal/config"
	"github.com/septivank/water-meter-agent/internal/db"
	"github.com/septivank/water-meter-agent/internal/eligibility"
	"github.com/septivank/water-meter-agent/internal/lookup"
	"github.com/septivank/water-meter-agent/internal/mq"
	"github.com/septivank/water-meter-agent/internal/repository"
	"github.com/septivank/water-meter-agent/internal/service"
	"github.com/septivank/water-meter-agent/internal/store"
	"github.com/septivank/water-meter-agent/internal/validator"
)

// ProvideRedisClient creates the local session cache client
func ProvideRedisClient(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("[REDIS CONNECTION FAILED] cannot reach the session cache at %s: %w", cfg.Redis.Addr, err)
			}
			logger.Debug("session cache connected", zap.String("addr", cfg.Redis.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client
}

// ProvideStore creates the session store
func ProvideStore(client *redis.Client, cfg *config.Config, logger *zap.Logger) *store.Store {
	return store.NewStore(client, cfg.Redis.KeyPrefix, logger)
}

// ProvideBackendClient creates the utility backend client
func ProvideBackendClient(cfg *config.Config, logger *zap.Logger) *backend.Client {
	return backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, logger)
}

// ProvideAuthService creates the auth service and installs it as the backend token source
func ProvideAuthService(client *backend.Client, st *store.Store, logger *zap.Logger) *auth.Service {
	svc := auth.NewService(client, st, logger)
	client.SetTokenSource(svc)
	return svc
}

// ProvideEvaluator creates the eligibility evaluator on the wall clock
func ProvideEvaluator(cfg *config.Config) (*eligibility.Evaluator, error) {
	loc, err := cfg.Eligibility.Location()
	if err != nil {
		return nil, err
	}
	return eligibility.NewEvaluator(time.Now, loc), nil
}

// ProvideValidator creates a new validator instance
func ProvideValidator(cfg *config.Config) *validator.Validator {
	return validator.NewValidator(cfg.Validation.MaxIndex)
}

// ProvideAnomalyDetector creates the consumption spike detector
func ProvideAnomalyDetector(cfg *config.Config) *anomaly.Detector {
	return anomaly.NewDetector(cfg.Anomaly.SpikeThreshold, cfg.Anomaly.MinDataPointsForDetection)
}

// ProvideLookupAdapter creates the customer lookup adapter
func ProvideLookupAdapter(client *backend.Client, evaluator *eligibility.Evaluator, st *store.Store, logger *zap.Logger) *lookup.Adapter {
	return lookup.NewAdapter(client, evaluator, st, logger)
}

// ProvideRepository opens the journal database; nil when DATABASE_URL is unset
func ProvideRepository(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*repository.Repository, error) {
	if cfg.Database.URL == "" {
		logger.Debug("DATABASE_URL not set, submission journal disabled")
		return nil, nil
	}
	pool, err := db.NewPool(lc, logger, cfg.Database.URL, cfg.ServiceName)
	if err != nil {
		return nil, err
	}
	return repository.NewRepository(pool), nil
}

// ProvideJournal picks the database journal or a no-op one
func ProvideJournal(repo *repository.Repository) service.Journal {
	if repo == nil {
		return service.NopJournal{}
	}
	return repo
}

// ProvideMQConnection connects to RabbitMQ; nil when RABBITMQ_URL is unset
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	if cfg.RabbitMQ.URL == "" {
		logger.Debug("RABBITMQ_URL not set, reading events disabled")
		return nil, nil
	}
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL, cfg.ServiceName)
}

// ProvidePublisher creates the submitted-event publisher, or a no-op one without a broker
func ProvidePublisher(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (service.EventPublisher, error) {
	if conn == nil {
		return service.NopPublisher{}, nil
	}
	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.EventsExchange, cfg.RabbitMQ.SubmittedRoutingKey, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

// ProvideSubmissionService creates the submission coordinator
func ProvideSubmissionService(
	client *backend.Client,
	evaluator *eligibility.Evaluator,
	detector *anomaly.Detector,
	journal service.Journal,
	publisher service.EventPublisher,
	logger *zap.Logger,
) *service.SubmissionService {
	return service.NewSubmissionService(client, evaluator, detector, journal, publisher, logger)
}

// ProvideBillingService creates the bills and complaints service
func ProvideBillingService(adapter *lookup.Adapter, client *backend.Client, logger *zap.Logger) *service.BillingService {
	return service.NewBillingService(adapter, client, logger)
}

// ProvideReviewProcessor creates the review event processor; nil without a journal
func ProvideReviewProcessor(repo *repository.Repository, logger *zap.Logger) *service.ReviewProcessor {
	if repo == nil {
		return nil
	}
	return service.NewReviewProcessor(repo, time.Now, logger)
}
