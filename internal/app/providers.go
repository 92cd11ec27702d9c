package app

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	redisadapter "github.com/artboard/server/internal/adapter/outbound/redis"
	"github.com/artboard/server/internal/module/asset"
	"github.com/artboard/server/internal/module/credits"
	"github.com/artboard/server/internal/module/credits/billing"
	"github.com/artboard/server/internal/module/generation"
	"github.com/artboard/server/internal/module/generation/descriptor"
	"github.com/artboard/server/internal/module/generation/provider"
	"github.com/artboard/server/internal/module/project"
	"github.com/artboard/server/internal/shared/cache"
	"github.com/artboard/server/internal/shared/config"
	"github.com/artboard/server/internal/shared/database"
	"github.com/artboard/server/internal/shared/logger"
	"github.com/artboard/server/internal/utils/metrics"
	"github.com/artboard/server/internal/utils/middleware"
)

// ===== Infrastructure Providers =====

// InfraSet provides infrastructure dependencies.
var InfraSet = wire.NewSet(
	ProvideLogger,
	ProvideZapLogger,
	ProvideMetrics,
	ProvideDatabase,
	ProvideRedisClient,
	ProvideRateLimiter,
	ProvideHTTPClient,
)

// ProvideLogger creates the slog logger used by the HTTP middleware.
func ProvideLogger(cfg *config.Config) *logger.Logger {
	return logger.New(&logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "artboard",
	})
}

// ProvideZapLogger creates the zap logger used by modules.
func ProvideZapLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.NewZapLogger(&logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "artboard",
	})
}

// ProvideMetrics creates the metrics registered on the default registry
// served at /metrics.
func ProvideMetrics() *metrics.Metrics {
	return metrics.New("artboard", prometheus.DefaultRegisterer)
}

// ProvideDatabase opens the database and applies migrations when configured.
func ProvideDatabase(cfg *config.Config, zapLog *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := database.Close(db); err != nil {
			zapLog.Warn("close database", zap.Error(err))
		}
	}

	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(db); err != nil {
			cleanup()
			return nil, nil, err
		}
		zapLog.Info("database migrations applied")
	}
	return db, cleanup, nil
}

// ProvideRedisClient connects to Redis. Redis only backs rate limiting and
// idempotency, so a failed connection degrades to running without it.
func ProvideRedisClient(cfg *config.Config, zapLog *zap.Logger) (goredis.UniversalClient, func()) {
	if cfg.Redis.Address == "" {
		return nil, func() {}
	}
	client, err := cache.NewRedisClient(context.Background(), &cfg.Redis)
	if err != nil {
		zapLog.Warn("redis connection failed, continuing without rate limiting", zap.Error(err))
		return nil, func() {}
	}
	return client, func() { _ = cache.Close(client) }
}

// ProvideRateLimiter creates the sliding window limiter, or nil without Redis.
func ProvideRateLimiter(redis goredis.UniversalClient) middleware.RateLimiter {
	if redis == nil {
		return nil
	}
	return redisadapter.NewRateLimiter(redis)
}

// ProvideHTTPClient creates the client shared by the provider adapters.
func ProvideHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.Generation.HTTPTimeout}
}

// ===== Credits Providers =====

// CreditsSet provides the credit ledger.
var CreditsSet = wire.NewSet(
	credits.NewRepository,
	ProvideBillingClient,
	ProvideSealer,
	ProvideLedger,
	credits.NewHandler,
)

// ProvideBillingClient creates the Stripe subscription client.
func ProvideBillingClient(cfg *config.Config) credits.BillingClient {
	return billing.NewStripeClient(&billing.Config{
		SecretKey: cfg.Stripe.SecretKey,
		APIBase:   cfg.Stripe.APIBase,
	})
}

// ProvideSealer creates the provider key sealer. Without a configured key,
// self-supplied provider keys are disabled.
func ProvideSealer(cfg *config.Config) (*credits.Sealer, error) {
	if cfg.Credits.CredentialKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(cfg.Credits.CredentialKey)
	if err != nil {
		return nil, fmt.Errorf("decode credential key: %w", err)
	}
	return credits.NewSealer(key)
}

// ProvideLedger creates the credit ledger.
func ProvideLedger(
	repo credits.Repository,
	billingClient credits.BillingClient,
	sealer *credits.Sealer,
	cfg *config.Config,
	m *metrics.Metrics,
	zapLog *zap.Logger,
) *credits.Ledger {
	return credits.NewLedger(repo, billingClient, sealer, &credits.Config{
		MonthlyAllotment: cfg.Credits.MonthlyAllotment,
	}, m, zapLog.Named("credits"))
}

// ===== Generation Providers =====

// GenerationSet provides the generation orchestrator and its collaborators.
var GenerationSet = wire.NewSet(
	ProvideObjectStore,
	ProvideMaterializer,
	ProvideAdapters,
	ProvideRegistry,
	ProvideOwnership,
	generation.NewRepository,
	ProvideGenerationService,
	ProvideGenerationHandler,
)

// ProvideObjectStore creates the S3 store for materialized images.
func ProvideObjectStore(cfg *config.Config) (asset.ObjectStore, error) {
	return asset.NewS3Store(context.Background(), &asset.S3Config{
		Endpoint:        cfg.Storage.Endpoint,
		Region:          cfg.Storage.Region,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		Bucket:          cfg.Storage.Bucket,
		PublicBaseURL:   cfg.Storage.PublicBaseURL,
		KeyPrefix:       cfg.Storage.KeyPrefix,
	})
}

// ProvideMaterializer creates the asset materializer.
func ProvideMaterializer(store asset.ObjectStore, cfg *config.Config, m *metrics.Metrics, zapLog *zap.Logger) *asset.Materializer {
	return asset.NewMaterializer(store, nil, &asset.Config{
		Timeout:  cfg.Generation.MaterializeTimeout,
		MaxBytes: cfg.Generation.MaxOutputBytes,
	}, m, zapLog.Named("asset"))
}

// ProvideAdapters builds every provider adapter. Jobs keep polling the
// provider they started on even after the default changes.
func ProvideAdapters(cfg *config.Config, client *http.Client, m *metrics.Metrics, zapLog *zap.Logger) (map[string]provider.Adapter, error) {
	gen := cfg.Generation
	breaker := provider.DefaultBreakerConfig()
	if gen.BreakerFailures > 0 {
		breaker.ConsecutiveFailures = gen.BreakerFailures
	}
	if gen.BreakerTimeout > 0 {
		breaker.OpenTimeout = gen.BreakerTimeout
	}

	return provider.NewAll(&provider.Config{
		Replicate: provider.Endpoint{BaseURL: gen.Replicate.BaseURL, APIKey: gen.Replicate.APIKey},
		Fal:       provider.Endpoint{BaseURL: gen.Fal.BaseURL, APIKey: gen.Fal.APIKey},
		Breaker:   breaker,
	}, client, m, zapLog.Named("provider"))
}

// ProvideRegistry creates the model descriptor registry.
func ProvideRegistry(cfg *config.Config) *descriptor.Registry {
	return descriptor.NewRegistry(&descriptor.Config{
		ReplicateModel:    cfg.Generation.Replicate.Model,
		FalModel:          cfg.Generation.Fal.Model,
		FalReferenceModel: cfg.Generation.Fal.ReferenceModel,
	})
}

// ProvideOwnership creates the project ownership checker.
func ProvideOwnership(db *gorm.DB) *project.Ownership {
	return project.NewOwnership(project.NewRepository(db))
}

// ProvideGenerationService creates the orchestrator with the configured
// default provider.
func ProvideGenerationService(
	cfg *config.Config,
	repo generation.Repository,
	adapters map[string]provider.Adapter,
	registry *descriptor.Registry,
	ledger *credits.Ledger,
	materializer *asset.Materializer,
	ownership *project.Ownership,
	m *metrics.Metrics,
	zapLog *zap.Logger,
) (*generation.Service, error) {
	return generation.NewService(&generation.ServiceDeps{
		Repo:         repo,
		Adapters:     adapters,
		Registry:     registry,
		Ledger:       ledger,
		Materializer: materializer,
		Ownership:    ownership,
		Metrics:      m,
		Logger:       zapLog.Named("generation"),
	}, &generation.Config{
		DefaultProvider:     cfg.Generation.Provider,
		PollInterval:        cfg.Generation.PollInterval,
		AwaitMaxWait:        cfg.Generation.AwaitMaxWait,
		FinalizeLease:       cfg.Generation.FinalizeLease,
		MaterializeTimeout:  cfg.Generation.MaterializeTimeout,
		MaterializeAttempts: cfg.Generation.MaterializeAttempts,
	})
}

// ProvideGenerationHandler registers the request validators and creates the
// generation handler.
func ProvideGenerationHandler(svc *generation.Service) (*generation.Handler, error) {
	if err := generation.RegisterValidators(); err != nil {
		return nil, err
	}
	return generation.NewHandler(svc), nil
}

// AppSet is every provider set the server needs.
var AppSet = wire.NewSet(
	InfraSet,
	CreditsSet,
	GenerationSet,
)
