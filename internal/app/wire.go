//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/artboard/server/internal/module/credits"
	"github.com/artboard/server/internal/module/generation"
	"github.com/artboard/server/internal/shared/config"
	"github.com/artboard/server/internal/shared/logger"
	"github.com/artboard/server/internal/utils/metrics"
	"github.com/artboard/server/internal/utils/middleware"
)

// Dependencies holds all injected dependencies.
type Dependencies struct {
	Config      *config.Config
	Redis       goredis.UniversalClient
	RateLimiter middleware.RateLimiter
	Logger      *logger.Logger
	ZapLogger   *zap.Logger
	Metrics     *metrics.Metrics

	CreditsHandler    *credits.Handler
	GenerationHandler *generation.Handler
}

// InitializeDependencies creates all dependencies using Wire.
func InitializeDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	wire.Build(
		AppSet,
		wire.Struct(new(Dependencies), "*"),
	)
	return nil, nil, nil
}
