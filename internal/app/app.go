package app

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/artboard/server/cmd/server/docs" // swagger docs
	"github.com/artboard/server/internal/module/credits"
	"github.com/artboard/server/internal/module/generation"
	"github.com/artboard/server/internal/shared/config"
	"github.com/artboard/server/internal/shared/logger"
	sharedmw "github.com/artboard/server/internal/shared/middleware"
	"github.com/artboard/server/internal/utils/metrics"
	"github.com/artboard/server/internal/utils/middleware"
)

// App represents the application.
type App struct {
	config      *config.Config
	router      *gin.Engine
	logger      *logger.Logger
	zapLogger   *zap.Logger
	metrics     *metrics.Metrics
	redis       goredis.UniversalClient
	rateLimiter middleware.RateLimiter

	// Handlers
	creditsHandler    *credits.Handler
	generationHandler *generation.Handler

	cleanups []func()
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	zapLog, err := ProvideZapLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init zap logger: %w", err)
	}

	app := &App{
		config:    cfg,
		logger:    ProvideLogger(cfg),
		zapLogger: zapLog,
		metrics:   ProvideMetrics(),
	}

	db, closeDB, err := ProvideDatabase(cfg, zapLog)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	app.cleanups = append(app.cleanups, closeDB)

	redis, closeRedis := ProvideRedisClient(cfg, zapLog)
	app.cleanups = append(app.cleanups, closeRedis)
	app.redis = redis
	app.rateLimiter = ProvideRateLimiter(redis)

	if err := app.initModules(db); err != nil {
		app.Stop()
		return nil, fmt.Errorf("init modules: %w", err)
	}

	app.router = app.setupRouter()
	return app, nil
}

// initModules wires the credit ledger and the generation orchestrator.
func (a *App) initModules(db *gorm.DB) error {
	cfg := a.config

	sealer, err := ProvideSealer(cfg)
	if err != nil {
		return err
	}
	if sealer == nil {
		a.zapLogger.Warn("no credential key configured, own provider keys are disabled")
	}
	ledger := ProvideLedger(credits.NewRepository(db), ProvideBillingClient(cfg), sealer, cfg, a.metrics, a.zapLogger)
	a.creditsHandler = credits.NewHandler(ledger)

	store, err := ProvideObjectStore(cfg)
	if err != nil {
		return fmt.Errorf("init object store: %w", err)
	}
	adapters, err := ProvideAdapters(cfg, ProvideHTTPClient(cfg), a.metrics, a.zapLogger)
	if err != nil {
		return fmt.Errorf("init provider adapters: %w", err)
	}

	svc, err := ProvideGenerationService(
		cfg,
		generation.NewRepository(db),
		adapters,
		ProvideRegistry(cfg),
		ledger,
		ProvideMaterializer(store, cfg, a.metrics, a.zapLogger),
		ProvideOwnership(db),
		a.metrics,
		a.zapLogger,
	)
	if err != nil {
		return fmt.Errorf("init generation service: %w", err)
	}
	a.generationHandler, err = ProvideGenerationHandler(svc)
	if err != nil {
		return err
	}

	a.zapLogger.Info("modules initialized", zap.String("provider", cfg.Generation.Provider))
	return nil
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Apply global middleware
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(sharedmw.Metrics(a.metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	a.registerRoutes(r.Group("/api/v1"))
	return r
}

// registerRoutes registers the authenticated API.
func (a *App) registerRoutes(v1 *gin.RouterGroup) {
	protected := v1.Group("")
	protected.Use(middleware.RequireAuth(middleware.NewHMACValidator(a.config.Auth.JWTSecret, a.config.Auth.Issuer)))

	a.creditsHandler.RegisterProtectedRoutes(protected)
	a.generationHandler.RegisterProtectedRoutes(protected,
		middleware.Idempotency(a.redis, 0),
		middleware.RateLimitByUser(
			a.rateLimiter,
			"generation",
			a.config.RateLimit.GenerationLimit,
			a.config.RateLimit.GenerationWindow,
			a.logger,
		),
	)
}

// Router returns the HTTP handler.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop releases connections in reverse order of acquisition.
func (a *App) Stop() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
	_ = a.zapLogger.Sync()
}
