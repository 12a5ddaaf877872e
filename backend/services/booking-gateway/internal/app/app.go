package app

import (
	"context"
	"database/sql"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libdb "evbooking/backend/libs/db"
	libredis "evbooking/backend/libs/redis"
	"evbooking/backend/services/booking-gateway/internal/audit"
	"evbooking/backend/services/booking-gateway/internal/clients"
	"evbooking/backend/services/booking-gateway/internal/config"
	"evbooking/backend/services/booking-gateway/internal/flow"
	httpserver "evbooking/backend/services/booking-gateway/internal/http"
	"evbooking/backend/services/booking-gateway/internal/http/handlers"
	"evbooking/backend/services/booking-gateway/internal/http/middleware"
	"evbooking/backend/services/booking-gateway/internal/metrics"
	"evbooking/backend/services/booking-gateway/internal/models"
	redisstore "evbooking/backend/services/booking-gateway/internal/redis"
	"evbooking/backend/services/booking-gateway/internal/registry"
	"evbooking/backend/services/booking-gateway/internal/repository"
	"evbooking/backend/services/booking-gateway/internal/ws"
)

// App wires booking gateway dependencies.
type App struct {
	server      *httpserver.Server
	flows       *registry.Registry
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph. The transition log is only wired when a database DSN
// is configured.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	redisClient, err := libredis.NewRedisClient(libredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}

	var sqlDB *sql.DB
	if strings.TrimSpace(cfg.Database.DSN) != "" {
		sqlDB, err = libdb.NewPostgresDB(ctx, cfg.Database.DSN, libdb.PoolOptions{})
		if err != nil {
			redisClient.Close()
			return nil, err
		}
	}

	flowMetrics := metrics.NewFlowMetrics(prometheus.DefaultRegisterer)
	prices := flow.NewPriceCalculator(cfg.RatePerHour())
	loc := cfg.Location()

	httpClient := clients.NewDefaultHTTPClient(cfg.HTTPTimeout())
	backend := metrics.InstrumentBackend(clients.NewBookingClient(cfg.Backend.BaseURL, httpClient, loc), flowMetrics)

	hub := ws.NewHub(models.NewSnapshotEncoder(loc, prices, nil), logger)
	events := ws.NewServer(hub, 0, logger)

	engineOpts := []flow.Option{
		flow.WithLogger(logger),
		flow.WithLocation(loc),
		flow.WithPriceCalculator(prices),
		flow.WithObserver(flowMetrics),
		flow.WithObserver(hub),
	}
	if sqlDB != nil {
		recorder := audit.NewRecorder(repository.NewFlowEventRepository(sqlDB), logger)
		engineOpts = append(engineOpts, flow.WithObserver(recorder))
	}
	if key := cfg.Audit.FingerprintKey; key != "" {
		fp, err := audit.NewFingerprinter(key)
		if err != nil {
			closeAll(sqlDB, redisClient, logger)
			return nil, err
		}
		engineOpts = append(engineOpts, flow.WithCardFingerprinter(fp.Fingerprint))
	}

	flows := registry.New(backend, redisstore.NewStore(redisClient, cfg.SnapshotTTL()), registry.Config{
		IdleTimeout:   cfg.IdleTimeout(),
		EngineOptions: engineOpts,
		OnSizeChange:  flowMetrics.SetLiveFlows,
	}, logger)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		FlowHandlers:   handlers.NewFlowHandlers(flows, events, hub, flowMetrics, logger),
		HealthHandler:  handlers.NewHealthHandler(flows.Len),
		MetricsHandler: promhttp.Handler(),
	}, middleware.OptionalAuth(cfg.JWT.Secret))

	server := httpserver.NewServer(
		httpserver.Options{Addr: cfg.HTTPAddress(), WriteTimeout: cfg.HTTPWriteTimeout()},
		router,
		logger,
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
	)

	logger.Info("booking gateway configured",
		zap.String("backend", cfg.Backend.BaseURL),
		zap.String("timezone", loc.String()),
		zap.String("rate_per_hour", prices.Rate().StringFixed(2)),
		zap.Bool("transition_log", sqlDB != nil),
	)

	return &App{
		server:      server,
		flows:       flows,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run starts the idle sweep and serves HTTP traffic until ctx is done.
func (a *App) Run(ctx context.Context) error {
	go a.flows.Start(ctx)
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	closeAll(a.db, a.redisClient, a.logger)
}

func closeAll(db *sql.DB, redisClient *redis.Client, logger *zap.Logger) {
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
