package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/casetrack/casetrack/internal/api/http"
	"github.com/casetrack/casetrack/internal/api/http/handlers"
	"github.com/casetrack/casetrack/internal/audit"
	"github.com/casetrack/casetrack/internal/auth"
	"github.com/casetrack/casetrack/internal/cache"
	"github.com/casetrack/casetrack/internal/config"
	"github.com/casetrack/casetrack/internal/events"
	"github.com/casetrack/casetrack/internal/observability"
	"github.com/casetrack/casetrack/internal/persistence"
	"github.com/casetrack/casetrack/internal/repository"
	"github.com/casetrack/casetrack/internal/repository/memory"
	"github.com/casetrack/casetrack/internal/service"
	"github.com/casetrack/casetrack/internal/worker"
)

// storage is the set of repositories the services run on.
type storage struct {
	cases       repository.CaseRepository
	users       repository.UserRepository
	audits      repository.AuditRepository
	refresh     repository.RefreshTokenRepository
	tx          repository.TxRunner
	revocations cache.RevocationStore
	postgres    handlers.Pinger
	redis       handlers.Pinger
	close       func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer store.close()

	metrics := observability.NewMetrics()
	recorder := audit.NewRecorder(store.audits, logger)
	dispatcher := events.NewInMemoryDispatcher(logger)
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger, cfg.Notification))

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL(), cfg.Auth.RefreshTTL())
	authService := service.NewAuthService(service.AuthDependencies{
		UserRepo:             store.users,
		RefreshTokenRepo:     store.refresh,
		TokenManager:         tokens,
		Revocations:          store.revocations,
		Audit:                recorder,
		Logger:               logger,
		BcryptCost:           cfg.Auth.BcryptCost,
		OpenRoleRegistration: cfg.Auth.OpenRoleRegistration,
	})
	caseService := service.NewCaseService(service.CaseDependencies{
		CaseRepo:   store.cases,
		UserRepo:   store.users,
		TxRunner:   store.tx,
		Audit:      recorder,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
		Policy: service.CasePolicy{
			AutoAssignCreator: cfg.Cases.AutoAssignCreator,
			DefaultPerPage:    cfg.Cases.DefaultPerPage,
		},
	})
	userService := service.NewUserService(service.UserDependencies{
		UserRepo:  store.users,
		AuditRepo: store.audits,
		Audit:     recorder,
	})

	go worker.NewTokenSweeper(store.refresh, cfg.Auth.RefreshSweepInterval, logger).Run(ctx)

	var limiter *httptransport.IPRateLimiter
	if cfg.RateLimit.Enabled {
		limiter = httptransport.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.IsProduction(),
		Immutable:             true,
		ErrorHandler:         httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, httptransport.MiddlewareConfig{
		Logger:      logger,
		Metrics:     metrics,
		Timeout:     cfg.App.RequestTimeout(),
		CORSOrigins: cfg.CORS.Origins,
	})
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, store.postgres, store.redis),
		Auth:           handlers.NewAuthHandler(authService),
		Cases:          handlers.NewCasesHandler(caseService),
		Users:          handlers.NewUsersHandler(userService, caseService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, store.users, store.revocations, logger),
		AuthLimiter:    limiter,
		MetricsHandler: metrics.Handler(),
	})

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	if err := app.ShutdownWithTimeout(cfg.App.ShutdownTimeout); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// openStorage connects to Postgres and Redis. Without POSTGRES_DSN the
// service runs on process-local storage, which is lost on restart.
func openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage, error) {
	if cfg.Postgres.DSN == "" {
		logger.Warn("POSTGRES_DSN not provided; using in-memory storage")
		mem := memory.NewStore()
		return &storage{
			cases:       mem.Cases,
			users:       mem.Users,
			audits:      mem.Audit,
			refresh:     mem.RefreshTokens,
			tx:          mem.Tx,
			revocations: cache.NewMemoryRevocationStore(),
			close:       func() {},
		}, nil
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, cfg.App.Name, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			pg.Close()
			return nil, err
		}
	}
	rdb := persistence.NewRedis(ctx, cfg.Redis, logger)

	pool := pg.PoolHandle()
	return &storage{
		cases:       repository.NewCaseRepository(pool),
		users:       repository.NewUserRepository(pool),
		audits:      repository.NewAuditRepository(pool),
		refresh:     repository.NewRefreshTokenRepository(pool),
		tx:          repository.NewTxRunner(pool),
		revocations: cache.NewRedisRevocationStore(rdb.Client),
		postgres:    pg,
		redis:       rdb,
		close: func() {
			rdb.Close()
			pg.Close()
		},
	}, nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
