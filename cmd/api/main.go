package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/auction-house/internal/api/http"
	"github.com/spec-kit/auction-house/internal/api/http/handlers"
	"github.com/spec-kit/auction-house/internal/config"
	"github.com/spec-kit/auction-house/internal/events"
	"github.com/spec-kit/auction-house/internal/observability"
	"github.com/spec-kit/auction-house/internal/persistence"
	"github.com/spec-kit/auction-house/internal/repository"
	"github.com/spec-kit/auction-house/internal/service"
	"github.com/spec-kit/auction-house/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	dependencies := map[string]handlers.Pinger{}
	var userRepo repository.UserRepository
	if pg.Enabled() {
		userRepo = repository.NewUserRepository(pg.PoolHandle())
		dependencies["postgres"] = pg
	} else {
		userRepo = repository.NewMemoryUserRepository()
	}

	var loginAttempts repository.LoginAttemptRepository
	if redis.Enabled() {
		loginAttempts = repository.NewLoginAttemptRepository(redis.Client, cfg.Auth.LoginFailureWindow())
		dependencies["redis"] = redis
	}

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger))

	authService, err := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		Store:         service.NewCredentialStore(userRepo),
		LoginAttempts: loginAttempts,
		Dispatcher:    dispatcher,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("failed to init auth service", zap.Error(err))
	}
	userService := service.NewUserService(userRepo, dispatcher, logger)

	if admin := cfg.Auth.BootstrapAdmin; admin.Enabled() {
		created, err := authService.EnsureAdmin(ctx, admin.Username, admin.Email, admin.Password)
		if err != nil {
			logger.Fatal("failed to ensure bootstrap admin", zap.Error(err))
		}
		logger.Info("bootstrap admin checked", zap.String("email", admin.Email), zap.Bool("created", created))
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	metrics := observability.NewMetrics()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:        handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies),
		Auth:          handlers.NewAuthHandler(authService),
		Users:         handlers.NewUsersHandler(userService),
		Authenticator: authService,
		AuthLimiter:   httptransport.IPRateLimiter(ctx, cfg.Auth.RateLimitRPS, cfg.Auth.RateLimitBurst),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
