package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/auth-control-plane/backend/config"
	"github.com/upb/auth-control-plane/backend/internal/observability"
	"github.com/upb/auth-control-plane/backend/middleware"
	"github.com/upb/auth-control-plane/backend/repositories"
	"github.com/upb/auth-control-plane/backend/repositories/postgres"
	"github.com/upb/auth-control-plane/backend/services"
	"github.com/upb/auth-control-plane/backend/services/audit"
	"github.com/upb/auth-control-plane/backend/services/throttle"
)

// auditStopTimeout bounds how long shutdown waits for the audit queue to drain.
const auditStopTimeout = 5 * time.Second

// throttleRetention is how long throttle events are kept before the cleanup
// worker prunes them. Must cover the longest throttle window, which is an hour.
const throttleRetention = time.Hour

// Dependencies holds all application dependencies. This is the central
// wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users         repositories.UserRepository
	RefreshTokens repositories.RefreshTokenRepository
	AuditLogs     repositories.AuditRepository
	TxManager     repositories.TransactionManager

	// Services
	Codec           *services.TokenCodec
	Verifier        *services.CredentialVerifier
	UserService     *services.UserService
	RotationService *services.RotationService
	AuditService    *audit.Service
	ThrottleService *throttle.Service

	// Observability
	Metrics *observability.Metrics

	// Middleware
	AuthMiddleware     *middleware.AuthMiddleware
	ThrottleMiddleware *middleware.ThrottleMiddleware

	cancelWorkers context.CancelFunc
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	}

	// Initialize PostgreSQL
	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize repositories
	deps.initRepositories()

	// Initialize services
	if err := deps.initServices(cfg); err != nil {
		deps.RepoFactory.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize middleware
	deps.initMiddleware()

	// Start background workers
	if err := deps.startWorkers(cfg); err != nil {
		deps.RepoFactory.Close()
		return nil, fmt.Errorf("failed to start workers: %w", err)
	}

	// Seed the shared guest account
	if err := deps.UserService.SeedGuest(ctx, cfg.Seed); err != nil {
		deps.stopWorkers()
		deps.RepoFactory.Close()
		return nil, fmt.Errorf("failed to seed guest user: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the PostgreSQL connection, verifies it, and
// applies schema migrations.
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	// Test the connection
	if err := d.DB.PingContext(ctx); err != nil {
		factory.Close()
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := factory.Migrate(ctx); err != nil {
		factory.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))

	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Users = repos.Users
	d.RefreshTokens = repos.RefreshTokens
	d.AuditLogs = repos.AuditLogs
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

// initServices wires the domain services on top of the repositories.
func (d *Dependencies) initServices(cfg *config.Config) error {
	codec, err := services.NewTokenCodec(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to create token codec: %w", err)
	}
	d.Codec = codec
	d.Verifier = services.NewCredentialVerifier()

	d.UserService = services.NewUserService(d.Users, d.Verifier, d.Logger)
	d.RotationService = services.NewRotationService(
		d.Users,
		d.RefreshTokens,
		d.TxManager,
		d.Codec,
		d.Verifier,
		cfg.Auth,
		d.Logger,
	)

	d.AuditService = audit.NewService(d.AuditLogs, d.Logger, audit.Config{
		Workers:   cfg.Audit.Workers,
		QueueSize: cfg.Audit.QueueSize,
	})
	d.ThrottleService = throttle.NewService(d.DB.DB, cfg.Throttle, d.Logger)

	d.Logger.Info("services initialized")
	return nil
}

// initMiddleware wires the request middleware around the services.
func (d *Dependencies) initMiddleware() {
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Codec, d.UserService, d.Logger)
	d.ThrottleMiddleware = middleware.NewThrottleMiddleware(d.ThrottleService, d.Logger)
}

// startWorkers launches the audit writer pool and the throttle cleanup
// worker. The audit service only runs when auditing is enabled; Record
// drops events otherwise.
func (d *Dependencies) startWorkers(cfg *config.Config) error {
	workerCtx, cancel := context.WithCancel(context.Background())
	d.cancelWorkers = cancel

	if cfg.Audit.Enabled {
		if err := d.AuditService.Start(); err != nil {
			cancel()
			return fmt.Errorf("failed to start audit service: %w", err)
		}
	}

	if cfg.Throttle.Enabled && cfg.Throttle.CleanupInterval > 0 {
		go d.ThrottleService.StartCleanupWorker(workerCtx, cfg.Throttle.CleanupInterval, throttleRetention)
	}

	return nil
}

func (d *Dependencies) stopWorkers() {
	if d.cancelWorkers != nil {
		d.cancelWorkers()
	}
	if d.Config.Audit.Enabled {
		if err := d.AuditService.Stop(auditStopTimeout); err != nil {
			d.Logger.Warn("audit service did not stop cleanly", zap.Error(err))
		}
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	d.stopWorkers()

	var errs []error

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
