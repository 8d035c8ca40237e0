// internal/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	router "encore-ledger/internal/api"
	"encore-ledger/internal/api/handler"
	"encore-ledger/internal/attribution"
	"encore-ledger/internal/config"
	"encore-ledger/internal/events"
	"encore-ledger/internal/events/kafka"
	"encore-ledger/internal/gateway"
	"encore-ledger/internal/identity"
	"encore-ledger/internal/journal"
	"encore-ledger/internal/ledger"
	"encore-ledger/internal/payout"
	"encore-ledger/internal/ratelimit"
	"encore-ledger/internal/reconcile"
	"encore-ledger/internal/repository/postgres"
	"encore-ledger/internal/split"
	"encore-ledger/internal/util"
	"encore-ledger/pkg/db"
)

// Application holds all the initialized components of the application.
type Application struct {
	Config *config.AppConfig
	Logger *slog.Logger
	DB     *sqlx.DB

	// Repositories
	LedgerRepository      *postgres.LedgerRepository
	JournalRepository     *postgres.JournalRepository
	SplitRepository       *postgres.SplitContractRepository
	PayoutRepository      *postgres.PayoutRepository
	AttributionRepository *postgres.AttributionRepository

	// Infrastructure
	Deriver   *identity.Deriver
	Publisher events.Publisher
	Limiter   ratelimit.Limiter
	Redis     *redis.Client

	// Services
	Writer       *ledger.Writer
	Journal      *journal.Logger
	Linker       *journal.Linker
	Repairer     *journal.Repairer
	Gateway      *gateway.Gateway
	Splits       *split.Service
	Payouts      *payout.Service
	Attributions *attribution.Service
	Validator    *reconcile.Validator

	// HTTP API
	HTTPHandler http.Handler

	closers []func() error
}

// NewApplication creates a new Application instance.
func NewApplication() *Application {
	return &Application{}
}

// Initialize loads configuration from the environment and builds every component.
func (app *Application) Initialize(ctx context.Context) error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return app.Build(ctx, cfg, true)
}

// Build wires the application from cfg. A Logger set before the call is kept.
// migrate applies the schema once connected.
func (app *Application) Build(ctx context.Context, cfg *config.AppConfig, migrate bool) error {
	app.Config = cfg

	// 2. Initialize Logger
	if app.Logger == nil {
		util.InitLogger(cfg.LogLevel)
		app.Logger = util.GetLogger()
	}
	app.Logger.Info("Application configuration loaded successfully.")

	// 3. Derive wallet ids only with a strong secret; refuse to start otherwise.
	deriver, err := identity.NewDeriver(cfg.WalletIDSecret)
	if err != nil {
		return fmt.Errorf("failed to initialize wallet id deriver: %w", err)
	}
	app.Deriver = deriver

	// 4. Connect to Database
	database, err := db.NewDB(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = database
	app.closers = append(app.closers, database.Close)
	app.Logger.Info("Database connection established.", "driver", cfg.DB.Driver)

	if migrate {
		if err := db.Migrate(ctx, database); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		app.Logger.Info("Database schema is up to date.")
	}

	// 5. Initialize Repositories
	app.LedgerRepository = postgres.NewLedgerRepository()
	app.JournalRepository = postgres.NewJournalRepository()
	app.SplitRepository = postgres.NewSplitContractRepository()
	app.PayoutRepository = postgres.NewPayoutRepository()
	app.AttributionRepository = postgres.NewAttributionRepository()
	app.Logger.Info("Repositories initialized.")

	// 6. Optional infrastructure
	if err := app.initInfrastructure(ctx); err != nil {
		return err
	}

	// 7. Initialize Services
	// Pass the concrete db.BeginTx, db.CommitTx, db.RollbackTx functions from pkg/db
	app.Writer = ledger.NewWriter(app.DB, app.LedgerRepository, db.BeginTx, db.CommitTx, db.RollbackTx, cfg.WriteTimeout, app.Logger)
	app.Journal = journal.NewLogger(app.DB, app.JournalRepository, app.Publisher, cfg.KafkaTopic, cfg.WriteTimeout, app.Logger)
	app.Linker = journal.NewLinker(app.DB, app.LedgerRepository, app.Logger)
	app.Repairer = journal.NewRepairer(
		app.DB, app.LedgerRepository, app.JournalRepository, app.Journal, app.Linker, app.Deriver,
		cfg.RepairGrace, cfg.RepairInterval, app.Logger,
	)

	app.Gateway = gateway.New(gateway.Config{
		ReserveAccount:      cfg.ReserveAccount,
		MaxAmountCents:      cfg.MaxAmountCents,
		SupportedCurrencies: cfg.SupportedCurrencies,
		DefaultCurrency:     cfg.DefaultCurrency,
	}, app.DB, app.LedgerRepository, app.Writer, app.Deriver, app.Journal, app.Linker, app.Limiter, app.Logger)

	app.Splits = split.NewService(
		split.Config{
			ReserveAccount:       cfg.ReserveAccount,
			PlatformFloorPercent: cfg.PlatformFloorPercent,
			DefaultCurrency:      cfg.DefaultCurrency,
		},
		app.DB, app.DB, app.SplitRepository, app.LedgerRepository, app.Writer, app.Deriver, app.Journal, app.Linker,
		db.BeginTx, db.CommitTx, db.RollbackTx, app.Logger,
	)
	app.Payouts = payout.NewService(
		payout.Config{
			ClearingAccount:     cfg.ClearingAccount,
			DefaultCurrency:     cfg.DefaultCurrency,
			SupportedCurrencies: cfg.SupportedCurrencies,
		},
		app.DB, app.DB, app.PayoutRepository, app.LedgerRepository, app.Writer, app.Deriver, app.Journal, app.Linker,
		db.BeginTx, db.CommitTx, db.RollbackTx, app.Logger,
	)
	app.Attributions = attribution.NewService(
		attribution.Config{FundingAccount: cfg.RevenueAccount},
		app.DB, app.DB, app.AttributionRepository, app.LedgerRepository, app.Writer, app.Deriver, app.Journal, app.Linker,
		db.BeginTx, db.CommitTx, db.RollbackTx, app.Logger,
	)
	app.Validator = reconcile.NewValidator(app.DB, app.LedgerRepository, cfg.SettleWindow, app.Logger)
	app.Logger.Info("Services initialized.")

	// 8. Initialize HTTP Handlers and Router
	app.HTTPHandler = router.NewRouter(router.Handlers{
		Transactions: handler.NewTransactionHandler(app.Gateway, app.Validator, app.Deriver, app.Logger),
		Splits:       handler.NewSplitHandler(app.Splits, app.Logger),
		Payouts:      handler.NewPayoutHandler(app.Payouts, app.Logger),
		Attributions: handler.NewAttributionHandler(app.Attributions, app.Logger),
	}, cfg.InternalAPIToken, app.Logger)
	app.Logger.Info("HTTP router and handlers initialized.")

	return nil
}

// initInfrastructure connects the rate limiter store and the analytics publisher.
// Both are optional; without them the limiter is in-process and events are dropped.
func (app *Application) initInfrastructure(ctx context.Context) error {
	cfg := app.Config

	switch {
	case cfg.RateLimitPerMinute == 0:
		app.Limiter = ratelimit.Unlimited{}
	case cfg.RedisURL != "":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		app.Redis = redis.NewClient(opts)
		app.closers = append(app.closers, app.Redis.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := app.Redis.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.Limiter = ratelimit.NewRedisLimiter(app.Redis, cfg.RateLimitPerMinute, time.Minute)
		app.Logger.Info("Rate limiter backed by redis.", "limit_per_minute", cfg.RateLimitPerMinute)
	default:
		app.Limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitPerMinute, time.Minute)
		app.Logger.Info("Rate limiter is in-process.", "limit_per_minute", cfg.RateLimitPerMinute)
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		app.Publisher = publisher
		app.closers = append(app.closers, publisher.Close)
		app.Logger.Info("Journal events are published to kafka.", "topic", cfg.KafkaTopic)
	} else {
		app.Publisher = events.NoopPublisher{}
	}
	return nil
}

// Start launches the background journal repair loop. It stops with ctx.
func (app *Application) Start(ctx context.Context) {
	go app.Repairer.Run(ctx)
}

// Shutdown gracefully shuts down application resources.
func (app *Application) Shutdown(ctx context.Context) error {
	app.Logger.Info("Shutting down application...")
	var firstErr error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.Logger.Error("Failed to close resource", "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to close resource: %w", err)
			}
		}
	}
	app.closers = nil
	app.Logger.Info("Application shut down gracefully.")
	return firstErr
}
