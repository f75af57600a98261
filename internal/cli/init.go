// Package cli holds the start-up wiring shared by cmd/financeflow,
// cmd/financeflow-worker and cmd/financeflowctl.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"financeflow/internal/amqp"
	"financeflow/internal/config"
	"financeflow/internal/core"
	"financeflow/internal/events"
	"financeflow/internal/events/kafka"
	applog "financeflow/internal/log"
	"financeflow/internal/sheets"
	"financeflow/internal/sheets/google"
	"financeflow/internal/storage"
	"financeflow/internal/storage/memory"
	"financeflow/internal/storage/postgres"
)

// SetupLogger builds the process logger at level and makes it the slog
// default.
func SetupLogger(level string) *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Level = applog.ParseLevel(level)
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// OpenStore opens the configured data backend. SQL backends are migrated
// before they are returned.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.DataBackend {
	case config.BackendSQLite:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLiteDBPath, err)
		}
		return repo, nil
	case config.BackendPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return store, nil
	case config.BackendMemory:
		slog.WarnContext(ctx, "Using in-memory storage, data is lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown data backend %q", cfg.DataBackend)
	}
}

// Migrate applies pending schema migrations without opening a store and
// returns the schema version. The memory backend has no schema and reports 0.
func Migrate(cfg *config.Config) (uint, error) {
	switch cfg.DataBackend {
	case config.BackendSQLite:
		return storage.RunMigrations(cfg.SQLiteDBPath)
	case config.BackendPostgres:
		return postgres.RunMigrations(cfg.PostgresDSN)
	case config.BackendMemory:
		return 0, nil
	default:
		return 0, fmt.Errorf("unknown data backend %q", cfg.DataBackend)
	}
}

// NewPublisher connects the configured event broker. With no broker events
// are dropped.
func NewPublisher(cfg *config.Config) (events.Publisher, error) {
	switch cfg.EventBroker {
	case config.BrokerNone:
		return events.Nop{}, nil
	case config.BrokerAMQP:
		client, err := dialAMQP(cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.BrokerKafka:
		return kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	default:
		return nil, fmt.Errorf("unknown event broker %q", cfg.EventBroker)
	}
}

// NewConsumer connects to the configured broker for consuming.
func NewConsumer(cfg *config.Config) (events.Consumer, error) {
	switch cfg.EventBroker {
	case config.BrokerAMQP:
		client, err := dialAMQP(cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.BrokerKafka:
		return kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID), nil
	case config.BrokerNone:
		return nil, errors.New("EVENT_BROKER must be amqp or kafka to consume events")
	default:
		return nil, fmt.Errorf("unknown event broker %q", cfg.EventBroker)
	}
}

func dialAMQP(cfg *config.Config) (*amqp.Client, error) {
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return nil, fmt.Errorf("connect amqp: %w", err)
	}
	return client, nil
}

// OpenMirror returns the Google Sheets mirror, or nil when no spreadsheet
// is configured.
func OpenMirror(ctx context.Context, cfg *config.Config) (sheets.EntryMirror, error) {
	if strings.TrimSpace(cfg.GoogleSpreadsheetID) == "" {
		return nil, nil
	}
	client, err := google.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
	if err != nil {
		return nil, fmt.Errorf("open sheets mirror: %w", err)
	}
	return client, nil
}

// SeedAdmin creates the administrator account unless one with email already
// exists. It reports whether a user was created.
func SeedAdmin(ctx context.Context, store storage.Store, email, password string) (core.User, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if password == "" {
		return core.User{}, false, errors.New("admin password is required")
	}

	var (
		user    core.User
		created bool
	)
	err := store.WithTx(ctx, func(tx storage.Tx) error {
		existing, err := tx.GetUserByEmail(ctx, email)
		if err == nil {
			user = existing
			return nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		user, err = tx.CreateUser(ctx, core.User{
			Email:        email,
			FullName:     "Admin User",
			PasswordHash: string(hash),
			BaseCurrency: core.DefaultCurrency,
			CreatedAt:    time.Now().UTC(),
		})
		created = err == nil
		return err
	})
	if err != nil {
		return core.User{}, false, fmt.Errorf("seed admin %s: %w", email, err)
	}
	return user, created, nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. Once
// the signal arrives cleanup runs with a context bounded by timeout, and
// the returned channel closes when it finishes.
func GracefulShutdown(timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		sig := <-sigChan
		slog.Info("Shutdown signal received", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
			slog.Warn("Shutdown timeout reached")
		} else {
			slog.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}
