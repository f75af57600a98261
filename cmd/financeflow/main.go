package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/common-nighthawk/go-figure"
	"golang.org/x/sync/errgroup"

	"financeflow/internal/cache"
	"financeflow/internal/cli"
	apphttp "financeflow/internal/http"
	"financeflow/internal/jobs"
	applog "financeflow/internal/log"
	"financeflow/internal/rates"
	"financeflow/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := cli.OpenStore(bootCtx, cfg)
	bootCancel()
	if err != nil {
		logger.Error("Failed to open storage", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	publisher, err := cli.NewPublisher(cfg)
	if err != nil {
		logger.Error("Failed to connect event broker", "error", err, "broker", cfg.EventBroker)
		store.Close()
		os.Exit(1)
	}
	ledger := services.NewLedgerService(store, publisher)
	defer func() {
		if err := ledger.Close(); err != nil {
			logger.Error("Failed to close ledger service", "error", err)
		}
	}()

	if cfg.AdminPassword != "" {
		if user, created, err := cli.SeedAdmin(context.Background(), store, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			logger.Error("Failed to seed admin user", "error", err)
		} else if created {
			logger.Info("Admin user created", "user_id", user.ID, "email", user.Email)
		}
	}

	rateSource := rates.NewSource(cfg.RatesURL, cfg.RatesTTL, &http.Client{Timeout: 10 * time.Second})
	caches := cache.NewManager()
	caches.Register(rateSource.Cache())
	caches.StartCleanup(5 * time.Minute)

	reminder := jobs.NewReminder(store, publisher, cfg.ReminderSchedule, cfg.Location())

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               net.JoinHostPort("", cfg.Port),
		Ledger:             ledger,
		Rates:              rateSource,
		Health:             store,
		Logger:             logger.WithComponent(applog.ComponentHTTP),
		IdentityHeader:     cfg.IdentityHeader,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := reminder.Stop(ctx); err != nil {
			logger.Warn("Reminder stop error", "error", err)
		}
		caches.Stop()
		st := rateSource.Cache().Stats()
		logger.Info("Rate cache statistics", "hits", st.Hits, "misses", st.Misses, "expired", st.Expired)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reminder.Start(gctx)
	})
	g.Go(func() error {
		figure.NewColorFigure("FinanceFlow", "puffy", "green", true).Print()
		logger.Info("Starting financeflow server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"broker", cfg.EventBroker)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server error", "error", err, "port", cfg.Port)
		caches.Stop()
		os.Exit(1)
	}
	<-done
	logger.Info("Server stopped gracefully")
}
