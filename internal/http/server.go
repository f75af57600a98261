package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"financeflow/internal/analytics"
	"financeflow/internal/core"
	applog "financeflow/internal/log"
	"financeflow/internal/middleware/identity"
	"financeflow/internal/middleware/ratelimit"
	"financeflow/internal/middleware/security"
	"financeflow/internal/middleware/trace"
	"financeflow/internal/rates"
	"financeflow/internal/services"
)

// Ledger is the subset of services.LedgerService the handlers use.
type Ledger interface {
	SetBalance(ctx context.Context, requesterID int64, balance decimal.Decimal, reset bool) (services.BalanceResult, error)
	AddEntry(ctx context.Context, requesterID int64, in services.NewEntry) (services.EntryResult, error)
	MarkPaid(ctx context.Context, requesterID, entryID int64) (services.EntryResult, error)
	UpdateTitle(ctx context.Context, requesterID, entryID int64, title string) (services.EntryResult, error)
	DeleteEntry(ctx context.Context, requesterID, entryID int64) (services.EntryResult, error)
	Dashboard(ctx context.Context, requesterID int64) (services.Dashboard, error)
	Entries(ctx context.Context, requesterID int64, f core.EntryFilter) ([]core.Entry, error)
	Analytics(ctx context.Context, requesterID int64) (analytics.Report, error)
	SetBudget(ctx context.Context, requesterID int64, category string, allocated decimal.Decimal) (core.Budget, error)
	Budgets(ctx context.Context, requesterID int64) ([]core.Budget, error)
	Activity(ctx context.Context, requesterID int64, limit int) ([]core.Activity, error)
}

var _ Ledger = (*services.LedgerService)(nil)

// RateSource supplies display conversion tables.
type RateSource interface {
	Rates(ctx context.Context, base string) rates.Table
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Addr               string
	Ledger             Ledger
	Rates              RateSource
	Health             Pinger
	Logger             *applog.Logger
	IdentityHeader     string
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	ledger  Ledger
	rates   RateSource
	health  Pinger
	limiter *ratelimit.Limiter
	tracer  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.Config{Handler: slog.Default().Handler(), Component: applog.ComponentHTTP})
	}
	if opts.Rates == nil {
		opts.Rates = rates.NewSource("", 0, nil)
	}

	ips := security.NewIPExtractor()
	s := &Server{
		ledger:  opts.Ledger,
		rates:   opts.Rates,
		health:  opts.Health,
		limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		tracer:  trace.NewMiddleware(ips.ClientIP),
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("route not found").Write(w)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError().Write(w)
	})
	r.Use(applog.Middleware(opts.Logger), s.tracer.Middleware, applog.RequestIDMiddleware(trace.FromRequest), security.Headers)

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	protect := func(sr *mux.Router) {
		sr.Use(
			identity.Middleware(opts.IdentityHeader, func(w http.ResponseWriter, r *http.Request) {
				UnauthorizedError("missing or invalid identity").Write(w)
			}),
			s.limiter.Middleware(rateLimitKey(ips), func(w http.ResponseWriter, r *http.Request) {
				slog.WarnContext(r.Context(), "Rate limit exceeded", "path", r.URL.Path)
				ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
			}),
		)
	}

	api := r.PathPrefix("/api").Subrouter()
	protect(api)
	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/balance", s.handleSetBalance).Methods(http.MethodPost)
	api.HandleFunc("/entries", s.handleListEntries).Methods(http.MethodGet)
	api.HandleFunc("/entries", s.handleAddEntry).Methods(http.MethodPost)
	api.HandleFunc("/entries/{id:[0-9]+}/paid", s.handleMarkPaid).Methods(http.MethodPost)
	api.HandleFunc("/entries/{id:[0-9]+}", s.handleUpdateTitle).Methods(http.MethodPatch)
	api.HandleFunc("/entries/{id:[0-9]+}", s.handleDeleteEntry).Methods(http.MethodDelete)
	api.HandleFunc("/analytics", s.handleAnalytics).Methods(http.MethodGet)
	api.HandleFunc("/budgets", s.handleListBudgets).Methods(http.MethodGet)
	api.HandleFunc("/budgets/{category}", s.handleSetBudget).Methods(http.MethodPut)
	api.HandleFunc("/rates", s.handleRates).Methods(http.MethodGet)
	api.HandleFunc("/export.xlsx", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/activity", s.handleActivity).Methods(http.MethodGet)

	// Routes of the original single-page client.
	legacy := r.NewRoute().Subrouter()
	protect(legacy)
	legacy.HandleFunc("/update_balance", s.handleSetBalance).Methods(http.MethodPost)
	legacy.HandleFunc("/add_expense", s.handleAddEntry).Methods(http.MethodPost)
	legacy.HandleFunc("/mark_as_paid/{id:[0-9]+}", s.handleMarkPaid).Methods(http.MethodPost)
	legacy.HandleFunc("/delete_expense/{id:[0-9]+}", s.handleDeleteEntry).Methods(http.MethodDelete, http.MethodPost)
	legacy.HandleFunc("/update_expense_description/{id:[0-9]+}", s.handleUpdateTitle).Methods(http.MethodPost)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// rateLimitKey limits per requester when the identity is known, otherwise
// per client address.
func rateLimitKey(ips *security.IPExtractor) func(*http.Request) string {
	return func(r *http.Request) string {
		if id, ok := identity.UserID(r.Context()); ok {
			return "user:" + strconv.FormatInt(id, 10)
		}
		return "ip:" + ips.ClientIP(r)
	}
}

// Shutdown stops the rate limiter janitor and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		m := s.tracer.GetMetrics()
		slog.InfoContext(ctx, "HTTP server shutting down",
			"total_requests", m.TotalRequests,
			"server_errors", m.TotalErrors,
			"avg_response_us", m.AverageResponseTime,
			"rate_limited", s.limiter.GetMetrics().TotalHits)
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "Readiness check failed", "error", err)
			ErrorResponse(http.StatusServiceUnavailable, "storage unavailable").Write(w)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// requester returns the identity placed in the context by the identity
// middleware.
func requester(r *http.Request) int64 {
	id, _ := identity.UserID(r.Context())
	return id
}
