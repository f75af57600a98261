package http

import (
	"bytes"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"financeflow/internal/core"
	"financeflow/internal/export"
	applog "financeflow/internal/log"
	"financeflow/internal/rates"
)

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	report, err := s.ledger.Analytics(r.Context(), requester(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Field("analytics", toReportView(report)).Write(w)
}

// handleSetBudget accepts {allocated} for the category in the path.
func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	allocated, err := parseAllocation(p.Get("allocated", "amount"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.ledger.SetBudget(r.Context(), requester(r), sanitizeInput(mux.Vars(r)["category"]), allocated)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Field("budget", budgetView{Category: b.Category, Allocated: b.Allocated}).
		Write(w)
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.ledger.Budgets(r.Context(), requester(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]budgetView, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, budgetView{Category: b.Category, Allocated: b.Allocated})
	}
	NewJSONResponse().Field("budgets", out).Write(w)
}

// handleRates converts ?amount= (the remaining balance when omitted) from
// the requester's currency into the display currencies.
func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d, err := s.ledger.Dashboard(ctx, requester(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	amount := d.Totals.Remaining
	if raw := strings.TrimSpace(r.URL.Query().Get("amount")); raw != "" {
		amount, err = decimal.NewFromString(raw)
		if err != nil {
			s.writeError(w, r, core.Invalid("convert", "amount must be a number"))
			return
		}
	}

	base := d.User.Currency()
	table := s.rates.Rates(ctx, base)
	NewJSONResponse().
		Field("base", base).
		Field("amount", amount).
		Field("conversions", table.ConvertAll(amount, rates.DisplayCodes)).
		Write(w)
}

// handleExport streams the requester's entries, oldest first, as XLSX.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	d, err := s.ledger.Dashboard(r.Context(), requester(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries := slices.Clone(d.Entries)
	slices.Reverse(entries)

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, d.User, entries, d.Totals); err != nil {
		s.writeError(w, r, core.Persistence("export", err))
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="financeflow-%d.xlsx"`, d.User.ID))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			s.writeError(w, r, core.Invalid("list activity", "limit must be between 1 and 500"))
			return
		}
		limit = n
	}
	items, err := s.ledger.Activity(r.Context(), requester(r), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]activityView, 0, len(items))
	for _, a := range items {
		out = append(out, toActivityView(a))
	}
	NewJSONResponse().Field("activity", out).Write(w)
}

func (s *Server) logger(r *http.Request) *applog.Logger {
	return applog.FromContext(r.Context())
}
