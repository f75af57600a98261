package http

import (
	"net/http"

	"financeflow/internal/core"
	applog "financeflow/internal/log"
	"financeflow/internal/services"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.ledger.Dashboard(r.Context(), requester(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Field("user", toUserView(d.User)).
		Field("totals", toTotalsView(d.Totals)).
		Field("entries", toEntryViews(d.Entries)).
		Write(w)
}

// handleSetBalance accepts {balance, should_reset}.
func (s *Server) handleSetBalance(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	balance, err := parseBalance(p.Get("balance"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.ledger.SetBalance(r.Context(), requester(r), balance, p.Bool("should_reset"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Field("new_balance", res.NewBalance).
		Field("remaining", res.Totals.Remaining).
		Field("removed", res.Removed).
		Field("totals", toTotalsView(res.Totals)).
		Write(w)
}

// handleAddEntry accepts {title|description, category, amount, occurred_at}.
func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	occurredAt, err := parseOccurredAt(p.Get("occurred_at", "date_to_handle"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.ledger.AddEntry(r.Context(), requester(r), services.NewEntry{
		Title:      p.Get("title", "description"),
		Category:   p.Get("category"),
		Amount:     amount,
		OccurredAt: occurredAt,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeEntryResult(w, http.StatusCreated, res)
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.ledger.MarkPaid(r.Context(), requester(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeEntryResult(w, http.StatusOK, res)
}

// handleUpdateTitle accepts {title} or {description}.
func (s *Server) handleUpdateTitle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	res, err := s.ledger.UpdateTitle(r.Context(), requester(r), id, p.Get("title", "description"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeEntryResult(w, http.StatusOK, res)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.ledger.DeleteEntry(r.Context(), requester(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Field("deleted_id", res.Entry.ID).
		Field("remaining", res.Totals.Remaining).
		Field("totals", toTotalsView(res.Totals)).
		Write(w)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	f, err := parseEntryFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.ledger.Entries(r.Context(), requester(r), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Field("entries", toEntryViews(entries)).
		Field("count", len(entries)).
		Write(w)
}

func writeEntryResult(w http.ResponseWriter, status int, res services.EntryResult) {
	NewJSONResponse().
		Status(status).
		Field("entry", toEntryView(res.Entry)).
		Field("remaining", res.Totals.Remaining).
		Field("totals", toTotalsView(res.Totals)).
		Write(w)
}

// parseBody writes a 400 and reports false when the body cannot be decoded.
func (s *Server) parseBody(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, bool) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return nil, false
	}
	return p, true
}

// writeError logs err at a level matching its status and writes the mapped
// response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		fields := applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent())
		fields[applog.FieldOwnerID] = requester(r)
		applog.NewStructuredLogger(s.logger(r)).LogError(ctx, "Request failed", err, applog.ComponentHTTP, core.Op(err), fields)
	} else {
		s.logger(r).WarnContext(ctx, "Request rejected", "path", r.URL.Path, "owner_id", requester(r), "status_code", status, "error", err)
	}
	FromError(err).Write(w)
}
