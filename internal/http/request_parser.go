package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"financeflow/internal/core"
)

// maxBodyBytes bounds request bodies; ledger payloads are a handful of fields.
const maxBodyBytes = 64 << 10

// RequestBodyParser reads a JSON or form-encoded body once and serves fields
// from whichever it was.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if p.err == nil && len(p.body) > maxBodyBytes {
			p.err = errors.New("request body too large")
		}
	}
	return p
}

// Parse decodes the body. JSON is tried first when the body looks like JSON.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true
	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}
	if trimmed[0] == '{' {
		p.jsonData = make(map[string]any)
		dec := json.NewDecoder(strings.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	return p.err
}

// Get returns the first non-empty value among keys, sanitized.
func (p *RequestBodyParser) Get(keys ...string) string {
	for _, key := range keys {
		var v string
		if p.jsonData != nil {
			if raw, ok := p.jsonData[key]; ok {
				v = stringValue(raw)
			}
		} else if p.formData != nil {
			v = p.formData.Get(key)
		}
		if v = sanitizeInput(v); v != "" {
			return v
		}
	}
	return ""
}

// Bool reports whether key holds a true value: JSON true, "true", "1", "on",
// "yes".
func (p *RequestBodyParser) Bool(key string) bool {
	switch strings.ToLower(p.Get(key)) {
	case "true", "1", "on", "yes":
		return true
	}
	return false
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput drops control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// parseBalance accepts any decimal, including zero and negatives. Spaces and
// underscores group digits; a comma may be the decimal separator.
func parseBalance(s string) (decimal.Decimal, error) {
	return parseDecimal("set balance", "balance", s)
}

// parseAllocation leaves sign checks to core.Budget.Validate, so a zero
// allocation is accepted.
func parseAllocation(s string) (decimal.Decimal, error) {
	return parseDecimal("set budget", "allocated", s)
}

func parseDecimal(op, field, s string) (decimal.Decimal, error) {
	s = strings.NewReplacer(" ", "", "_", "", ",", ".").Replace(strings.TrimSpace(s))
	if s == "" {
		return decimal.Zero, core.Invalid(op, field+" is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, core.Invalid(op, field+" must be a number")
	}
	return d, nil
}

var occurredAtLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

// parseOccurredAt returns the zero time for an empty value, which the ledger
// treats as now.
func parseOccurredAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range occurredAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, core.Invalid("add entry", "occurred_at must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
}

// pathID reads the {id} route variable.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, core.Invalid("", "invalid entry id")
	}
	return id, nil
}

// parseEntryFilter reads ?category=, ?pending= and ?before= from the query.
func parseEntryFilter(q url.Values) (core.EntryFilter, error) {
	f := core.EntryFilter{Category: sanitizeInput(q.Get("category"))}
	switch strings.ToLower(q.Get("pending")) {
	case "true", "1", "yes":
		f.PendingOnly = true
	}
	if v := strings.TrimSpace(q.Get("before")); v != "" {
		t, err := parseOccurredAt(v)
		if err != nil {
			return core.EntryFilter{}, core.Invalid("list entries", "before must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
		}
		f.Before = t
	}
	return f, nil
}
