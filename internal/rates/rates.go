// Package rates provides display-only currency conversion for ledger
// amounts. It never feeds back into ledger arithmetic.
package rates

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"financeflow/internal/cache"
)

const (
	DefaultBase = "UGX"
	DefaultTTL  = time.Hour
)

// Table maps a currency code to the value of one base unit in that currency.
type Table map[string]decimal.Decimal

// Fallback is served whenever the remote source cannot be used. Rates are
// relative to UGX.
func Fallback() Table {
	return Table{
		"USD": decimal.RequireFromString("0.00027"),
		"EUR": decimal.RequireFromString("0.00025"),
		"GBP": decimal.RequireFromString("0.00021"),
		"KES": decimal.RequireFromString("0.039"),
	}
}

// FallbackFor rebases Fallback onto base. A base the fallback table does not
// know yields an empty table, so nothing is converted.
func FallbackFor(base string) Table {
	base = strings.ToUpper(strings.TrimSpace(base))
	t := Fallback()
	if base == "" || base == DefaultBase {
		return t
	}
	rate, ok := t[base]
	if !ok {
		return Table{}
	}
	out := Table{DefaultBase: decimal.NewFromInt(1).Div(rate)}
	for code, r := range t {
		if code != base {
			out[code] = r.Div(rate)
		}
	}
	return out
}

// DisplayCodes are the currencies shown next to ledger amounts.
var DisplayCodes = []string{"USD", "EUR", "GBP", "KES"}

// Convert returns amount expressed in code, rounded to 2 decimals.
func (t Table) Convert(amount decimal.Decimal, code string) (decimal.Decimal, bool) {
	rate, ok := t[strings.ToUpper(code)]
	if !ok {
		return decimal.Zero, false
	}
	return amount.Mul(rate).Round(2), true
}

// ConvertAll converts amount into every code the table knows among codes,
// skipping the rest.
func (t Table) ConvertAll(amount decimal.Decimal, codes []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(codes))
	for _, code := range codes {
		if v, ok := t.Convert(amount, code); ok {
			out[code] = v
		}
	}
	return out
}

// Codes lists the table's currency codes in order.
func (t Table) Codes() []string {
	codes := make([]string, 0, len(t))
	for c := range t {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Source fetches rate tables over HTTP. The document must carry a
// "conversion_rates" object, as exchangerate-api does.
type Source struct {
	url    string
	client *http.Client
	cache  *cache.LRUCache[Table]
	group  singleflight.Group
}

// NewSource builds a source for url. A "{base}" placeholder in url is replaced
// with the requested base code; otherwise the code is appended. An empty url
// disables fetching and every call returns FallbackFor(base).
func NewSource(url string, ttl time.Duration, client *http.Client) *Source {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Source{
		url:    strings.TrimSpace(url),
		client: client,
		cache:  cache.NewLRUCache[Table](16, ttl),
	}
}

// Cache exposes the underlying cache so it can be registered with a
// cache.Manager for sweeping.
func (s *Source) Cache() *cache.LRUCache[Table] {
	return s.cache
}

// Rates returns the table for base. It never fails: any fetch problem is
// logged and FallbackFor(base) is returned. Concurrent misses share one request.
func (s *Source) Rates(ctx context.Context, base string) Table {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		base = DefaultBase
	}
	if s.url == "" {
		return FallbackFor(base)
	}
	if t, ok := s.cache.Get(base); ok {
		return t
	}

	v, err, _ := s.group.Do(base, func() (any, error) {
		t, err := s.fetch(ctx, base)
		if err != nil {
			return nil, err
		}
		s.cache.Set(base, t)
		return t, nil
	})
	if err != nil {
		slog.WarnContext(ctx, "Using fallback currency rates", "base", base, "error", err)
		return FallbackFor(base)
	}
	return v.(Table)
}

func (s *Source) fetch(ctx context.Context, base string) (Table, error) {
	url := s.url
	if strings.Contains(url, "{base}") {
		url = strings.ReplaceAll(url, "{base}", base)
	} else {
		url = strings.TrimRight(url, "/") + "/" + base
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build rates request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rates endpoint returned %d", resp.StatusCode)
	}

	var doc struct {
		ConversionRates map[string]decimal.Decimal `json:"conversion_rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}

	t := make(Table, len(doc.ConversionRates))
	for code, rate := range doc.ConversionRates {
		if rate.IsPositive() {
			t[strings.ToUpper(code)] = rate
		}
	}
	if len(t) == 0 {
		return nil, fmt.Errorf("rates document has no usable rates")
	}

	slog.InfoContext(ctx, "Currency rates refreshed", "base", base, "count", len(t))
	return t, nil
}
