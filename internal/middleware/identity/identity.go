// Package identity reads the requester id placed on each request by the
// upstream identity provider.
package identity

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

type contextKey struct{}

const DefaultHeader = "X-User-ID"

// WithUserID returns a copy of ctx carrying id.
func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// UserID returns the requester id stored by Middleware.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(contextKey{}).(int64)
	return id, ok
}

// Parse accepts a positive decimal id.
func Parse(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Middleware rejects requests whose header is missing or malformed by
// calling onMissing; otherwise the id is stored in the request context.
func Middleware(header string, onMissing func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := Parse(r.Header.Get(header))
			if !ok {
				if onMissing != nil {
					onMissing(w, r)
				} else {
					http.Error(w, "missing or invalid identity", http.StatusUnauthorized)
				}
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
		})
	}
}
