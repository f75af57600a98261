package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"financeflow/internal/core"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// JSONResponseBuilder provides a fluent API for the {status, ...} payloads
// every API route returns.
type JSONResponseBuilder struct {
	statusCode int
	payload    map[string]any
	headers    map[string]string
}

// NewJSONResponse starts a 200 response with status "success".
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		payload:    map[string]any{"status": statusSuccess},
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Field adds a top-level key to the payload.
func (b *JSONResponseBuilder) Field(key string, value any) *JSONResponseBuilder {
	b.payload[key] = value
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// ErrorResponse builds {status:"error", message}.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: statusCode,
		payload:    map[string]any{"status": statusError, "message": message},
		headers:    make(map[string]string),
	}
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func UnauthorizedError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, message)
}

func MethodNotAllowedError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, "method not allowed")
}

// StatusFor maps a ledger error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrInsufficientFunds):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// FromError builds the error response for err. Messages of server-side
// failures are not exposed.
func FromError(err error) *JSONResponseBuilder {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		return ErrorResponse(status, "internal error, please try again later")
	}
	return ErrorResponse(status, core.Message(err))
}
