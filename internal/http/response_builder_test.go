package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"financeflow/internal/core"
)

func TestJSONResponseBuilder(t *testing.T) {
	rr := httptest.NewRecorder()
	NewJSONResponse().
		Status(http.StatusCreated).
		Field("remaining", decimal.RequireFromString("800000")).
		Header("Location", "/api/entries/1").
		Write(rr)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("Location") != "/api/entries/1" {
		t.Errorf("Location = %q", rr.Header().Get("Location"))
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "success" || body["remaining"] != "800000" {
		t.Errorf("body = %v", body)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthorized", core.Unauthorized("mark paid", "entry", 3), http.StatusForbidden},
		{"not found", core.NotFound("delete entry", "entry", 9), http.StatusNotFound},
		{"validation", core.Invalid("add entry", "title cannot be empty"), http.StatusBadRequest},
		{"insufficient funds", core.InsufficientFunds("add entry", decimal.NewFromInt(10), decimal.NewFromInt(5)), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("handler: %w", core.Invalid("", "bad")), http.StatusBadRequest},
		{"persistence", core.Persistence("add entry", errors.New("disk full")), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFromErrorHidesServerFailures(t *testing.T) {
	rr := httptest.NewRecorder()
	FromError(core.Persistence("add entry", errors.New("constraint users_pkey violated"))).Write(rr)

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if body["message"] != "internal error, please try again later" {
		t.Errorf("message = %v", body["message"])
	}
}

func TestFromErrorKeepsClientMessage(t *testing.T) {
	rr := httptest.NewRecorder()
	FromError(core.Invalid("add entry", "title cannot be empty")).Write(rr)

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "error" || body["message"] != "title cannot be empty" {
		t.Errorf("body = %v", body)
	}
}
