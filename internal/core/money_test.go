package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"200000", "200000", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{" 2.50 ", "2.5", true},
		{"1 500 000", "1500000", true},
		{"1_000", "1000", true},
		{"0.01", "0.01", true},
		{"-1", "", false},
		{"+1", "", false},
		{"0", "", false},
		{"0.00", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1e5", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
			continue
		}
		if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%q expected validation error, got %v", tc.in, err)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in       string
		currency string
		want     string
	}{
		{"1250000", "UGX", "UGX 1,250,000"},
		{"999", "", "UGX 999"},
		{"1000.5", "USD", "USD 1,000.50"},
		{"-300", "UGX", "UGX -300"},
		{"0", "UGX", "UGX 0"},
	}
	for _, tc := range cases {
		if got := FormatAmount(decimal.RequireFromString(tc.in), tc.currency); got != tc.want {
			t.Errorf("FormatAmount(%s, %q) = %q, want %q", tc.in, tc.currency, got, tc.want)
		}
	}
}
