package model

import (
	"testing"
	"time"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"aapl", "AAPL"},
		{"  msft ", "MSFT"},
		{"BRK.B", "BRK.B"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		if got := NormalizeSymbol(tt.in); got != tt.want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeSymbols(t *testing.T) {
	got := NormalizeSymbols([]string{"aapl", "AAPL", " msft", "", "tsla", "MSFT"})

	want := []string{"AAPL", "MSFT", "TSLA"}
	if len(got) != len(want) {
		t.Fatalf("NormalizeSymbols returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("NormalizeSymbols[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestQuote_Time(t *testing.T) {
	q := Quote{Symbol: "AAPL", Timestamp: "2024-01-15T12:00:00Z"}

	want := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	if got := q.Time(); !got.Equal(want) {
		t.Errorf("Time() = %v, want %v", got, want)
	}
}

func TestQuote_Time_Invalid(t *testing.T) {
	q := Quote{Symbol: "AAPL", Timestamp: "not-a-time"}

	if got := q.Time(); !got.IsZero() {
		t.Errorf("Time() = %v, want zero time", got)
	}
}
