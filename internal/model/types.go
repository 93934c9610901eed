package model

import (
	"strings"
	"time"
)

// Quote is a single priced observation for a symbol at a point in time.
// A new Quote for the same symbol replaces the previous one, never merges.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Bid       float64 `json:"bid,omitempty"`
	Ask       float64 `json:"ask,omitempty"`
	Volume    int64   `json:"volume,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"` // RFC3339, as delivered by the feed
	Source    string  `json:"source,omitempty"`
	TradeID   string  `json:"tradeId,omitempty"`
}

// Time parses the quote timestamp. Returns the zero time if the field is
// missing or not RFC3339.
func (q Quote) Time() time.Time {
	t, err := time.Parse(time.RFC3339, q.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// NormalizeSymbol canonicalizes a ticker symbol: trimmed and uppercased.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeSymbols canonicalizes a list of symbols, dropping empties and
// duplicates while preserving first-seen order.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		n := NormalizeSymbol(s)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
