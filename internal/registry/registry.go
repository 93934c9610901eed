package registry

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/rickgao/quotestream/internal/model"
)

// ChangeType distinguishes interest transitions that need wire traffic.
type ChangeType string

const (
	ChangeSubscribe   ChangeType = "subscribe"   // symbols gained their first interested consumer
	ChangeUnsubscribe ChangeType = "unsubscribe" // symbols lost their last interested consumer
)

// Change is an interest transition published to the Connection Manager.
type Change struct {
	Type    ChangeType
	Symbols []string
}

// Registry tracks per-symbol interest counts across all consumers.
type Registry struct {
	logger *slog.Logger

	mu       sync.Mutex
	interest map[string]int

	changes chan Change
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		interest: make(map[string]int),
		changes:  make(chan Change, 100),
	}
}

// Subscribe adds interest in the given symbols and returns the subset that
// became newly interesting (interest count went 0 to 1). Only those need a
// wire subscribe; symbols already live for another consumer need nothing.
func (r *Registry) Subscribe(symbols []string) []string {
	normalized := model.NormalizeSymbols(symbols)

	r.mu.Lock()
	added := make([]string, 0, len(normalized))
	for _, s := range normalized {
		r.interest[s]++
		if r.interest[s] == 1 {
			added = append(added, s)
		}
	}
	r.mu.Unlock()

	if len(added) > 0 {
		r.publish(Change{Type: ChangeSubscribe, Symbols: added})
	}
	return added
}

// Unsubscribe drops interest in the given symbols and returns the subset
// whose last interested consumer is gone. Symbols still held by another
// consumer stay live and produce no wire traffic.
func (r *Registry) Unsubscribe(symbols []string) []string {
	normalized := model.NormalizeSymbols(symbols)

	r.mu.Lock()
	removed := make([]string, 0, len(normalized))
	for _, s := range normalized {
		n, ok := r.interest[s]
		if !ok {
			continue
		}
		if n <= 1 {
			delete(r.interest, s)
			removed = append(removed, s)
		} else {
			r.interest[s] = n - 1
		}
	}
	r.mu.Unlock()

	if len(removed) > 0 {
		r.publish(Change{Type: ChangeUnsubscribe, Symbols: removed})
	}
	return removed
}

// Symbols returns the current interest set, sorted for deterministic
// resubscription after a reconnect.
func (r *Registry) Symbols() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.interest))
	for s := range r.interest {
		out = append(out, s)
	}
	r.mu.Unlock()

	sort.Strings(out)
	return out
}

// Interested reports whether any consumer currently holds the symbol.
func (r *Registry) Interested(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.interest[model.NormalizeSymbol(symbol)]
	return ok
}

// Changes returns the channel of interest transitions.
func (r *Registry) Changes() <-chan Change {
	return r.changes
}

func (r *Registry) publish(c Change) {
	select {
	case r.changes <- c:
	default:
		r.logger.Warn("registry change buffer full, dropping event",
			"type", c.Type,
			"symbols", len(c.Symbols),
		)
	}
}
