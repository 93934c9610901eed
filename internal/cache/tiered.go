package cache

import (
	"context"
	"log/slog"

	"github.com/rickgao/quotestream/internal/model"
)

// Tiered combines the in-memory tier with an optional persisted tier.
// Writes go to both; reads check memory first, then the persisted tier,
// promoting hits into memory.
type Tiered struct {
	mem       *Memory
	persisted Store // nil when persisted caching is disabled
	logger    *slog.Logger
}

// NewTiered creates a two-tier cache. persisted may be nil.
func NewTiered(persisted Store, logger *slog.Logger) *Tiered {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tiered{
		mem:       NewMemory(),
		persisted: persisted,
		logger:    logger,
	}
}

// Put stores a quote in both tiers. Persisted-tier failures are logged and
// swallowed; the memory tier is always current.
func (t *Tiered) Put(ctx context.Context, q model.Quote) {
	t.mem.Put(q)

	if t.persisted == nil {
		return
	}
	if err := t.persisted.Set(ctx, q); err != nil {
		t.logger.Warn("persisted cache write failed",
			"symbol", q.Symbol,
			"error", err,
		)
	}
}

// Lookup returns an initial value for a symbol: memory tier first, then
// the persisted tier. A persisted hit is promoted into memory.
func (t *Tiered) Lookup(ctx context.Context, symbol string) (model.Quote, bool) {
	if q, ok := t.mem.Get(symbol); ok {
		return q, true
	}

	if t.persisted == nil {
		return model.Quote{}, false
	}

	q, ok, err := t.persisted.Get(ctx, symbol)
	if err != nil {
		t.logger.Warn("persisted cache read failed",
			"symbol", symbol,
			"error", err,
		)
		return model.Quote{}, false
	}
	if !ok {
		return model.Quote{}, false
	}

	t.mem.Put(q)
	return q, true
}

// Memory exposes the in-memory tier.
func (t *Tiered) Memory() *Memory {
	return t.mem
}
