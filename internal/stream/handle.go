package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rickgao/quotestream/internal/batch"
	"github.com/rickgao/quotestream/internal/cache"
	"github.com/rickgao/quotestream/internal/connection"
	"github.com/rickgao/quotestream/internal/model"
	"github.com/rickgao/quotestream/internal/registry"
)

// Errors
var (
	ErrDetached    = errors.New("handle is detached")
	ErrNotAttached = errors.New("handle is not attached")
)

// HandleState is the consumer handle lifecycle state.
type HandleState string

const (
	StateUnattached HandleState = "unattached"
	StateAttached   HandleState = "attached"
	StateDetached   HandleState = "detached" // terminal
)

// Options configures a new Handle.
type Options struct {
	Symbols     []string // Initial symbol interest
	AutoConnect bool     // Attach (and subscribe) at construction
}

// Handle is a per-consumer facade over the shared connection. Closing a
// handle detaches it but deliberately leaves its symbols subscribed: other
// consumers may still hold them, and the registry drops a symbol only when
// its last holder unsubscribes.
type Handle struct {
	id      uuid.UUID
	mgr     *connection.Manager
	reg     *registry.Registry
	batcher *batch.Batcher
	cache   *cache.Tiered
	logger  *slog.Logger

	mu      sync.Mutex
	state   HandleState
	symbols map[string]struct{} // this consumer's own interest
	subID   int64
	updates <-chan []model.Quote
}

// NewHandle creates a consumer handle. With Options.AutoConnect it attaches
// immediately and subscribes the initial symbols.
func NewHandle(
	mgr *connection.Manager,
	reg *registry.Registry,
	batcher *batch.Batcher,
	quoteCache *cache.Tiered,
	opts Options,
	logger *slog.Logger,
) (*Handle, error) {
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.New()
	h := &Handle{
		id:      id,
		mgr:     mgr,
		reg:     reg,
		batcher: batcher,
		cache:   quoteCache,
		logger:  logger.With("handle", id.String()),
		state:   StateUnattached,
		symbols: make(map[string]struct{}),
	}

	if opts.AutoConnect {
		if err := h.Attach(); err != nil {
			return nil, err
		}
		if len(opts.Symbols) > 0 {
			if err := h.Subscribe(opts.Symbols); err != nil {
				return nil, err
			}
		}
	}

	return h, nil
}

// ID returns the handle's identity.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// State returns the handle lifecycle state.
func (h *Handle) State() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Attach joins the shared connection. Attaching an already-attached handle
// is a no-op; a detached handle cannot be revived.
func (h *Handle) Attach() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case StateDetached:
		return ErrDetached
	case StateAttached:
		return nil
	}

	h.mgr.Attach()
	h.subID, h.updates = h.batcher.Subscribe()
	h.state = StateAttached

	h.logger.Debug("handle attached")
	return nil
}

// Subscribe registers interest in symbols and hydrates initial values from
// the cache so the consumer sees data before the first live tick.
func (h *Handle) Subscribe(symbols []string) error {
	h.mu.Lock()
	if h.state != StateAttached {
		h.mu.Unlock()
		return ErrNotAttached
	}

	fresh := make([]string, 0, len(symbols))
	for _, s := range model.NormalizeSymbols(symbols) {
		if _, held := h.symbols[s]; held {
			continue
		}
		h.symbols[s] = struct{}{}
		fresh = append(fresh, s)
	}
	h.mu.Unlock()

	if len(fresh) == 0 {
		return nil
	}

	h.reg.Subscribe(fresh)
	h.hydrate(fresh)
	return nil
}

// Unsubscribe drops this handle's interest in symbols. Symbols the handle
// never held are ignored; symbols still held by other consumers stay live.
func (h *Handle) Unsubscribe(symbols []string) error {
	h.mu.Lock()
	if h.state != StateAttached {
		h.mu.Unlock()
		return ErrNotAttached
	}

	held := make([]string, 0, len(symbols))
	for _, s := range model.NormalizeSymbols(symbols) {
		if _, ok := h.symbols[s]; !ok {
			continue
		}
		delete(h.symbols, s)
		held = append(held, s)
	}
	h.mu.Unlock()

	if len(held) == 0 {
		return nil
	}

	h.reg.Unsubscribe(held)
	return nil
}

// Reconnect force-closes the shared connection and dials again, resetting
// backoff. Affects every attached consumer.
func (h *Handle) Reconnect() error {
	h.mu.Lock()
	if h.state != StateAttached {
		h.mu.Unlock()
		return ErrNotAttached
	}
	h.mu.Unlock()

	return h.mgr.Reconnect()
}

// Close detaches the handle. Its symbols are NOT unsubscribed; teardown
// only stops crediting this consumer's reference.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.state != StateAttached {
		h.state = StateDetached
		h.mu.Unlock()
		return nil
	}
	h.state = StateDetached
	subID := h.subID
	h.mu.Unlock()

	h.batcher.Unsubscribe(subID)
	h.mgr.Detach()

	h.logger.Debug("handle detached")
	return nil
}

// Updates returns the channel of batched quote deliveries. Nil before
// Attach.
func (h *Handle) Updates() <-chan []model.Quote {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.updates
}

// Quotes returns a snapshot of the consumer-visible quote table.
func (h *Handle) Quotes() map[string]model.Quote {
	return h.batcher.Snapshot()
}

// IsConnected reports whether the shared connection is open.
func (h *Handle) IsConnected() bool {
	return h.mgr.IsConnected()
}

// Err returns the most recent connection or feed error, nil when healthy.
func (h *Handle) Err() error {
	return h.mgr.LastError()
}

// hydrate seeds the visible table from the cache: memory tier first, then
// the persisted tier. Live data, once it arrives, always wins.
func (h *Handle) hydrate(symbols []string) {
	for _, s := range symbols {
		q, ok := h.cache.Lookup(context.Background(), s)
		if !ok {
			continue
		}
		if h.batcher.Seed(q) {
			h.logger.Debug("hydrated symbol from cache", "symbol", s)
		}
	}
}
