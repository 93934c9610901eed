package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/quotestream/internal/model"
)

// Config holds batcher settings.
type Config struct {
	FlushInterval    time.Duration // Delivery cadence (default: 100ms)
	SubscriberBuffer int           // Per-subscriber channel buffer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FlushInterval:    100 * time.Millisecond,
		SubscriberBuffer: 16,
	}
}

// Batcher coalesces per-symbol ticks into one delivery per flush window.
// Within a window the latest value per symbol wins; different symbols in
// the same window are delivered together.
type Batcher struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]model.Quote // overwritten per symbol until flushed
	visible map[string]model.Quote // consumer-visible quote table
	subs    map[int64]chan []model.Quote
	nextSub int64

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	flushTicker *time.Ticker
}

// New creates a Batcher.
func New(cfg Config, logger *slog.Logger) *Batcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = DefaultConfig().SubscriberBuffer
	}
	return &Batcher{
		cfg:     cfg,
		logger:  logger,
		pending: make(map[string]model.Quote),
		visible: make(map[string]model.Quote),
		subs:    make(map[int64]chan []model.Quote),
	}
}

// Start begins the flush loop.
func (b *Batcher) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.flushTicker = time.NewTicker(b.cfg.FlushInterval)

	b.wg.Add(1)
	go b.flushLoop()

	b.logger.Debug("update batcher started", "flush_interval", b.cfg.FlushInterval)
	return nil
}

// Stop halts the flush loop after a final flush of anything pending.
func (b *Batcher) Stop(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}
	if b.flushTicker != nil {
		b.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("update batcher stop timed out")
	}

	b.flush()
	return nil
}

// Add records an inbound tick. The latest value per symbol within a flush
// window supersedes earlier ones.
func (b *Batcher) Add(q model.Quote) {
	b.mu.Lock()
	b.pending[q.Symbol] = q
	b.mu.Unlock()
}

// Seed installs a cache-hydrated quote into the visible table, but only if
// the symbol has no value yet. Live data always wins over hydration.
func (b *Batcher) Seed(q model.Quote) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, live := b.visible[q.Symbol]; live {
		return false
	}
	if _, inflight := b.pending[q.Symbol]; inflight {
		return false
	}
	b.visible[q.Symbol] = q
	return true
}

// Evict removes symbols from the consumer-visible table and from any
// pending window.
func (b *Batcher) Evict(symbols []string) {
	b.mu.Lock()
	for _, s := range symbols {
		delete(b.visible, s)
		delete(b.pending, s)
	}
	b.mu.Unlock()
}

// Snapshot returns a copy of the consumer-visible quote table.
func (b *Batcher) Snapshot() map[string]model.Quote {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]model.Quote, len(b.visible))
	for s, q := range b.visible {
		out[s] = q
	}
	return out
}

// Subscribe registers a delivery channel for flushed batches.
func (b *Batcher) Subscribe() (int64, <-chan []model.Quote) {
	ch := make(chan []model.Quote, b.cfg.SubscriberBuffer)

	b.mu.Lock()
	b.nextSub++
	id := b.nextSub
	b.subs[id] = ch
	b.mu.Unlock()

	return id, ch
}

// Unsubscribe removes a delivery channel. The channel is closed under the
// same lock that serializes flush fan-out, so no send can hit it after
// removal.
func (b *Batcher) Unsubscribe(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// flushLoop delivers merged batches on the flush cadence. An empty window
// ticks through without a merge or delivery.
func (b *Batcher) flushLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-b.flushTicker.C:
			b.flush()
		}
	}
}

// flush merges the pending window into the visible table and fans the
// batch out to subscribers. Fan-out happens under the lock: sends never
// block, and Unsubscribe closes channels under the same lock, so a
// concurrent unsubscribe cannot close a channel mid fan-out.
func (b *Batcher) flush() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return
	}

	batch := make([]model.Quote, 0, len(b.pending))
	for s, q := range b.pending {
		b.visible[s] = q
		batch = append(batch, q)
	}
	b.pending = make(map[string]model.Quote)

	for _, ch := range b.subs {
		select {
		case ch <- batch:
		default:
			b.logger.Warn("subscriber buffer full, dropping batch", "quotes", len(batch))
		}
	}
}
