package cache

import (
	"sync"

	"github.com/rickgao/quotestream/internal/model"
)

// Memory is the process-wide in-memory cache tier. Entries have no expiry;
// the tier is cleared only by process restart.
type Memory struct {
	mu     sync.RWMutex
	quotes map[string]model.Quote
}

// NewMemory creates an empty in-memory tier.
func NewMemory() *Memory {
	return &Memory{
		quotes: make(map[string]model.Quote),
	}
}

// Put stores a quote, replacing any previous value for the symbol.
func (m *Memory) Put(q model.Quote) {
	m.mu.Lock()
	m.quotes[q.Symbol] = q
	m.mu.Unlock()
}

// Get returns the cached quote for a symbol, if present.
func (m *Memory) Get(symbol string) (model.Quote, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quotes[symbol]
	return q, ok
}

// Len returns the number of cached symbols.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.quotes)
}
