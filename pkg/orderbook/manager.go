package orderbook

import (
	"context"
	"sync"

	"github.com/tradekit/bookfeed/pkg/messaging"
)

// Manager fans one message stream out to per-product engines, creating them
// lazily as products first appear.
type Manager struct {
	mu    sync.RWMutex
	books map[string]*LiveOrderbook
	cfg   Config
}

// NewManager creates a manager. cfg is the template for every engine it
// creates; ProductID is filled in per product.
func NewManager(cfg Config) *Manager {
	return &Manager{
		books: make(map[string]*LiveOrderbook),
		cfg:   cfg,
	}
}

// Ingest routes msg to its product's engine
func (m *Manager) Ingest(ctx context.Context, msg messaging.StreamMessage) {
	m.Get(msg.Product()).Ingest(ctx, msg)
}

// Get returns the engine for productID, creating it if needed
func (m *Manager) Get(productID string) *LiveOrderbook {
	m.mu.RLock()
	lo, ok := m.books[productID]
	m.mu.RUnlock()
	if ok {
		return lo
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if lo, ok := m.books[productID]; ok {
		return lo
	}
	cfg := m.cfg
	cfg.ProductID = productID
	lo = NewLiveOrderbook(cfg)
	m.books[productID] = lo
	return lo
}

// Products returns the product IDs with an engine, in no particular order
func (m *Manager) Products() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.books))
	for id := range m.books {
		out = append(out, id)
	}
	return out
}
