package messaging

import (
	"context"
	"sync"
)

// MockEventSender records events for testing.
type MockEventSender struct {
	mu     sync.Mutex
	events []*BookEvent
}

// NewMockEventSender creates a new MockEventSender.
func NewMockEventSender() *MockEventSender {
	return &MockEventSender{}
}

// SendBookEvent records the event.
func (m *MockEventSender) SendBookEvent(_ context.Context, event *BookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (m *MockEventSender) Events() []*BookEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*BookEvent, len(m.events))
	copy(out, m.events)
	return out
}

// ByKind returns the recorded events matching kind, in order.
func (m *MockEventSender) ByKind(kind EventKind) []*BookEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*BookEvent
	for _, e := range m.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards all recorded events.
func (m *MockEventSender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// Close does nothing.
func (m *MockEventSender) Close() error {
	return nil
}

// Ensure MockEventSender implements EventSender
var _ EventSender = (*MockEventSender)(nil)
