package input

import (
	"context"
	"sync"

	"github.com/xkilldash9x/vzpilot/api/schemas"
)

// mockSink records delivered events. MockDeliver replaces the default behaviour
// when set and may call DefaultDeliver to keep recording.
type mockSink struct {
	mu     sync.Mutex
	events []schemas.KeyEvent

	MockDeliver    func(ctx context.Context, ev schemas.KeyEvent) error
	MockCanDeliver func(code uint16) error
}

func (m *mockSink) CanDeliver(code uint16) error {
	if m.MockCanDeliver != nil {
		return m.MockCanDeliver(code)
	}
	return nil
}

func newMockSink() *mockSink {
	return &mockSink{events: make([]schemas.KeyEvent, 0)}
}

func (m *mockSink) Deliver(ctx context.Context, ev schemas.KeyEvent) error {
	if m.MockDeliver != nil {
		return m.MockDeliver(ctx, ev)
	}
	return m.DefaultDeliver(ctx, ev)
}

func (m *mockSink) DefaultDeliver(ctx context.Context, ev schemas.KeyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// recorded returns a copy of the events, safe under -race.
func (m *mockSink) recorded() []schemas.KeyEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schemas.KeyEvent, len(m.events))
	copy(out, m.events)
	return out
}
