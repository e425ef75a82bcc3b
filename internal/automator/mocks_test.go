package automator

import (
	"context"
	"image"
	"sync"

	"github.com/xkilldash9x/vzpilot/api/schemas"
	"github.com/xkilldash9x/vzpilot/internal/perception"
)

// mockOCR returns whatever lines are currently set.
type mockOCR struct {
	mu    sync.Mutex
	lines []string
	calls int

	MockRecognize func(ctx context.Context, img image.Image) ([]perception.Recognition, error)
}

func (m *mockOCR) setLines(lines ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = lines
}

func (m *mockOCR) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockOCR) Recognize(ctx context.Context, img image.Image) ([]perception.Recognition, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.MockRecognize != nil {
		return m.MockRecognize(ctx, img)
	}
	return m.DefaultRecognize(ctx, img)
}

func (m *mockOCR) DefaultRecognize(ctx context.Context, img image.Image) ([]perception.Recognition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]perception.Recognition, len(m.lines))
	for i, l := range m.lines {
		out[i] = perception.Recognition{Text: l, Bounds: image.Rect(0, 0, 1, 1)}
	}
	return out, nil
}

// mockSink records delivered key events.
type mockSink struct {
	mu     sync.Mutex
	events []schemas.KeyEvent
}

func (m *mockSink) Deliver(ctx context.Context, ev schemas.KeyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *mockSink) recorded() []schemas.KeyEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schemas.KeyEvent, len(m.events))
	copy(out, m.events)
	return out
}

// mockMonitor reports a scripted sequence of states, repeating the last one.
type mockMonitor struct {
	mu     sync.Mutex
	states []schemas.MachineState
	err    error
}

func (m *mockMonitor) State(ctx context.Context) (schemas.MachineState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return schemas.MachineUnknown, m.err
	}
	s := m.states[0]
	if len(m.states) > 1 {
		m.states = m.states[1:]
	}
	return s, nil
}

// heldSource wraps a FrameSource and tracks outstanding acquisitions.
type heldSource struct {
	schemas.FrameSource
	mu          sync.Mutex
	outstanding int
	maxHeld     int
}

func (h *heldSource) Acquire(ctx context.Context) (*schemas.Frame, func(), error) {
	f, release, err := h.FrameSource.Acquire(ctx)
	h.mu.Lock()
	h.outstanding++
	if h.outstanding > h.maxHeld {
		h.maxHeld = h.outstanding
	}
	h.mu.Unlock()
	return f, func() {
		h.mu.Lock()
		h.outstanding--
		h.mu.Unlock()
		release()
	}, err
}

func (h *heldSource) held() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outstanding
}
