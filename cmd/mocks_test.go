package cmd

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/xkilldash9x/vzpilot/api/schemas"
	"github.com/xkilldash9x/vzpilot/internal/config"
	"github.com/xkilldash9x/vzpilot/internal/display"
	"github.com/xkilldash9x/vzpilot/internal/perception"
	"go.uber.org/zap"
)

// mockOCR recognizes nothing unless MockRecognize says otherwise.
type mockOCR struct {
	calls atomic.Int32

	MockRecognize func(ctx context.Context, img image.Image) ([]perception.Recognition, error)
}

func (m *mockOCR) Recognize(ctx context.Context, img image.Image) ([]perception.Recognition, error) {
	m.calls.Add(1)
	if m.MockRecognize != nil {
		return m.MockRecognize(ctx, img)
	}
	return nil, nil
}

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

type mockMonitor struct {
	state schemas.MachineState
}

func (m *mockMonitor) State(ctx context.Context) (schemas.MachineState, error) {
	return m.state, nil
}

// mockGrabber blocks until its context ends, like the real display loop.
type mockGrabber struct {
	started atomic.Bool
	stopped atomic.Bool

	MockRun func(ctx context.Context) error
}

func (m *mockGrabber) Run(ctx context.Context) error {
	m.started.Store(true)
	defer m.stopped.Store(true)
	if m.MockRun != nil {
		return m.MockRun(ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}

// newMockSession returns a session whose display already shows a frame.
func newMockSession(ocr *mockOCR) (*session, *mockGrabber, *atomic.Int32) {
	buf := display.NewBuffer(zap.NewNop())
	frame := schemas.NewFrame(64, 48)
	img := frame.Image()
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: 128, A: 255})
		}
	}
	buf.Publish(frame)

	grabber := &mockGrabber{}
	var closed atomic.Int32
	sess := &session{
		frames:  buf,
		input:   &mockSink{},
		monitor: &mockMonitor{state: schemas.MachineRunning},
		ocr:     ocr,
		grabber: grabber,
		closers: []func() error{func() error { closed.Add(1); return nil }},
	}
	return sess, grabber, &closed
}

// useSession makes the run command open sess instead of dialing a target.
// The configuration the command resolved is captured in got.
func useSession(sess *session, got *config.Interface) func() {
	original := openSession
	openSession = func(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*session, error) {
		if got != nil {
			*got = cfg
		}
		return sess, nil
	}
	return func() { openSession = original }
}
