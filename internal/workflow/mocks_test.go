package workflow

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/xkilldash9x/vzpilot/api/schemas"
	"github.com/xkilldash9x/vzpilot/internal/keyboard"
	"github.com/xkilldash9x/vzpilot/internal/perception"
)

// callLog is a shared, ordered record of everything the mocks observe.
type callLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// mockScreenshotter returns a 1x1 image unless MockCapture overrides it.
type mockScreenshotter struct {
	log   *callLog
	calls int

	MockCapture func(ctx context.Context, region *image.Rectangle) (image.Image, error)
}

func (m *mockScreenshotter) Capture(ctx context.Context, region *image.Rectangle) (image.Image, error) {
	m.calls++
	if m.log != nil {
		m.log.add("screenshot")
	}
	if m.MockCapture != nil {
		return m.MockCapture(ctx, region)
	}
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

// recordingObserver keeps every notification.
type recordingObserver struct {
	mu       sync.Mutex
	changes  []Step
	captured []int
	skipped  []error
}

func (r *recordingObserver) StepChanged(step Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, step)
}

func (r *recordingObserver) ScreenshotCaptured(stepID string, index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captured = append(r.captured, index)
}

func (r *recordingObserver) ScreenshotSkipped(stepID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped = append(r.skipped, err)
}

// mockDriver records every call. Waits succeed at once; HasText answers from hasText.
type mockDriver struct {
	log     *callLog
	hasText map[string]bool

	MockWaitForText func(ctx context.Context, cond perception.TextCondition) error
}

func newMockDriver() *mockDriver {
	return &mockDriver{log: &callLog{}, hasText: map[string]bool{}}
}

func (m *mockDriver) WaitForState(ctx context.Context, state schemas.MachineState) error {
	m.log.add("state %s", state)
	return ctx.Err()
}

func (m *mockDriver) WaitForDisplay(ctx context.Context) error {
	m.log.add("display")
	return ctx.Err()
}

func (m *mockDriver) WaitForText(ctx context.Context, cond perception.TextCondition) error {
	m.log.add("text %s", cond)
	if m.MockWaitForText != nil {
		return m.MockWaitForText(ctx, cond)
	}
	return ctx.Err()
}

func (m *mockDriver) WaitForString(ctx context.Context, s string) error {
	return m.WaitForText(ctx, perception.Any(s))
}

func (m *mockDriver) HasText(ctx context.Context, cond perception.TextCondition) (bool, error) {
	m.log.add("has %s", cond)
	return m.hasText[strings.Join(cond.Needles, "|")], nil
}

func (m *mockDriver) WaitForImageAt(ctx context.Context, ref image.Image, point image.Point) error {
	m.log.add("image at %s", point)
	return ctx.Err()
}

func (m *mockDriver) Press(ctx context.Context, k keyboard.Key) error {
	m.log.add("press %s", k)
	return ctx.Err()
}

func (m *mockDriver) PressTimes(ctx context.Context, k keyboard.Key, n int) error {
	m.log.add("press %s x%d", k, n)
	return ctx.Err()
}

func (m *mockDriver) Type(ctx context.Context, s string) error {
	m.log.add("type %q", s)
	return ctx.Err()
}
