package perception

import (
	"context"
	"image"
	"sync"
)

// mockOCREngine returns canned recognitions and records the images it was given.
type mockOCREngine struct {
	mu     sync.Mutex
	seen   []image.Rectangle
	result []Recognition

	MockRecognize func(ctx context.Context, img image.Image) ([]Recognition, error)
}

func newMockOCREngine(result ...Recognition) *mockOCREngine {
	return &mockOCREngine{result: result}
}

func (m *mockOCREngine) Recognize(ctx context.Context, img image.Image) ([]Recognition, error) {
	if m.MockRecognize != nil {
		return m.MockRecognize(ctx, img)
	}
	return m.DefaultRecognize(ctx, img)
}

func (m *mockOCREngine) DefaultRecognize(ctx context.Context, img image.Image) ([]Recognition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, img.Bounds())
	out := make([]Recognition, len(m.result))
	copy(out, m.result)
	return out, nil
}

func (m *mockOCREngine) calls() []image.Rectangle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]image.Rectangle, len(m.seen))
	copy(out, m.seen)
	return out
}
