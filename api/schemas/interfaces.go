package schemas

import (
	"context"
	"image"
)

// FrameSource exposes the latest rendered frame of the target.
type FrameSource interface {
	// Acquire locks the current frame for reading. The returned release func
	// must be called as soon as the caller is done with the frame and is never nil.
	// A nil frame with a nil error means the target has not rendered anything yet.
	Acquire(ctx context.Context) (frame *Frame, release func(), err error)
}

// InputSink delivers low-level key events to the target. Deliver returns once the
// event has been accepted, not once the target has processed it.
type InputSink interface {
	Deliver(ctx context.Context, event KeyEvent) error
}

// KeyChecker is implemented by sinks that cannot deliver every key code.
// CanDeliver returns an error for a code the sink would reject.
type KeyChecker interface {
	CanDeliver(code uint16) error
}

// Screenshotter captures a still image of the current display, optionally cropped.
// A nil image with a nil error means nothing could be captured.
type Screenshotter interface {
	Capture(ctx context.Context, region *image.Rectangle) (image.Image, error)
}

// MachineMonitor reports the lifecycle state of the virtual machine.
type MachineMonitor interface {
	State(ctx context.Context) (MachineState, error)
}
