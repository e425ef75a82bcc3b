package display

import (
	"context"
	"errors"
	"image"
	"image/draw"

	"github.com/xkilldash9x/vzpilot/api/schemas"
)

// Capturer is a Screenshotter that copies pixels out of a FrameSource.
type Capturer struct {
	source schemas.FrameSource
}

// NewCapturer creates a Screenshotter over source.
func NewCapturer(source schemas.FrameSource) (*Capturer, error) {
	if source == nil {
		return nil, errors.New("frame source cannot be nil")
	}
	return &Capturer{source: source}, nil
}

// Capture copies the current frame, or the part of it inside region, into a
// new image. It returns nil without error when nothing has been rendered yet
// or region lies outside the frame.
func (c *Capturer) Capture(ctx context.Context, region *image.Rectangle) (image.Image, error) {
	frame, release, err := c.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if frame == nil {
		return nil, nil
	}

	src := frame.Bounds()
	if region != nil {
		src = region.Intersect(src)
		if src.Empty() {
			return nil, nil
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, src.Dx(), src.Dy()))
	draw.Draw(out, out.Bounds(), frame.Image(), src.Min, draw.Src)
	return out, nil
}
