package schemas

import (
	"image"
	"image/draw"
)

// -- Display Schemas --

// BytesPerPixel is the fixed pixel width of every Frame (R, G, B, A).
const BytesPerPixel = 4

// Frame is one immutable snapshot of the target's rendered display.
// Pixels are stored row-major in RGBA order, Stride bytes per row.
// A Frame must not be modified after it has been published.
type Frame struct {
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// NewFrame allocates a zeroed frame of the given size.
func NewFrame(width, height int) *Frame {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Frame{
		Width:  width,
		Height: height,
		Stride: width * BytesPerPixel,
		Pix:    make([]byte, width*height*BytesPerPixel),
	}
}

// FrameFromImage copies any image into a new Frame.
func FrameFromImage(img image.Image) *Frame {
	b := img.Bounds()
	f := NewFrame(b.Dx(), b.Dy())
	dst := f.Image()
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return f
}

// Bounds returns the frame rectangle anchored at the origin.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Image exposes the frame as an *image.RGBA sharing the same pixel buffer.
// Callers must treat the result as read-only.
func (f *Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Stride,
		Rect:   f.Bounds(),
	}
}

// Crop returns a read-only view of the frame restricted to r. A region that
// extends past the frame is clipped to it, so the view may be smaller than r.
// The second return value is false when r does not overlap the frame.
func (f *Frame) Crop(r image.Rectangle) (image.Image, bool) {
	r = r.Intersect(f.Bounds())
	if r.Empty() {
		return nil, false
	}
	return f.Image().SubImage(r), true
}

// NormalizedRect is a rectangle expressed as fractions (0..1) of the frame size,
// with the origin at the top-left corner.
type NormalizedRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Normalize converts a pixel rectangle inside bounds into a NormalizedRect.
func Normalize(r, bounds image.Rectangle) NormalizedRect {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	if w == 0 || h == 0 {
		return NormalizedRect{}
	}
	return NormalizedRect{
		X:      float64(r.Min.X-bounds.Min.X) / w,
		Y:      float64(r.Min.Y-bounds.Min.Y) / h,
		Width:  float64(r.Dx()) / w,
		Height: float64(r.Dy()) / h,
	}
}

// TextBlock is one run of recognized text.
type TextBlock struct {
	// Text is always lower-cased.
	Text   string         `json:"text"`
	Bounds NormalizedRect `json:"bounds"`
}

// MatchResult is the outcome of a single image detection.
type MatchResult struct {
	Matched  bool    `json:"matched"`
	Distance float64 `json:"distance"`
}
