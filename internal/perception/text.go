// Package perception answers questions about the content of a rendered frame:
// which text is on screen and whether a reference image is visible.
package perception

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vzpilot/api/schemas"
)

// Recognition is one text line reported by an OCR engine. Bounds are pixel
// coordinates relative to the top-left corner of the image the engine was given.
type Recognition struct {
	Text       string
	Bounds     image.Rectangle
	Confidence float64
}

// OCREngine recognizes text in an image.
type OCREngine interface {
	Recognize(ctx context.Context, img image.Image) ([]Recognition, error)
}

// MatchMode selects how a TextCondition combines its needles.
type MatchMode int

const (
	MatchNone MatchMode = iota
	MatchAny
	MatchAll
)

func (m MatchMode) String() string {
	switch m {
	case MatchNone:
		return "none"
	case MatchAny:
		return "any"
	case MatchAll:
		return "all"
	}
	return fmt.Sprintf("MatchMode(%d)", int(m))
}

// TextCondition is a case-insensitive substring test over everything on screen.
type TextCondition struct {
	Mode    MatchMode
	Needles []string
}

// None holds when no needle appears.
func None(needles ...string) TextCondition { return TextCondition{Mode: MatchNone, Needles: needles} }

// Any holds when at least one needle appears. Any() never holds.
func Any(needles ...string) TextCondition { return TextCondition{Mode: MatchAny, Needles: needles} }

// All holds when every needle appears. All() always holds.
func All(needles ...string) TextCondition { return TextCondition{Mode: MatchAll, Needles: needles} }

// Evaluate tests the condition against haystack. Both sides are lower-cased.
func (c TextCondition) Evaluate(haystack string) bool {
	haystack = strings.ToLower(haystack)
	contains := func(n string) bool { return strings.Contains(haystack, strings.ToLower(n)) }

	switch c.Mode {
	case MatchNone:
		for _, n := range c.Needles {
			if contains(n) {
				return false
			}
		}
		return true
	case MatchAny:
		for _, n := range c.Needles {
			if contains(n) {
				return true
			}
		}
		return false
	case MatchAll:
		for _, n := range c.Needles {
			if !contains(n) {
				return false
			}
		}
		return true
	}
	return false
}

func (c TextCondition) String() string {
	return fmt.Sprintf("%s(%q)", c.Mode, c.Needles)
}

// TextReader runs OCR over frames.
type TextReader struct {
	engine OCREngine
	logger *zap.Logger
}

// NewTextReader creates a reader backed by engine.
func NewTextReader(engine OCREngine, logger *zap.Logger) (*TextReader, error) {
	if engine == nil {
		return nil, errors.New("ocr engine cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TextReader{engine: engine, logger: logger.Named("text_reader")}, nil
}

// ReadText recognizes the text in frame, restricted to region when it is non-nil.
// Block text is lower-cased and bounds are normalized to the frame.
func (r *TextReader) ReadText(ctx context.Context, frame *schemas.Frame, region *image.Rectangle) ([]schemas.TextBlock, error) {
	if frame == nil {
		return nil, nil
	}

	var img image.Image = frame.Image()
	if region != nil {
		cropped, ok := frame.Crop(*region)
		if !ok {
			return nil, nil
		}
		img = cropped
	}

	recognized, err := r.engine.Recognize(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("perception: text recognition failed: %w", err)
	}

	// Engine coordinates are relative to the image it saw; shift them back into frame space.
	offset := img.Bounds().Min
	blocks := make([]schemas.TextBlock, 0, len(recognized))
	for _, rec := range recognized {
		text := strings.ToLower(strings.TrimSpace(rec.Text))
		if text == "" {
			continue
		}
		blocks = append(blocks, schemas.TextBlock{
			Text:   text,
			Bounds: schemas.Normalize(rec.Bounds.Add(offset), frame.Bounds()),
		})
	}
	r.logger.Debug("Read text", zap.Int("blocks", len(blocks)))
	return blocks, nil
}

// HasText joins every recognized block with newlines and evaluates cond against it.
func (r *TextReader) HasText(ctx context.Context, frame *schemas.Frame, cond TextCondition) (bool, error) {
	blocks, err := r.ReadText(ctx, frame, nil)
	if err != nil {
		return false, err
	}
	return cond.Evaluate(Haystack(blocks)), nil
}

// Haystack is the newline-joined, lower-cased text of blocks.
func Haystack(blocks []schemas.TextBlock) string {
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.Text
	}
	return strings.ToLower(strings.Join(parts, "\n"))
}
