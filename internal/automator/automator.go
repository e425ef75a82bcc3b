// Package automator composes frame access, perception, polling and input
// synthesis into the verbs an automation script is written in.
package automator

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vzpilot/api/schemas"
	"github.com/xkilldash9x/vzpilot/internal/input"
	"github.com/xkilldash9x/vzpilot/internal/keyboard"
	"github.com/xkilldash9x/vzpilot/internal/perception"
	"github.com/xkilldash9x/vzpilot/internal/waiter"
)

// Wait kinds reported to WaitHooks.
const (
	KindDisplay = "display"
	KindState   = "state"
	KindText    = "text"
	KindImage   = "image"
)

// ErrNoMonitor is returned by WaitForState when no MachineMonitor was configured.
var ErrNoMonitor = errors.New("automator: machine monitor not configured")

// Dependencies are the collaborators an Automator drives.
type Dependencies struct {
	Frames        schemas.FrameSource
	Input         schemas.InputSink
	OCR           perception.OCREngine
	Screenshotter schemas.Screenshotter
	// Monitor is optional. Without it WaitForState fails.
	Monitor schemas.MachineMonitor
}

// Automator drives a single target. It is safe for use by one script at a time.
type Automator struct {
	frames    schemas.FrameSource
	monitor   schemas.MachineMonitor
	shots     schemas.Screenshotter
	text      *perception.TextReader
	matcher   *perception.ImageMatcher
	keys      *input.Synthesizer
	threshold float64
	waitOpts  []waiter.Option
	waitHooks func(kind string) waiter.Hooks
	logger    *zap.Logger
}

// Option configures an Automator.
type Option func(*Automator)

// WithWaitOptions sets the options every internal Waiter is built with.
func WithWaitOptions(opts ...waiter.Option) Option {
	return func(a *Automator) { a.waitOpts = append(a.waitOpts, opts...) }
}

// WithWaitHooks installs a factory of polling hooks keyed by wait kind.
func WithWaitHooks(fn func(kind string) waiter.Hooks) Option {
	return func(a *Automator) { a.waitHooks = fn }
}

// WithMatchThreshold sets the feature print distance below which an image matches.
func WithMatchThreshold(t float64) Option {
	return func(a *Automator) {
		if t > 0 {
			a.threshold = t
		}
	}
}

// New creates an Automator.
func New(deps Dependencies, logger *zap.Logger, opts ...Option) (*Automator, error) {
	if deps.Frames == nil {
		return nil, errors.New("frame source cannot be nil")
	}
	if deps.Input == nil {
		return nil, errors.New("input sink cannot be nil")
	}
	if deps.OCR == nil {
		return nil, errors.New("ocr engine cannot be nil")
	}
	if deps.Screenshotter == nil {
		return nil, errors.New("screenshotter cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("automator")

	text, err := perception.NewTextReader(deps.OCR, logger)
	if err != nil {
		return nil, err
	}
	keys, err := input.NewSynthesizer(deps.Input, logger)
	if err != nil {
		return nil, err
	}

	a := &Automator{
		frames:    deps.Frames,
		monitor:   deps.Monitor,
		shots:     deps.Screenshotter,
		text:      text,
		matcher:   perception.NewImageMatcher(logger),
		keys:      keys,
		threshold: perception.DefaultMatchThreshold,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Automator) wait(ctx context.Context, kind string, p waiter.Predicate) error {
	opts := append([]waiter.Option{waiter.WithLogger(a.logger)}, a.waitOpts...)
	if a.waitHooks != nil {
		opts = append(opts, waiter.WithHooks(a.waitHooks(kind)))
	}
	return waiter.New(opts...).Wait(ctx, p)
}

// withFrame runs fn while holding the current frame. fn is skipped and false is
// returned when nothing has been rendered yet.
func (a *Automator) withFrame(ctx context.Context, fn func(*schemas.Frame) (bool, error)) (bool, error) {
	frame, release, err := a.frames.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()
	if frame == nil {
		return false, nil
	}
	return fn(frame)
}

// -- Display and machine state --

// WaitForDisplay waits until the target has rendered at least one frame.
func (a *Automator) WaitForDisplay(ctx context.Context) error {
	return a.wait(ctx, KindDisplay, func(ctx context.Context) (bool, error) {
		return a.withFrame(ctx, func(*schemas.Frame) (bool, error) { return true, nil })
	})
}

// WaitForState waits until the machine reports state.
func (a *Automator) WaitForState(ctx context.Context, state schemas.MachineState) error {
	if a.monitor == nil {
		return ErrNoMonitor
	}
	return a.wait(ctx, KindState, func(ctx context.Context) (bool, error) {
		current, err := a.monitor.State(ctx)
		if err != nil {
			return false, fmt.Errorf("automator: failed to query machine state: %w", err)
		}
		return current == state, nil
	})
}

// -- Text --

// ReadText returns the text blocks currently on screen, optionally restricted to region.
func (a *Automator) ReadText(ctx context.Context, region *image.Rectangle) ([]schemas.TextBlock, error) {
	var blocks []schemas.TextBlock
	_, err := a.withFrame(ctx, func(f *schemas.Frame) (bool, error) {
		var err error
		blocks, err = a.text.ReadText(ctx, f, region)
		return err == nil, err
	})
	return blocks, err
}

// HasText evaluates cond against the text currently on screen.
func (a *Automator) HasText(ctx context.Context, cond perception.TextCondition) (bool, error) {
	return a.withFrame(ctx, func(f *schemas.Frame) (bool, error) {
		return a.text.HasText(ctx, f, cond)
	})
}

// WaitForText waits until cond holds for the text on screen.
func (a *Automator) WaitForText(ctx context.Context, cond perception.TextCondition) error {
	a.logger.Debug("Waiting for text", zap.Stringer("condition", cond))
	return a.wait(ctx, KindText, func(ctx context.Context) (bool, error) {
		return a.HasText(ctx, cond)
	})
}

// WaitForString waits until s appears on screen.
func (a *Automator) WaitForString(ctx context.Context, s string) error {
	return a.WaitForText(ctx, perception.Any(s))
}

// -- Images --

// DetectImage reports whether ref is visible inside rect.
func (a *Automator) DetectImage(ctx context.Context, ref image.Image, rect image.Rectangle) (bool, error) {
	return a.withFrame(ctx, func(f *schemas.Frame) (bool, error) {
		return a.matcher.Matches(f, rect, ref, a.threshold)
	})
}

// DetectImageAt reports whether ref is visible with its top-left corner at point.
func (a *Automator) DetectImageAt(ctx context.Context, ref image.Image, point image.Point) (bool, error) {
	return a.withFrame(ctx, func(f *schemas.Frame) (bool, error) {
		return a.matcher.MatchAt(f, point, ref, a.threshold)
	})
}

// WaitForImage waits until ref is visible inside rect.
func (a *Automator) WaitForImage(ctx context.Context, ref image.Image, rect image.Rectangle) error {
	return a.wait(ctx, KindImage, func(ctx context.Context) (bool, error) {
		return a.DetectImage(ctx, ref, rect)
	})
}

// WaitForImageAt waits until ref is visible with its top-left corner at point.
func (a *Automator) WaitForImageAt(ctx context.Context, ref image.Image, point image.Point) error {
	return a.wait(ctx, KindImage, func(ctx context.Context) (bool, error) {
		return a.DetectImageAt(ctx, ref, point)
	})
}

// Capture takes a screenshot of the display. It returns nil when nothing has been rendered.
func (a *Automator) Capture(ctx context.Context, region *image.Rectangle) (image.Image, error) {
	return a.shots.Capture(ctx, region)
}

// -- Keyboard --

func (a *Automator) Press(ctx context.Context, k keyboard.Key) error { return a.keys.Press(ctx, k) }

func (a *Automator) PressTimes(ctx context.Context, k keyboard.Key, n int) error {
	return a.keys.PressTimes(ctx, k, n)
}

func (a *Automator) PressKeys(ctx context.Context, keys ...keyboard.Key) error {
	return a.keys.PressKeys(ctx, keys...)
}

func (a *Automator) Hold(ctx context.Context, k keyboard.Key) error    { return a.keys.Hold(ctx, k) }
func (a *Automator) Release(ctx context.Context, k keyboard.Key) error { return a.keys.Release(ctx, k) }

// Type enters s one character at a time. Characters with no key mapping are skipped.
func (a *Automator) Type(ctx context.Context, s string) error { return a.keys.Type(ctx, s) }
