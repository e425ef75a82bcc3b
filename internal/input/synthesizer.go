// Package input turns logical key presses into ordered low-level key events.
package input

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vzpilot/api/schemas"
	"github.com/xkilldash9x/vzpilot/internal/keyboard"
)

// Synthesizer emits chorded key input through an InputSink. It holds no state
// between calls and is safe to reuse across steps.
type Synthesizer struct {
	sink   schemas.InputSink
	logger *zap.Logger
}

// NewSynthesizer creates a synthesizer delivering to sink.
func NewSynthesizer(sink schemas.InputSink, logger *zap.Logger) (*Synthesizer, error) {
	if sink == nil {
		return nil, errors.New("input sink cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{
		sink:   sink,
		logger: logger.Named("input"),
	}, nil
}

// HoldEvents returns the events that put k down: one modifier-down per flag in
// canonical order, then the main key-down with no flags.
func HoldEvents(k keyboard.Key) []schemas.KeyEvent {
	events := modifierEvents(schemas.KeyDown, k.Modifiers)
	return append(events, schemas.KeyEvent{Type: schemas.KeyDown, Code: k.Code})
}

// ReleaseEvents returns the events that let k go: the main key-up first, then
// one modifier-up per flag in the same canonical order.
func ReleaseEvents(k keyboard.Key) []schemas.KeyEvent {
	events := []schemas.KeyEvent{{Type: schemas.KeyUp, Code: k.Code}}
	return append(events, modifierEvents(schemas.KeyUp, k.Modifiers)...)
}

func modifierEvents(t schemas.KeyEventType, mods schemas.Modifier) []schemas.KeyEvent {
	var events []schemas.KeyEvent
	for _, m := range mods.List() {
		mk, ok := keyboard.ModifierKey(m)
		if !ok {
			continue
		}
		events = append(events, schemas.KeyEvent{Type: t, Code: mk.Code})
	}
	return events
}

// Hold presses k and its modifiers without releasing them.
func (s *Synthesizer) Hold(ctx context.Context, k keyboard.Key) error {
	return s.deliver(ctx, HoldEvents(k))
}

// Release lets go of k and its modifiers.
func (s *Synthesizer) Release(ctx context.Context, k keyboard.Key) error {
	return s.deliver(ctx, ReleaseEvents(k))
}

// Press is Hold followed by Release.
func (s *Synthesizer) Press(ctx context.Context, k keyboard.Key) error {
	if err := s.Hold(ctx, k); err != nil {
		return err
	}
	return s.Release(ctx, k)
}

// PressTimes presses k n times.
func (s *Synthesizer) PressTimes(ctx context.Context, k keyboard.Key, n int) error {
	for i := 0; i < n; i++ {
		if err := s.Press(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// PressKeys presses each key in order.
func (s *Synthesizer) PressKeys(ctx context.Context, keys ...keyboard.Key) error {
	for _, k := range keys {
		if err := s.Press(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Type presses the key sequence for text. Characters without a mapping are skipped.
func (s *Synthesizer) Type(ctx context.Context, text string) error {
	if dropped := keyboard.Unmapped(text); len(dropped) > 0 {
		s.logger.Debug("Dropping unmapped characters", zap.String("characters", string(dropped)))
	}
	return s.PressKeys(ctx, keyboard.KeysForString(text)...)
}

// deliver sends events in order. A chord the sink cannot represent is rejected
// before any of its events go out, so no key is left held.
func (s *Synthesizer) deliver(ctx context.Context, events []schemas.KeyEvent) error {
	if checker, ok := s.sink.(schemas.KeyChecker); ok {
		for _, ev := range events {
			if err := checker.CanDeliver(ev.Code); err != nil {
				return fmt.Errorf("input: cannot deliver key %d: %w", ev.Code, err)
			}
		}
	}
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.sink.Deliver(ctx, ev); err != nil {
			return fmt.Errorf("input: failed to deliver %s for key %d: %w", ev.Type, ev.Code, err)
		}
	}
	return nil
}
