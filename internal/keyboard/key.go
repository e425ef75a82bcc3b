// Package keyboard maps characters and key names to the raw key codes of a fixed
// US ANSI layout (macOS virtual key codes).
package keyboard

import (
	"fmt"

	"github.com/xkilldash9x/vzpilot/api/schemas"
)

// Key identifies one physical key plus the modifiers that must be held with it.
// Keys are values: every builder returns a new Key.
type Key struct {
	Code      uint16           `json:"code"`
	Modifiers schemas.Modifier `json:"modifiers"`
}

// New returns a key with no modifiers.
func New(code uint16) Key {
	return Key{Code: code}
}

// With returns a copy of k with the given modifiers added.
func (k Key) With(m schemas.Modifier) Key {
	return Key{Code: k.Code, Modifiers: k.Modifiers.Union(m)}
}

func (k Key) Shift() Key   { return k.With(schemas.ModShift) }
func (k Key) Control() Key { return k.With(schemas.ModControl) }
func (k Key) Alt() Key     { return k.With(schemas.ModAlt) }
func (k Key) Command() Key { return k.With(schemas.ModCommand) }
func (k Key) Fn() Key      { return k.With(schemas.ModFn) }

func (k Key) String() string {
	if k.Modifiers == schemas.ModNone {
		return fmt.Sprintf("%d", k.Code)
	}
	return fmt.Sprintf("%s+%d", k.Modifiers, k.Code)
}

// ModifierKey returns the left-hand key that produces the given single modifier flag.
func ModifierKey(m schemas.Modifier) (Key, bool) {
	switch m {
	case schemas.ModShift:
		return LeftShift, true
	case schemas.ModControl:
		return LeftControl, true
	case schemas.ModAlt:
		return LeftAlt, true
	case schemas.ModCommand:
		return LeftCommand, true
	case schemas.ModFn:
		return Function, true
	}
	return Key{}, false
}
