package schemas

import "strings"

// -- Input Schemas --

// Modifier is a bit set of keyboard modifiers.
type Modifier uint8

const (
	ModNone    Modifier = 0
	ModShift   Modifier = 1 << 0
	ModControl Modifier = 1 << 1
	ModAlt     Modifier = 1 << 2
	ModCommand Modifier = 1 << 3
	ModFn      Modifier = 1 << 4
)

// CanonicalModifiers is the order modifier events are emitted in, on both press and release.
var CanonicalModifiers = []Modifier{ModShift, ModControl, ModAlt, ModCommand, ModFn}

var modifierNames = map[Modifier]string{
	ModShift:   "shift",
	ModControl: "control",
	ModAlt:     "alt",
	ModCommand: "command",
	ModFn:      "fn",
}

// Has reports whether every flag in o is set in m.
func (m Modifier) Has(o Modifier) bool { return m&o == o }

// Union returns the flags set in either m or o.
func (m Modifier) Union(o Modifier) Modifier { return m | o }

// List returns the individual flags of m in canonical order.
func (m Modifier) List() []Modifier {
	var out []Modifier
	for _, c := range CanonicalModifiers {
		if m.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (m Modifier) String() string {
	if m == ModNone {
		return "none"
	}
	parts := make([]string, 0, len(CanonicalModifiers))
	for _, c := range m.List() {
		parts = append(parts, modifierNames[c])
	}
	return strings.Join(parts, "+")
}

// KeyEventType distinguishes key presses from releases.
type KeyEventType string

const (
	KeyDown KeyEventType = "keyDown"
	KeyUp   KeyEventType = "keyUp"
)

// KeyEvent is a single low-level keyboard event delivered to the target.
type KeyEvent struct {
	Type KeyEventType `json:"type"`
	// Code is the raw key identifier (macOS virtual key code).
	Code uint16 `json:"code"`
	// Flags carries modifier state attached to this event. The synthesizer
	// always sends chorded modifiers as separate events and leaves this empty.
	Flags Modifier `json:"flags"`
}

// -- Machine Schemas --

// MachineState is the lifecycle state of the virtual machine hosting the target.
type MachineState string

const (
	MachineStopped  MachineState = "stopped"
	MachineStarting MachineState = "starting"
	MachineRunning  MachineState = "running"
	MachinePaused   MachineState = "paused"
	MachineError    MachineState = "error"
	MachineUnknown  MachineState = "unknown"
)
