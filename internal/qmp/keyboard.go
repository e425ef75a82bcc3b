package qmp

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/vzpilot/api/schemas"
	"github.com/xkilldash9x/vzpilot/internal/keyboard"
)

// ErrUnmappedKeyCode is returned for key codes that have no QEMU qcode.
var ErrUnmappedKeyCode = errors.New("qmp: key code has no qcode")

// qcodes maps macOS virtual key codes to QEMU QKeyCode names.
var qcodes = map[uint16]string{
	keyboard.A.Code: "a", keyboard.B.Code: "b", keyboard.C.Code: "c", keyboard.D.Code: "d",
	keyboard.E.Code: "e", keyboard.F.Code: "f", keyboard.G.Code: "g", keyboard.H.Code: "h",
	keyboard.I.Code: "i", keyboard.J.Code: "j", keyboard.K.Code: "k", keyboard.L.Code: "l",
	keyboard.M.Code: "m", keyboard.N.Code: "n", keyboard.O.Code: "o", keyboard.P.Code: "p",
	keyboard.Q.Code: "q", keyboard.R.Code: "r", keyboard.S.Code: "s", keyboard.T.Code: "t",
	keyboard.U.Code: "u", keyboard.V.Code: "v", keyboard.W.Code: "w", keyboard.X.Code: "x",
	keyboard.Y.Code: "y", keyboard.Z.Code: "z",

	keyboard.Digit0.Code: "0", keyboard.Digit1.Code: "1", keyboard.Digit2.Code: "2",
	keyboard.Digit3.Code: "3", keyboard.Digit4.Code: "4", keyboard.Digit5.Code: "5",
	keyboard.Digit6.Code: "6", keyboard.Digit7.Code: "7", keyboard.Digit8.Code: "8",
	keyboard.Digit9.Code: "9",

	keyboard.LeftShift.Code: "shift", keyboard.RightShift.Code: "shift_r",
	keyboard.LeftControl.Code: "ctrl", keyboard.RightControl.Code: "ctrl_r",
	keyboard.LeftAlt.Code: "alt", keyboard.RightAlt.Code: "alt_r",
	keyboard.LeftCommand.Code: "meta_l", keyboard.RightCommand.Code: "meta_r",
	keyboard.CapsLock.Code: "caps_lock",

	keyboard.VolumeMute.Code: "audiomute", keyboard.VolumeUp.Code: "volumeup",
	keyboard.VolumeDown.Code: "volumedown",

	keyboard.PageUp.Code: "pgup", keyboard.PageDown.Code: "pgdn",
	keyboard.Home.Code: "home", keyboard.End.Code: "end",
	keyboard.UpArrow.Code: "up", keyboard.DownArrow.Code: "down",
	keyboard.LeftArrow.Code: "left", keyboard.RightArrow.Code: "right",

	keyboard.Escape.Code: "esc",
	keyboard.F1.Code: "f1", keyboard.F2.Code: "f2", keyboard.F3.Code: "f3", keyboard.F4.Code: "f4",
	keyboard.F5.Code: "f5", keyboard.F6.Code: "f6", keyboard.F7.Code: "f7", keyboard.F8.Code: "f8",
	keyboard.F9.Code: "f9", keyboard.F10.Code: "f10", keyboard.F11.Code: "f11", keyboard.F12.Code: "f12",
	keyboard.F13.Code: "f13", keyboard.F14.Code: "f14", keyboard.F15.Code: "f15", keyboard.F16.Code: "f16",
	keyboard.F17.Code: "f17", keyboard.F18.Code: "f18", keyboard.F19.Code: "f19", keyboard.F20.Code: "f20",

	keyboard.KeypadSlash.Code: "kp_divide", keyboard.KeypadAsterisk.Code: "kp_multiply",
	keyboard.KeypadHyphen.Code: "kp_subtract", keyboard.KeypadPlus.Code: "kp_add",
	keyboard.KeypadEnter.Code: "kp_enter", keyboard.KeypadEquals.Code: "kp_equals",
	keyboard.KeypadClear.Code: "num_lock", keyboard.KeypadPeriod.Code: "kp_decimal",
	keyboard.Keypad0.Code: "kp_0", keyboard.Keypad1.Code: "kp_1", keyboard.Keypad2.Code: "kp_2",
	keyboard.Keypad3.Code: "kp_3", keyboard.Keypad4.Code: "kp_4", keyboard.Keypad5.Code: "kp_5",
	keyboard.Keypad6.Code: "kp_6", keyboard.Keypad7.Code: "kp_7", keyboard.Keypad8.Code: "kp_8",
	keyboard.Keypad9.Code: "kp_9",

	keyboard.Tab.Code: "tab", keyboard.Return.Code: "ret", keyboard.Space.Code: "spc",
	keyboard.Delete.Code: "backspace", keyboard.DeleteForward.Code: "delete", keyboard.Help.Code: "help",
	keyboard.OpenBracket.Code: "bracket_left", keyboard.CloseBracket.Code: "bracket_right",
	keyboard.Backslash.Code: "backslash", keyboard.Semicolon.Code: "semicolon",
	keyboard.Quote.Code: "apostrophe", keyboard.Comma.Code: "comma", keyboard.Period.Code: "dot",
	keyboard.Slash.Code: "slash", keyboard.Grave.Code: "grave_accent",
	keyboard.Hyphen.Code: "minus", keyboard.EqualSign.Code: "equal",
}

// QCode returns the QEMU key name for a macOS virtual key code.
func QCode(code uint16) (string, bool) {
	q, ok := qcodes[code]
	return q, ok
}

type keyValue struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type keyEventData struct {
	Down bool     `json:"down"`
	Key  keyValue `json:"key"`
}

type inputEvent struct {
	Type string       `json:"type"`
	Data keyEventData `json:"data"`
}

type sendEventArgs struct {
	Device string       `json:"device,omitempty"`
	Events []inputEvent `json:"events"`
}

// KeyboardConfig configures pacing of key delivery.
type KeyboardConfig struct {
	// KeysPerSecond limits key-down events. Zero disables pacing.
	KeysPerSecond float64
	Burst         int
	// Device optionally targets a specific input device.
	Device string
}

// Keyboard is an InputSink that injects key events into the guest.
type Keyboard struct {
	exec    Executor
	limiter *rate.Limiter
	device  string
	logger  *zap.Logger
}

// NewKeyboard creates a keyboard sink.
func NewKeyboard(exec Executor, cfg KeyboardConfig, logger *zap.Logger) (*Keyboard, error) {
	if exec == nil {
		return nil, errors.New("executor cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.KeysPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.KeysPerSecond), burst)
	}
	return &Keyboard{exec: exec, limiter: limiter, device: cfg.Device, logger: logger.Named("qmp_keyboard")}, nil
}

// CanDeliver implements schemas.KeyChecker. QEMU has no qcode for some macOS
// keys, Fn among them, so chords using them are refused.
func (k *Keyboard) CanDeliver(code uint16) error {
	if _, ok := QCode(code); !ok {
		return fmt.Errorf("%w: 0x%02X", ErrUnmappedKeyCode, code)
	}
	return nil
}

// Deliver implements schemas.InputSink. It returns once QEMU has accepted the event.
func (k *Keyboard) Deliver(ctx context.Context, ev schemas.KeyEvent) error {
	if err := k.CanDeliver(ev.Code); err != nil {
		return err
	}
	q, _ := QCode(ev.Code)
	if ev.Type == schemas.KeyDown {
		if err := k.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	args := sendEventArgs{
		Device: k.device,
		Events: []inputEvent{{
			Type: "key",
			Data: keyEventData{Down: ev.Type == schemas.KeyDown, Key: keyValue{Type: "qcode", Data: q}},
		}},
	}
	if err := k.exec.Execute(ctx, "input-send-event", args, nil); err != nil {
		return fmt.Errorf("qmp: input-send-event %s %s: %w", ev.Type, q, err)
	}
	k.logger.Debug("Sent key event", zap.String("type", string(ev.Type)), zap.String("qcode", q))
	return nil
}
