package keyboard

import "strings"

// Modifiers
var (
	LeftControl  = New(0x3B)
	LeftShift    = New(0x38)
	LeftAlt      = New(0x3A)
	LeftCommand  = New(0x37)
	RightControl = New(0x3E)
	RightShift   = New(0x3C)
	RightAlt     = New(0x3D)
	RightCommand = New(0x36)
	Function     = New(0x3F)
	CapsLock     = New(0x39)
)

// Media
var (
	VolumeMute = New(0x4A)
	VolumeUp   = New(0x48)
	VolumeDown = New(0x49)
)

// Navigation
var (
	PageUp     = New(0x74)
	PageDown   = New(0x79)
	Home       = New(0x73)
	End        = New(0x77)
	UpArrow    = New(0x7E)
	DownArrow  = New(0x7D)
	LeftArrow  = New(0x7B)
	RightArrow = New(0x7C)
)

// Function row
var (
	Escape = New(0x35)
	F1     = New(0x7A)
	F2     = New(0x78)
	F3     = New(0x63)
	F4     = New(0x76)
	F5     = New(0x60)
	F6     = New(0x61)
	F7     = New(0x62)
	F8     = New(0x64)
	F9     = New(0x65)
	F10    = New(0x6D)
	F11    = New(0x67)
	F12    = New(0x6F)
	F13    = New(0x69)
	F14    = New(0x6B)
	F15    = New(0x71)
	F16    = New(0x6A)
	F17    = New(0x40)
	F18    = New(0x4F)
	F19    = New(0x50)
	F20    = New(0x5A)
)

// Alphanumeric
var (
	A = New(0x00)
	B = New(0x0B)
	C = New(0x08)
	D = New(0x02)
	E = New(0x0E)
	F = New(0x03)
	G = New(0x05)
	H = New(0x04)
	I = New(0x22)
	J = New(0x26)
	K = New(0x28)
	L = New(0x25)
	M = New(0x2E)
	N = New(0x2D)
	O = New(0x1F)
	P = New(0x23)
	Q = New(0x0C)
	R = New(0x0F)
	S = New(0x01)
	T = New(0x11)
	U = New(0x20)
	V = New(0x09)
	W = New(0x0D)
	X = New(0x07)
	Y = New(0x10)
	Z = New(0x06)

	Digit0 = New(0x1D)
	Digit1 = New(0x12)
	Digit2 = New(0x13)
	Digit3 = New(0x14)
	Digit4 = New(0x15)
	Digit5 = New(0x17)
	Digit6 = New(0x16)
	Digit7 = New(0x1A)
	Digit8 = New(0x1C)
	Digit9 = New(0x19)
)

// Keypad
var (
	KeypadSlash    = New(0x4B)
	KeypadAsterisk = New(0x43)
	KeypadHyphen   = New(0x4E)
	KeypadPlus     = New(0x45)
	KeypadEnter    = New(0x4C)
	KeypadEquals   = New(0x51)
	KeypadClear    = New(0x47)
	KeypadPeriod   = New(0x41)
	Keypad0        = New(0x52)
	Keypad1        = New(0x53)
	Keypad2        = New(0x54)
	Keypad3        = New(0x55)
	Keypad4        = New(0x56)
	Keypad5        = New(0x57)
	Keypad6        = New(0x58)
	Keypad7        = New(0x59)
	Keypad8        = New(0x5B)
	Keypad9        = New(0x5C)
)

// Punctuation and editing
var (
	Tab           = New(0x30)
	Return        = New(0x24)
	Space         = New(0x31)
	Delete        = New(0x33)
	DeleteForward = New(0x75)
	Help          = New(0x72)
	OpenBracket   = New(0x21)
	CloseBracket  = New(0x1E)
	Backslash     = New(0x2A)
	Semicolon     = New(0x29)
	Quote         = New(0x27)
	Comma         = New(0x2B)
	Period        = New(0x2F)
	Slash         = New(0x2C)
	Grave         = New(0x32)
	Hyphen        = New(0x1B)
	EqualSign     = New(0x18)
)

// Named is the fixed table of key names accepted by Lookup.
var Named = map[string]Key{
	"leftcontrol": LeftControl, "leftshift": LeftShift, "leftalt": LeftAlt, "leftcommand": LeftCommand,
	"rightcontrol": RightControl, "rightshift": RightShift, "rightalt": RightAlt, "rightcommand": RightCommand,
	"control": LeftControl, "shift": LeftShift, "alt": LeftAlt, "option": LeftAlt, "command": LeftCommand,
	"fn": Function, "capslock": CapsLock,

	"mute": VolumeMute, "volumeup": VolumeUp, "volumedown": VolumeDown,

	"pageup": PageUp, "pagedown": PageDown, "home": Home, "end": End,
	"up": UpArrow, "down": DownArrow, "left": LeftArrow, "right": RightArrow,

	"escape": Escape, "esc": Escape,
	"f1": F1, "f2": F2, "f3": F3, "f4": F4, "f5": F5, "f6": F6, "f7": F7,
	"f8": F8, "f9": F9, "f10": F10, "f11": F11, "f12": F12, "f13": F13, "f14": F14,
	"f15": F15, "f16": F16, "f17": F17, "f18": F18, "f19": F19, "f20": F20,

	"keypad/": KeypadSlash, "keypad*": KeypadAsterisk, "keypad-": KeypadHyphen, "keypad+": KeypadPlus,
	"keypadenter": KeypadEnter, "keypad=": KeypadEquals, "keypadclear": KeypadClear, "keypad.": KeypadPeriod,
	"keypad0": Keypad0, "keypad1": Keypad1, "keypad2": Keypad2, "keypad3": Keypad3, "keypad4": Keypad4,
	"keypad5": Keypad5, "keypad6": Keypad6, "keypad7": Keypad7, "keypad8": Keypad8, "keypad9": Keypad9,

	"tab": Tab, "return": Return, "enter": Return, "space": Space, "spacebar": Space,
	"delete": Delete, "backspace": Delete, "forwarddelete": DeleteForward, "help": Help,
}

// Lookup resolves a key name case-insensitively.
func Lookup(name string) (Key, bool) {
	k, ok := Named[strings.ToLower(strings.TrimSpace(name))]
	return k, ok
}
