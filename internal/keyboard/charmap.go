package keyboard

import (
	"fmt"

	"github.com/xkilldash9x/vzpilot/api/schemas"
)

// layoutRow binds the i-th character of chars to keys[i] held with mods.
type layoutRow struct {
	chars string
	keys  []Key
	mods  schemas.Modifier
}

var (
	digitKeys       = []Key{Digit0, Digit1, Digit2, Digit3, Digit4, Digit5, Digit6, Digit7, Digit8, Digit9}
	letterKeys      = []Key{A, B, C, D, E, F, G, H, I, J, K, L, M, N, O, P, Q, R, S, T, U, V, W, X, Y, Z}
	punctuationKeys = []Key{Hyphen, EqualSign, OpenBracket, CloseBracket, Backslash, Semicolon, Quote, Comma, Period, Slash, Grave}
)

// usLayout is the character table for the US ANSI layout.
var usLayout = []layoutRow{
	{" \t\n\r", []Key{Space, Tab, Return, Return}, schemas.ModNone},
	{"\u00a0", []Key{Space}, schemas.ModAlt},

	{"0123456789", digitKeys, schemas.ModNone},
	{")!@#$%^&*(", digitKeys, schemas.ModShift},
	{"º¡™£¢∞§¶•ª", digitKeys, schemas.ModAlt},
	{"‚⁄€‹›ﬁﬂ‡°·", digitKeys, schemas.ModShift | schemas.ModAlt},

	{"abcdefghijklmnopqrstuvwxyz", letterKeys, schemas.ModNone},
	{"ABCDEFGHIJKLMNOPQRSTUVWXYZ", letterKeys, schemas.ModShift},

	{"-=[]\\;',./`", punctuationKeys, schemas.ModNone},
	{"_+{}|:\"<>?~", punctuationKeys, schemas.ModShift},
}

// charTable is built once from usLayout.
var charTable = buildCharTable(usLayout)

func buildCharTable(rows []layoutRow) map[rune]Key {
	table := make(map[rune]Key)
	for _, row := range rows {
		runes := []rune(row.chars)
		if len(runes) != len(row.keys) {
			panic(fmt.Sprintf("keyboard: layout row %q has %d characters but %d keys", row.chars, len(runes), len(row.keys)))
		}
		for i, r := range runes {
			if _, dup := table[r]; dup {
				panic(fmt.Sprintf("keyboard: character %q mapped twice", r))
			}
			table[r] = row.keys[i].With(row.mods)
		}
	}
	return table
}

// KeysFor returns the keys that produce r, or nil if r has no mapping.
func KeysFor(r rune) []Key {
	k, ok := charTable[r]
	if !ok {
		return nil
	}
	return []Key{k}
}

// KeysForString concatenates KeysFor over every character of s, in order.
// Unmapped characters contribute nothing.
func KeysForString(s string) []Key {
	keys := make([]Key, 0, len(s))
	for _, r := range s {
		keys = append(keys, KeysFor(r)...)
	}
	return keys
}

// Unmapped returns the characters of s that KeysForString would drop.
func Unmapped(s string) []rune {
	var out []rune
	for _, r := range s {
		if _, ok := charTable[r]; !ok {
			out = append(out, r)
		}
	}
	return out
}
