package input

import "fmt"

// Key is a keyboard key in the numbering GLFW uses.
type Key uint16

const (
	KeySpace        Key = 32
	KeyApostrophe   Key = 39
	KeyComma        Key = 44
	KeyMinus        Key = 45
	KeyPeriod       Key = 46
	KeySlash        Key = 47
	Key0            Key = 48
	Key1            Key = 49
	Key2            Key = 50
	Key3            Key = 51
	Key4            Key = 52
	Key5            Key = 53
	Key6            Key = 54
	Key7            Key = 55
	Key8            Key = 56
	Key9            Key = 57
	KeySemicolon    Key = 59
	KeyEqual        Key = 61
	KeyA            Key = 65
	KeyZ            Key = 90
	KeyLeftBracket  Key = 91
	KeyBackslash    Key = 92
	KeyRightBracket Key = 93
	KeyGraveAccent  Key = 96
	KeyWorld1       Key = 161
	KeyWorld2       Key = 162

	KeyEscape      Key = 256
	KeyEnter       Key = 257
	KeyTab         Key = 258
	KeyBackspace   Key = 259
	KeyInsert      Key = 260
	KeyDelete      Key = 261
	KeyRight       Key = 262
	KeyLeft        Key = 263
	KeyDown        Key = 264
	KeyUp          Key = 265
	KeyPageUp      Key = 266
	KeyPageDown    Key = 267
	KeyHome        Key = 268
	KeyEnd         Key = 269
	KeyCapsLock    Key = 280
	KeyScrollLock  Key = 281
	KeyNumLock     Key = 282
	KeyPrintScreen Key = 283
	KeyPause       Key = 284
	KeyF1          Key = 290
	KeyF25         Key = 314
	KeyKP0         Key = 320
	KeyKP9         Key = 329
	KeyKPDecimal   Key = 330
	KeyKPDivide    Key = 331
	KeyKPMultiply  Key = 332
	KeyKPSubtract  Key = 333
	KeyKPAdd       Key = 334
	KeyKPEnter     Key = 335
	KeyKPEqual     Key = 336

	KeyLeftShift    Key = 340
	KeyLeftControl  Key = 341
	KeyLeftAlt      Key = 342
	KeyLeftSuper    Key = 343
	KeyRightShift   Key = 344
	KeyRightControl Key = 345
	KeyRightAlt     Key = 346
	KeyRightSuper   Key = 347
	KeyMenu         Key = 348
)

var keyNames = map[Key]string{
	KeySpace: "SPACE", KeyApostrophe: "APOSTROPHE", KeyComma: "COMMA", KeyMinus: "MINUS",
	KeyPeriod: "PERIOD", KeySlash: "SLASH", KeySemicolon: "SEMICOLON", KeyEqual: "EQUAL",
	KeyLeftBracket: "LEFT_BRACKET", KeyBackslash: "BACKSLASH", KeyRightBracket: "RIGHT_BRACKET",
	KeyGraveAccent: "GRAVE_ACCENT", KeyWorld1: "WORLD_1", KeyWorld2: "WORLD_2",
	KeyEscape: "ESCAPE", KeyEnter: "ENTER", KeyTab: "TAB", KeyBackspace: "BACKSPACE",
	KeyInsert: "INSERT", KeyDelete: "DELETE", KeyRight: "RIGHT", KeyLeft: "LEFT",
	KeyDown: "DOWN", KeyUp: "UP", KeyPageUp: "PAGE_UP", KeyPageDown: "PAGE_DOWN",
	KeyHome: "HOME", KeyEnd: "END", KeyCapsLock: "CAPS_LOCK", KeyScrollLock: "SCROLL_LOCK",
	KeyNumLock: "NUM_LOCK", KeyPrintScreen: "PRINT_SCREEN", KeyPause: "PAUSE",
	KeyKPDecimal: "KP_DECIMAL", KeyKPDivide: "KP_DIVIDE", KeyKPMultiply: "KP_MULTIPLY",
	KeyKPSubtract: "KP_SUBTRACT", KeyKPAdd: "KP_ADD", KeyKPEnter: "KP_ENTER", KeyKPEqual: "KP_EQUAL",
	KeyLeftShift: "LEFT_SHIFT", KeyLeftControl: "LEFT_CONTROL", KeyLeftAlt: "LEFT_ALT",
	KeyLeftSuper: "LEFT_SUPER", KeyRightShift: "RIGHT_SHIFT", KeyRightControl: "RIGHT_CONTROL",
	KeyRightAlt: "RIGHT_ALT", KeyRightSuper: "RIGHT_SUPER", KeyMenu: "MENU",
}

var keysByName = map[string]Key{}

var digitNames = [10]string{"ZERO", "ONE", "TWO", "THREE", "FOUR", "FIVE", "SIX", "SEVEN", "EIGHT", "NINE"}

func init() {
	for i := range Key(10) {
		keyNames[Key0+i] = digitNames[i]
		keyNames[KeyKP0+i] = fmt.Sprintf("KP_%d", i)
	}
	for k := KeyA; k <= KeyZ; k++ {
		keyNames[k] = string(rune(k))
	}
	for k := KeyF1; k <= KeyF25; k++ {
		keyNames[k] = fmt.Sprintf("F%d", k-KeyF1+1)
	}
	for k, name := range keyNames {
		keysByName[name] = k
	}
}

// String returns the GLFW name without its prefix, e.g. "LEFT_SHIFT".
func (k Key) String() string {
	if name, ok := keyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Key(%d)", uint16(k))
}

// Valid reports whether k is in the key table.
func (k Key) Valid() bool {
	_, ok := keyNames[k]
	return ok
}

// KeyByName looks a key up by the name String returns.
func KeyByName(name string) (Key, bool) {
	k, ok := keysByName[name]
	return k, ok
}

// shifted maps characters typed with Shift on a US layout to their key.
var shifted = map[rune]Key{
	'~': KeyGraveAccent, '!': Key1, '@': Key2, '#': Key3, '$': Key4,
	'%': Key5, '^': Key6, '&': Key7, '*': Key8, '(': Key9, ')': Key0,
	'_': KeyMinus, '+': KeyEqual, ':': KeySemicolon, '{': KeyLeftBracket,
	'|': KeyBackslash, '}': KeyRightBracket, '<': KeyComma, '>': KeyPeriod,
	'?': KeySlash, '"': KeyApostrophe,
}

// KeysForRune returns the key presses that type r on a US layout, with
// LEFT_SHIFT first when Shift is needed.
func KeysForRune(r rune) ([]Key, bool) {
	switch {
	case r == ' ' || r == '\'' || (r >= ',' && r <= '9') || r == ';' || r == '=' ||
		r == '`' || r == '[' || r == '\\' || r == ']':
		return []Key{Key(r)}, true
	case r >= 'a' && r <= 'z':
		return []Key{Key(r - 32)}, true
	case r >= 'A' && r <= 'Z':
		return []Key{KeyLeftShift, Key(r)}, true
	}
	if k, ok := shifted[r]; ok {
		return []Key{KeyLeftShift, k}, true
	}
	return nil, false
}

// RuneForKey is the inverse of KeysForRune for unshifted printable keys.
func RuneForKey(k Key, shift bool) (rune, bool) {
	switch {
	case k >= KeyA && k <= KeyZ:
		if shift {
			return rune(k), true
		}
		return rune(k + 32), true
	case !shift && (k == KeySpace || k == KeyApostrophe || (k >= KeyComma && k <= Key9) ||
		k == KeySemicolon || k == KeyEqual || k == KeyGraveAccent || k == KeyLeftBracket ||
		k == KeyBackslash || k == KeyRightBracket):
		return rune(k), true
	case shift:
		for r, sk := range shifted {
			if sk == k {
				return r, true
			}
		}
		if k == KeySpace {
			return ' ', true
		}
	}
	return 0, false
}
