package platform

import "markestedt/keyguard/rules"

// TapEventType mirrors the CGEventType values a keyboard event tap receives
type TapEventType uint32

const (
	TapKeyDown      TapEventType = 10
	TapKeyUp        TapEventType = 11
	TapFlagsChanged TapEventType = 12
)

// macOS virtual key codes (Carbon kVK_*)
const (
	kvkTab          = 48
	kvkRightCommand = 54
	kvkCommand      = 55
	kvkOption       = 58
	kvkRightOption  = 61
	kvkFunction     = 63
	kvkF5           = 96
	kvkF6           = 97
	kvkF7           = 98
	kvkF3           = 99
	kvkF8           = 100
	kvkF9           = 101
	kvkF11          = 103
	kvkF10          = 109
	kvkF12          = 111
	kvkF4           = 118
	kvkF2           = 120
	kvkF1           = 122
)

// CGEventFlags bits
const (
	flagMaskCommand     = 0x00100000
	flagMaskSecondaryFn = 0x00800000
)

// Key codes seen for Mission Control style actions bound to F3
var missionControlCodes = [...]uint16{160, 131, 179, 130}

// Key codes seen for Fn special functions on the top row
var fnSpecialCodes = [...]uint16{145, 160, 144, 131, 96, 97, 177, 176, 178}

// TapEvent is one keyboard event as seen by a CGEventTap
type TapEvent struct {
	Type    TapEventType
	KeyCode uint16
	Flags   uint64
}

// TapClassifier decides block or pass for macOS event tap events. Modifier
// state comes from the event's own flags bitmask.
type TapClassifier struct {
	rules *rules.Set
}

func NewTapClassifier(r *rules.Set) *TapClassifier {
	return &TapClassifier{rules: r}
}

// Classify returns Block if any active rule matches ev
func (c *TapClassifier) Classify(ev TapEvent) Verdict {
	switch ev.Type {
	case TapKeyDown, TapKeyUp, TapFlagsChanged:
	default:
		return Pass
	}

	r := c.rules
	code := ev.KeyCode
	fkey := isTapFunctionKey(code)

	if code == kvkF11 && r.Blocked(rules.F11) {
		return Block
	}
	if r.Blocked(rules.F3) && (code == kvkF3 || containsCode(missionControlCodes[:], code)) {
		return Block
	}
	if fkey && r.Blocked(rules.FunctionKeys) {
		return Block
	}
	if (code == kvkOption || code == kvkRightOption) && r.Blocked(rules.Modifier) {
		return Block
	}
	if r.Blocked(rules.Fn) {
		if code == kvkFunction || containsCode(fnSpecialCodes[:], code) {
			return Block
		}
		if fkey && ev.Flags&flagMaskSecondaryFn != 0 {
			return Block
		}
	}
	if r.Blocked(rules.Super) {
		if code == kvkCommand || code == kvkRightCommand || ev.Flags&flagMaskCommand != 0 {
			return Block
		}
	}
	if code == kvkTab && ev.Flags&flagMaskCommand != 0 && r.Blocked(rules.TaskSwitch) {
		return Block
	}
	return Pass
}

func isTapFunctionKey(code uint16) bool {
	switch code {
	case kvkF1, kvkF2, kvkF3, kvkF4, kvkF5, kvkF6,
		kvkF7, kvkF8, kvkF9, kvkF10, kvkF11, kvkF12:
		return true
	}
	return false
}

func containsCode(codes []uint16, code uint16) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
