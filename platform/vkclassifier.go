package platform

import "markestedt/keyguard/rules"

// Windows virtual key codes
const (
	vkTab   = 0x09
	vkMenu  = 0x12 // Alt, either side
	vkLwin  = 0x5B
	vkRwin  = 0x5C
	vkF1    = 0x70
	vkF3    = 0x72
	vkF11   = 0x7A
	vkF12   = 0x7B
	vkLmenu = 0xA4
	vkRmenu = 0xA5
)

// KBDLLHOOKSTRUCT.flags bits laptops set on Fn combinations
const (
	llkhfExtended = 0x01
	llkhfInjected = 0x10
)

// Scan codes many laptop keyboards report for the Fn key itself. Scan codes
// above scanFnHigh on an F key are treated as an Fn combination.
const (
	scanFn     = 0x73
	scanFnAlt  = 0xE0
	scanFnHigh = 0x80
)

// VKEvent is one low-level keyboard event as delivered to WH_KEYBOARD_LL
type VKEvent struct {
	VKCode   uint32
	ScanCode uint32
	Flags    uint32
	Down     bool
}

// KeyStateFunc reports whether a virtual key is physically held right now
type KeyStateFunc func(vk uint32) bool

// VKClassifier decides block or pass for Windows virtual key events.
// Modifier state comes from a live key state query rather than the event,
// because the low-level hook sees each key independently.
type VKClassifier struct {
	rules   *rules.Set
	keyDown KeyStateFunc
}

// NewVKClassifier creates a classifier reading r on every event. A nil
// keyDown treats every modifier as released.
func NewVKClassifier(r *rules.Set, keyDown KeyStateFunc) *VKClassifier {
	if keyDown == nil {
		keyDown = func(uint32) bool { return false }
	}
	return &VKClassifier{rules: r, keyDown: keyDown}
}

// Classify returns Block if any active rule matches ev
func (c *VKClassifier) Classify(ev VKEvent) Verdict {
	r := c.rules
	vk := ev.VKCode
	fkey := vk >= vkF1 && vk <= vkF12

	// Plain code comparisons first; key state queries cost a syscall.
	if vk == vkF11 && r.Blocked(rules.F11) {
		return Block
	}
	if vk == vkF3 && r.Blocked(rules.F3) {
		return Block
	}
	if fkey && r.Blocked(rules.FunctionKeys) {
		return Block
	}
	if (vk == vkLmenu || vk == vkRmenu) && r.Blocked(rules.Modifier) {
		return Block
	}
	if r.Blocked(rules.Fn) {
		if ev.ScanCode == scanFn || ev.ScanCode == scanFnAlt {
			return Block
		}
		if fkey && (ev.Flags&(llkhfExtended|llkhfInjected) != 0 || ev.ScanCode > scanFnHigh) {
			return Block
		}
	}
	if r.Blocked(rules.Super) {
		if vk == vkLwin || vk == vkRwin || c.keyDown(vkLwin) || c.keyDown(vkRwin) {
			return Block
		}
	}
	if vk == vkTab && r.Blocked(rules.TaskSwitch) && c.keyDown(vkMenu) {
		return Block
	}
	return Pass
}
