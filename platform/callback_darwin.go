//go:build darwin && cgo

package platform

/*
#include <stdint.h>
*/
import "C"

import "runtime/cgo"

//export keyguardDecide
func keyguardDecide(eventType C.uint32_t, keyCode C.int64_t, flags C.uint64_t, handle C.uintptr_t) C.int {
	c, ok := cgo.Handle(handle).Value().(*TapClassifier)
	if !ok {
		return 0
	}

	ev := TapEvent{
		Type:    TapEventType(eventType),
		KeyCode: uint16(keyCode),
		Flags:   uint64(flags),
	}
	if c.Classify(ev) == Block {
		return 1
	}
	return 0
}
