//go:build darwin && cgo

package platform

/*
#cgo LDFLAGS: -framework ApplicationServices -framework CoreFoundation

#include <ApplicationServices/ApplicationServices.h>
#include <stdatomic.h>
#include <stdint.h>
#include <stdlib.h>

extern int keyguardDecide(uint32_t eventType, int64_t keyCode, uint64_t flags, uintptr_t handle);

// One tap, its run loop source and the run loop serving it. Owned by a
// single hook thread.
typedef struct {
    CFMachPortRef tap;
    CFRunLoopSourceRef source;
    CFRunLoopRef runLoop;
    uintptr_t handle;
    atomic_int stop;
} kgLoop;

static CGEventRef kgCallback(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *refcon) {
    (void)proxy;
    kgLoop *lp = (kgLoop *)refcon;

    // The system disables slow taps; turn it straight back on.
    if (type == kCGEventTapDisabledByTimeout || type == kCGEventTapDisabledByUserInput) {
        if (lp->tap != NULL) {
            CGEventTapEnable(lp->tap, true);
        }
        return event;
    }
    if (type != kCGEventKeyDown && type != kCGEventKeyUp && type != kCGEventFlagsChanged) {
        return event;
    }

    int64_t keyCode = CGEventGetIntegerValueField(event, kCGKeyboardEventKeycode);
    uint64_t flags = (uint64_t)CGEventGetFlags(event);
    if (keyguardDecide((uint32_t)type, keyCode, flags, lp->handle)) {
        return NULL;
    }
    return event;
}

static kgLoop *kgNew(uintptr_t handle) {
    kgLoop *lp = calloc(1, sizeof(kgLoop));
    if (lp != NULL) {
        lp->handle = handle;
        atomic_init(&lp->stop, 0);
    }
    return lp;
}

static void kgFree(kgLoop *lp) {
    free(lp);
}

static int kgInstall(kgLoop *lp) {
    CGEventMask mask = CGEventMaskBit(kCGEventKeyDown) |
                       CGEventMaskBit(kCGEventKeyUp) |
                       CGEventMaskBit(kCGEventFlagsChanged);

    lp->tap = CGEventTapCreate(
        kCGSessionEventTap,
        kCGHeadInsertEventTap,
        kCGEventTapOptionDefault,
        mask,
        kgCallback,
        (void *)lp
    );
    if (lp->tap == NULL) {
        return -1;
    }

    lp->source = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, lp->tap, 0);
    if (lp->source == NULL) {
        CFRelease(lp->tap);
        lp->tap = NULL;
        return -2;
    }

    lp->runLoop = CFRunLoopGetCurrent();
    CFRunLoopAddSource(lp->runLoop, lp->source, kCFRunLoopCommonModes);
    CGEventTapEnable(lp->tap, true);
    return 0;
}

// kgRun serves the tap until kgQuit, then releases it. CFRunLoopStop is
// lost when the loop is not running yet, so the stop flag is checked
// between short runs.
static void kgRun(kgLoop *lp) {
    while (!atomic_load(&lp->stop)) {
        CFRunLoopRunInMode(kCFRunLoopDefaultMode, 0.25, false);
    }

    CGEventTapEnable(lp->tap, false);
    CFRunLoopRemoveSource(lp->runLoop, lp->source, kCFRunLoopCommonModes);
    CFRelease(lp->source);
    CFRelease(lp->tap);
    lp->source = NULL;
    lp->tap = NULL;
}

static void kgQuit(kgLoop *lp) {
    atomic_store(&lp->stop, 1);
    CFRunLoopRef rl = lp->runLoop;
    if (rl != NULL) {
        CFRunLoopStop(rl);
    }
}

static int kgTrusted(void) {
    return AXIsProcessTrusted() ? 1 : 0;
}
*/
import "C"

import (
	"fmt"
	"runtime/cgo"
	"sync"

	"markestedt/keyguard/rules"
)

// NewHook returns the CGEventTap keyboard hook
func NewHook(r *rules.Set, opts Options) Hook {
	classifier := NewTapClassifier(r)
	return newThreadHook("darwin", func() eventLoop {
		return &darwinLoop{classifier: classifier}
	}, opts)
}

// darwinLoop owns one event tap and the CFRunLoop of its hook thread. The
// C state is per loop, so a thread left behind by a shutdown timeout never
// touches the tap of a later one.
type darwinLoop struct {
	classifier *TapClassifier
	handle     cgo.Handle

	mu sync.Mutex
	lp *C.kgLoop
}

func (l *darwinLoop) install() error {
	l.handle = cgo.NewHandle(l.classifier)

	lp := C.kgNew(C.uintptr_t(l.handle))
	if lp == nil {
		l.handle.Delete()
		return fmt.Errorf("%w: out of memory", ErrHookInstall)
	}

	switch C.kgInstall(lp) {
	case 0:
		l.mu.Lock()
		l.lp = lp
		l.mu.Unlock()
		return nil
	case -1:
		C.kgFree(lp)
		l.handle.Delete()
		if C.kgTrusted() == 0 {
			return fmt.Errorf("%w: CGEventTapCreate failed, accessibility access not granted", ErrHookInstall)
		}
		return fmt.Errorf("%w: CGEventTapCreate failed", ErrHookInstall)
	default:
		C.kgFree(lp)
		l.handle.Delete()
		return fmt.Errorf("%w: failed to create run loop source", ErrHookInstall)
	}
}

func (l *darwinLoop) run() {
	l.mu.Lock()
	lp := l.lp
	l.mu.Unlock()

	C.kgRun(lp)

	l.mu.Lock()
	C.kgFree(lp)
	l.lp = nil
	l.mu.Unlock()
	l.handle.Delete()
}

func (l *darwinLoop) quit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lp != nil {
		C.kgQuit(l.lp)
	}
}
