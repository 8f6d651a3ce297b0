//go:build windows

package platform

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"

	"markestedt/keyguard/rules"
)

var (
	user32              = windows.NewLazySystemDLL("user32.dll")
	setWindowsHookEx    = user32.NewProc("SetWindowsHookExW")
	callNextHookEx      = user32.NewProc("CallNextHookEx")
	unhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	getMessage          = user32.NewProc("GetMessageW")
	peekMessage         = user32.NewProc("PeekMessageW")
	postThreadMessage   = user32.NewProc("PostThreadMessageW")
	getAsyncKeyState    = user32.NewProc("GetAsyncKeyState")
)

const (
	whKeyboardLL = 13
	hcAction     = 0
	wmQuit       = 0x0012
	wmKeydown    = 0x0100
	wmSyskeydown = 0x0104
	wmUser       = 0x0400
	pmNoremove   = 0x0000
)

type kbdllhookstruct struct {
	vkCode      uint32
	scanCode    uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

type msg struct {
	hwnd    uintptr
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      struct{ x, y int32 }
}

var (
	// NewCallback slots are never released, so the trampoline is made once.
	hookProcOnce sync.Once
	hookProcPtr  uintptr

	// Classifier of the installed hook. WH_KEYBOARD_LL callbacks carry no
	// user data, and there is at most one hook per process.
	activeClassifier atomic.Pointer[VKClassifier]
)

// NewHook returns the WH_KEYBOARD_LL keyboard hook
func NewHook(r *rules.Set, opts Options) Hook {
	classifier := NewVKClassifier(r, isKeyPressed)
	return newThreadHook("windows", func() eventLoop {
		return &windowsLoop{classifier: classifier}
	}, opts)
}

func hookProc(nCode int32, wParam uintptr, lParam uintptr) uintptr {
	if nCode == hcAction {
		if c := activeClassifier.Load(); c != nil {
			kbInfo := (*kbdllhookstruct)(unsafe.Pointer(lParam))
			ev := VKEvent{
				VKCode:   kbInfo.vkCode,
				ScanCode: kbInfo.scanCode,
				Flags:    kbInfo.flags,
				Down:     wParam == wmKeydown || wParam == wmSyskeydown,
			}
			if c.Classify(ev) == Block {
				return 1
			}
		}
	}
	r, _, _ := callNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return r
}

// windowsLoop owns one SetWindowsHookEx registration and the GetMessage
// loop that services it
type windowsLoop struct {
	classifier *VKClassifier
	hook       uintptr
	threadID   atomic.Uint32
}

func (l *windowsLoop) install() error {
	hookProcOnce.Do(func() {
		hookProcPtr = windows.NewCallback(hookProc)
	})

	// Make sure this thread owns a message queue before quit can post to it.
	var m msg
	peekMessage.Call(uintptr(unsafe.Pointer(&m)), 0, wmUser, wmUser, pmNoremove)

	activeClassifier.Store(l.classifier)
	hook, _, err := setWindowsHookEx.Call(whKeyboardLL, hookProcPtr, 0, 0)
	if hook == 0 {
		activeClassifier.CompareAndSwap(l.classifier, nil)
		return fmt.Errorf("%w: SetWindowsHookEx failed: %v", ErrHookInstall, err)
	}

	l.hook = hook
	l.threadID.Store(windows.GetCurrentThreadId())
	return nil
}

func (l *windowsLoop) run() {
	var m msg
	for {
		r, _, _ := getMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		// 0 means WM_QUIT, -1 an error
		if int32(r) <= 0 {
			break
		}
	}

	l.threadID.Store(0)
	unhookWindowsHookEx.Call(l.hook)
	l.hook = 0
	activeClassifier.CompareAndSwap(l.classifier, nil)
}

func (l *windowsLoop) quit() {
	if tid := l.threadID.Load(); tid != 0 {
		postThreadMessage.Call(uintptr(tid), wmQuit, 0, 0)
	}
}

func isKeyPressed(vk uint32) bool {
	r, _, _ := getAsyncKeyState.Call(uintptr(vk))
	return r&0x8000 != 0
}
