package platform

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// eventLoop is the native half of a hook. install and run are called on the
// same locked OS thread; quit may be called from any goroutine once install
// has returned nil, and must make run unhook and return. quit may be called
// more than once, including after run has returned.
type eventLoop interface {
	install() error
	run()
	quit()
}

// hookThread is one lifetime of the dedicated hook thread
type hookThread struct {
	loop      eventLoop
	done      chan struct{}
	installed atomic.Bool
}

func (t *hookThread) alive() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// threadHook implements Hook on top of an eventLoop. It owns the thread,
// the ready handshake and the bounded shutdown; the loop owns the OS calls.
type threadHook struct {
	platform string
	newLoop  func() eventLoop
	opts     Options

	mu     sync.Mutex
	thread atomic.Pointer[hookThread]
}

func newThreadHook(platform string, newLoop func() eventLoop, opts Options) *threadHook {
	return &threadHook{
		platform: platform,
		newLoop:  newLoop,
		opts:     opts.withDefaults(),
	}
}

func (h *threadHook) Platform() string {
	return h.platform
}

// Start spawns the hook thread and waits for it to report the outcome of
// installation
func (h *threadHook) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t := h.thread.Load(); t != nil && t.alive() {
		return nil
	}

	t := &hookThread{
		loop: h.newLoop(),
		done: make(chan struct{}),
	}
	ready := make(chan error, 1)
	go h.serve(t, ready)

	timer := time.NewTimer(h.opts.StartupTimeout)
	defer timer.Stop()

	select {
	case err := <-ready:
		if err != nil {
			<-t.done
			return &HookError{Op: "start", Platform: h.platform, Err: err}
		}
	case <-timer.C:
		go h.abandon(t, ready)
		return &HookError{Op: "start", Platform: h.platform, Err: ErrThreadCreate}
	case <-ctx.Done():
		go h.abandon(t, ready)
		return &HookError{Op: "start", Platform: h.platform, Err: ctx.Err()}
	}

	h.thread.Store(t)
	return nil
}

func (h *threadHook) serve(t *hookThread, ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.done)

	if err := t.loop.install(); err != nil {
		if !errors.Is(err, ErrHookInstall) {
			err = fmt.Errorf("%w: %v", ErrHookInstall, err)
		}
		ready <- err
		return
	}

	t.installed.Store(true)
	ready <- nil

	t.loop.run()
	t.installed.Store(false)
}

// abandon tears down a hook whose installation finished after its caller
// gave up waiting
func (h *threadHook) abandon(t *hookThread, ready <-chan error) {
	if err := <-ready; err == nil {
		quitAndWait(t, h.opts.ShutdownTimeout)
	}
}

// quitRetryInterval spaces repeated quit requests
const quitRetryInterval = 10 * time.Millisecond

// quitAndWait asks the loop to quit until the thread exits or timeout
// elapses. A native loop may drop a quit that arrives before it starts
// waiting for events, so the request is repeated.
func quitAndWait(t *hookThread, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	retry := time.NewTicker(quitRetryInterval)
	defer retry.Stop()

	t.loop.quit()
	for {
		select {
		case <-t.done:
			return true
		case <-retry.C:
			t.loop.quit()
		case <-deadline.C:
			return false
		}
	}
}

// Stop asks the hook thread to unhook and exit, waiting at most
// ShutdownTimeout. On timeout the thread is forgotten, not waited for.
func (h *threadHook) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	t := h.thread.Swap(nil)
	if t == nil || !t.alive() {
		return nil
	}

	if !quitAndWait(t, h.opts.ShutdownTimeout) {
		return &HookError{Op: "stop", Platform: h.platform, Err: ErrShutdownTimeout}
	}
	return nil
}

func (h *threadHook) IsActive() bool {
	t := h.thread.Load()
	return t != nil && t.installed.Load() && t.alive()
}
