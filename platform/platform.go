package platform

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Hook is a system-wide low-level keyboard intercept owned by a dedicated
// OS thread. At most one should be live per process.
type Hook interface {
	// Start installs the hook. It is a no-op if the hook is already running.
	Start(ctx context.Context) error

	// Stop removes the hook and waits a bounded time for its thread to exit.
	// It is a no-op if the hook is not running.
	Stop() error

	// IsActive reports whether the hook is installed and its thread alive.
	IsActive() bool

	// Platform names the hook implementation ("windows", "darwin", "none").
	Platform() string
}

var (
	// ErrHookInstall means the OS refused to install the intercept,
	// usually for lack of privilege or accessibility trust.
	ErrHookInstall = errors.New("keyboard hook installation refused")

	// ErrThreadCreate means the hook thread never reported readiness.
	ErrThreadCreate = errors.New("hook thread failed to start")

	// ErrShutdownTimeout means the hook thread did not exit within the bound.
	ErrShutdownTimeout = errors.New("hook thread did not exit in time")

	// ErrUnsupported is returned by the null hook on platforms without a
	// native implementation.
	ErrUnsupported = fmt.Errorf("%w: no keyboard hook on this platform", ErrHookInstall)
)

// HookError records the failed operation and the hook that failed
type HookError struct {
	Op       string
	Platform string
	Err      error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook %s: %v", e.Platform, e.Op, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// Options bounds the hook thread's startup and shutdown
type Options struct {
	StartupTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// DefaultOptions returns the timeouts used when none are configured
func DefaultOptions() Options {
	return Options{
		StartupTimeout:  2 * time.Second,
		ShutdownTimeout: time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.StartupTimeout <= 0 {
		o.StartupTimeout = d.StartupTimeout
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = d.ShutdownTimeout
	}
	return o
}

// Verdict is the classifier's decision for one key event
type Verdict int

const (
	Pass Verdict = iota
	Block
)

func (v Verdict) String() string {
	if v == Block {
		return "block"
	}
	return "pass"
}
