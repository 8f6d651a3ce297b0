// Package guard drives the keyboard hook lifecycle from the rule state and
// exposes the control operations (block all, allow all, per-rule toggles,
// manual start and stop).
//
// The hook is installed exactly when at least one rule is active, or when
// it is started by hand. Classifiers read the shared rules.Set on every
// event, so toggling rules while the hook runs never restarts it.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"markestedt/keyguard/platform"
	"markestedt/keyguard/rules"
)

// Journal kinds written by the controller
const (
	EventHookStarted = "hook_started"
	EventHookStopped = "hook_stopped"
	EventStartFailed = "start_failed"
	EventStopTimeout = "stop_timeout"
	EventRuleChanged = "rule_changed"
)

// Journal records lifecycle transitions. session ties the entries of one
// hook activation together.
type Journal interface {
	Record(session, kind, detail string) error
}

// Status is a point-in-time view of the controller
type Status struct {
	Active   bool            `json:"active"`
	Platform string          `json:"platform"`
	Rules    map[string]bool `json:"rules"`
}

// Controller serializes every control call and owns the hook handle
type Controller struct {
	rules   *rules.Set
	hook    platform.Hook
	log     *slog.Logger
	journal Journal

	mu      sync.Mutex
	session string

	obsMu     sync.RWMutex
	observers []func(Status)
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the logger; the default is slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithJournal records lifecycle transitions in j
func WithJournal(j Journal) Option {
	return func(c *Controller) { c.journal = j }
}

// New creates a controller for hook driven by r. The hook is not started.
func New(r *rules.Set, hook platform.Hook, opts ...Option) *Controller {
	c := &Controller{
		rules: r,
		hook:  hook,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers fn to receive the status after every control call.
// fn runs on the caller's goroutine and must not block.
func (c *Controller) Subscribe(fn func(Status)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, fn)
}

// DisableAll activates every rule and makes sure the hook is installed.
// Installation failures are returned.
func (c *Controller) DisableAll(ctx context.Context) (bool, error) {
	c.mu.Lock()
	c.rules.SetAll(true)
	err := c.activate(ctx)
	c.mu.Unlock()

	c.notify()
	if err != nil {
		return false, err
	}
	return true, nil
}

// EnableAll clears every rule and removes the hook. A slow hook shutdown is
// logged, never returned.
func (c *Controller) EnableAll() bool {
	c.mu.Lock()
	c.rules.SetAll(false)
	c.deactivateIfIdle()
	c.mu.Unlock()

	c.notify()
	return true
}

// SetRule toggles a single rule. Activating a rule installs the hook if
// needed; clearing the last active rule removes it.
func (c *Controller) SetRule(ctx context.Context, r rules.Rule, blocked bool) error {
	c.mu.Lock()
	if c.rules.SetBlocked(r, blocked) {
		c.log.Info("Rule changed", "rule", r, "blocked", blocked)
		c.record(c.session, EventRuleChanged, fmt.Sprintf("%s=%t", r, blocked))
	}

	var err error
	if blocked {
		err = c.activate(ctx)
	} else {
		c.deactivateIfIdle()
	}
	c.mu.Unlock()

	c.notify()
	return err
}

// Start installs the hook regardless of the rule state
func (c *Controller) Start(ctx context.Context) (bool, error) {
	c.mu.Lock()
	err := c.activate(ctx)
	c.mu.Unlock()

	c.notify()
	if err != nil {
		return false, err
	}
	return true, nil
}

// Stop removes the hook regardless of the rule state. Rules are left as
// they are.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	c.deactivate()
	c.mu.Unlock()

	c.notify()
	return true
}

// IsActive reports whether the hook is installed
func (c *Controller) IsActive() bool {
	return c.hook.IsActive()
}

// Status returns the hook state and every rule flag
func (c *Controller) Status() Status {
	return Status{
		Active:   c.hook.IsActive(),
		Platform: c.hook.Platform(),
		Rules:    c.rules.Snapshot(),
	}
}

// activate moves Idle to Active. Callers hold c.mu.
func (c *Controller) activate(ctx context.Context) error {
	if c.hook.IsActive() {
		return nil
	}

	session := uuid.NewString()
	if err := c.hook.Start(ctx); err != nil {
		c.log.Error("Failed to install keyboard hook", "platform", c.hook.Platform(), "error", err)
		c.record(session, EventStartFailed, err.Error())
		return fmt.Errorf("failed to start keyboard hook: %w", err)
	}

	c.session = session
	c.log.Info("Keyboard hook installed", "platform", c.hook.Platform(), "session", session)
	c.record(session, EventHookStarted, "")
	return nil
}

// deactivateIfIdle removes the hook once no rule is active. Callers hold c.mu.
func (c *Controller) deactivateIfIdle() {
	if c.rules.AnyActive() {
		return
	}
	c.deactivate()
}

// deactivate moves Active to Idle. Callers hold c.mu.
func (c *Controller) deactivate() {
	session := c.session
	c.session = ""

	if err := c.hook.Stop(); err != nil {
		c.log.Warn("Keyboard hook did not shut down cleanly", "platform", c.hook.Platform(), "error", err)
		c.record(session, EventStopTimeout, err.Error())
		return
	}
	if session != "" {
		c.log.Info("Keyboard hook removed", "platform", c.hook.Platform(), "session", session)
		c.record(session, EventHookStopped, "")
	}
}

func (c *Controller) record(session, kind, detail string) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Record(session, kind, detail); err != nil {
		c.log.Warn("Failed to write journal entry", "kind", kind, "error", err)
	}
}

func (c *Controller) notify() {
	c.obsMu.RLock()
	observers := append(([]func(Status))(nil), c.observers...)
	c.obsMu.RUnlock()

	if len(observers) == 0 {
		return
	}
	status := c.Status()
	for _, fn := range observers {
		fn(status)
	}
}
