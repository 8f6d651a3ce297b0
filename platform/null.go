package platform

import "context"

// NullHook is the hook used where no native intercept exists. Start always
// fails, Stop always succeeds and the hook is never active.
type NullHook struct{}

func (NullHook) Start(ctx context.Context) error {
	return &HookError{Op: "start", Platform: "none", Err: ErrUnsupported}
}

func (NullHook) Stop() error { return nil }

func (NullHook) IsActive() bool { return false }

func (NullHook) Platform() string { return "none" }
