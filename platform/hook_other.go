//go:build !windows && !(darwin && cgo)

package platform

import "markestedt/keyguard/rules"

// NewHook returns the null hook; this platform has no native intercept
func NewHook(r *rules.Set, opts Options) Hook {
	return NullHook{}
}
