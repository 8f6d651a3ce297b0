// Package rules holds the set of independently toggleable block rules
// consulted by the keyboard classifiers on every event.
package rules

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Rule is one category of keys or key combinations that can be blocked
type Rule int

const (
	Super        Rule = iota // Windows / Command key
	TaskSwitch               // Alt+Tab / Cmd+Tab
	Modifier                 // Alt / Option key
	F11
	F3 // F3 and Mission Control style aliases
	Fn
	FunctionKeys // F1 through F12

	numRules
)

var names = [numRules]string{
	Super:        "super",
	TaskSwitch:   "task-switch",
	Modifier:     "modifier",
	F11:          "f11",
	F3:           "f3",
	Fn:           "fn",
	FunctionKeys: "function-keys",
}

var aliases = map[string]Rule{
	"win":     Super,
	"cmd":     Super,
	"alt-tab": TaskSwitch,
	"cmd-tab": TaskSwitch,
	"alt":     Modifier,
	"option":  Modifier,
	"fkeys":   FunctionKeys,
}

func (r Rule) String() string {
	if r < 0 || r >= numRules {
		return fmt.Sprintf("rule(%d)", int(r))
	}
	return names[r]
}

// All returns every rule in declaration order
func All() []Rule {
	all := make([]Rule, numRules)
	for i := range all {
		all[i] = Rule(i)
	}
	return all
}

// ParseRule parses a rule name such as "super" or "task-switch"
func ParseRule(name string) (Rule, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range names {
		if n == name {
			return Rule(i), nil
		}
	}
	if r, ok := aliases[name]; ok {
		return r, nil
	}
	return 0, fmt.Errorf("unknown rule: %q", name)
}

// ParseList parses a comma separated rule list like "super,f11".
// "all" expands to every rule.
func ParseList(list string) ([]Rule, error) {
	var out []Rule
	seen := make(map[Rule]bool)
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.EqualFold(part, "all") {
			return All(), nil
		}
		r, err := ParseRule(part)
		if err != nil {
			return nil, err
		}
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty rule list")
	}
	return out, nil
}

// Set is the live rule state. Each flag is an independent atomic switch:
// the control goroutine writes, the hook thread reads, and no cross-flag
// consistency is promised.
//
// The zero value has every rule cleared; NewSet returns the locked-down
// default.
type Set struct {
	flags [numRules]atomic.Bool
}

// NewSet returns a Set with every rule blocking
func NewSet() *Set {
	s := &Set{}
	s.SetAll(true)
	return s
}

// Blocked reports whether rule r is active
func (s *Set) Blocked(r Rule) bool {
	if r < 0 || r >= numRules {
		return false
	}
	return s.flags[r].Load()
}

// SetBlocked sets a single rule and reports whether the value changed
func (s *Set) SetBlocked(r Rule, blocked bool) bool {
	if r < 0 || r >= numRules {
		return false
	}
	return s.flags[r].Swap(blocked) != blocked
}

// SetAll sets every rule to blocked, one flag at a time
func (s *Set) SetAll(blocked bool) {
	for i := range s.flags {
		s.flags[i].Store(blocked)
	}
}

// AnyActive reports whether at least one rule is blocking
func (s *Set) AnyActive() bool {
	for i := range s.flags {
		if s.flags[i].Load() {
			return true
		}
	}
	return false
}

// Snapshot returns the current flags keyed by rule name
func (s *Set) Snapshot() map[string]bool {
	snap := make(map[string]bool, numRules)
	for i := range s.flags {
		snap[names[i]] = s.flags[i].Load()
	}
	return snap
}
