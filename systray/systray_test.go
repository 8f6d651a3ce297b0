package systray

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"markestedt/keyguard/guard"
)

func TestStatusLabel(t *testing.T) {
	all := map[string]bool{"super": true, "f11": true, "f3": true}
	some := map[string]bool{"super": true, "f11": false, "f3": true}
	none := map[string]bool{"super": false, "f11": false, "f3": false}

	tests := []struct {
		name string
		st   guard.Status
		want string
	}{
		{"idle", guard.Status{Active: false, Rules: none}, "Hook off, keys allowed"},
		{"failed install", guard.Status{Active: false, Rules: all}, "Hook off, keys allowed"},
		{"all", guard.Status{Active: true, Rules: all}, "Blocking all keys"},
		{"some", guard.Status{Active: true, Rules: some}, "Blocking 2 of 3 rules"},
		{"manual start", guard.Status{Active: true, Rules: none}, "Hook on, no rules active"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusLabel(tt.st))
		})
	}
}

func TestUpdateBeforeReady(t *testing.T) {
	m := NewSystrayManager(nil, 0, nil)
	assert.NotPanics(t, func() {
		m.Update(guard.Status{Active: true})
	})
}
