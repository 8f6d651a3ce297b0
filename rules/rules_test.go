package rules

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSetBlocksEverything(t *testing.T) {
	s := NewSet()
	for _, r := range All() {
		assert.True(t, s.Blocked(r), r.String())
	}
	assert.True(t, s.AnyActive())
}

func TestZeroSetIsClear(t *testing.T) {
	var s Set
	assert.False(t, s.AnyActive())
}

func TestSetAll(t *testing.T) {
	s := NewSet()
	s.SetAll(false)
	assert.False(t, s.AnyActive())
	for _, v := range s.Snapshot() {
		assert.False(t, v)
	}

	s.SetAll(true)
	assert.Len(t, s.Snapshot(), len(All()))
	for name, v := range s.Snapshot() {
		assert.True(t, v, name)
	}
}

func TestSetBlockedIndependent(t *testing.T) {
	var s Set
	assert.True(t, s.SetBlocked(F11, true))
	assert.False(t, s.SetBlocked(F11, true), "second write is not a change")

	assert.True(t, s.Blocked(F11))
	assert.False(t, s.Blocked(F3))
	assert.True(t, s.AnyActive())

	assert.True(t, s.SetBlocked(F11, false))
	assert.False(t, s.AnyActive())
}

func TestOutOfRangeRule(t *testing.T) {
	s := NewSet()
	assert.False(t, s.Blocked(Rule(99)))
	assert.False(t, s.SetBlocked(Rule(-1), true))
	assert.Equal(t, "rule(99)", Rule(99).String())
}

func TestParseRule(t *testing.T) {
	tests := []struct {
		in   string
		want Rule
	}{
		{"super", Super},
		{" Task-Switch ", TaskSwitch},
		{"alt-tab", TaskSwitch},
		{"option", Modifier},
		{"f11", F11},
		{"F3", F3},
		{"fn", Fn},
		{"function-keys", FunctionKeys},
	}
	for _, tt := range tests {
		got, err := ParseRule(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseRule("ctrl")
	assert.Error(t, err)
}

func TestParseList(t *testing.T) {
	got, err := ParseList("super, f11,super")
	require.NoError(t, err)
	assert.Equal(t, []Rule{Super, F11}, got)

	got, err = ParseList("f3,all")
	require.NoError(t, err)
	assert.Equal(t, All(), got)

	_, err = ParseList(" , ")
	assert.Error(t, err)

	_, err = ParseList("super,bogus")
	assert.Error(t, err)
}

func TestConcurrentAccess(t *testing.T) {
	s := NewSet()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				s.SetAll(j%2 == 0)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				_ = s.AnyActive()
				_ = s.Blocked(Fn)
			}
		}()
	}
	wg.Wait()
}
