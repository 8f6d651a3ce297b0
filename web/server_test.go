package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markestedt/keyguard/guard"
	"markestedt/keyguard/rules"
	"markestedt/keyguard/storage"
)

type fakeController struct {
	mu       sync.Mutex
	active   bool
	flags    map[string]bool
	startErr error
}

func newFakeController() *fakeController {
	flags := make(map[string]bool)
	for _, r := range rules.All() {
		flags[r.String()] = true
	}
	return &fakeController{flags: flags}
}

func (f *fakeController) setAll(blocked bool) {
	for name := range f.flags {
		f.flags[name] = blocked
	}
}

func (f *fakeController) DisableAll(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setAll(true)
	if f.startErr != nil {
		return false, f.startErr
	}
	f.active = true
	return true, nil
}

func (f *fakeController) EnableAll() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setAll(false)
	f.active = false
	return true
}

func (f *fakeController) Start(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return false, f.startErr
	}
	f.active = true
	return true, nil
}

func (f *fakeController) Stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = false
	return true
}

func (f *fakeController) SetRule(ctx context.Context, r rules.Rule, blocked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[r.String()] = blocked
	if blocked {
		if f.startErr != nil {
			return f.startErr
		}
		f.active = true
	}
	return nil
}

func (f *fakeController) Status() guard.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	flags := make(map[string]bool, len(f.flags))
	for k, v := range f.flags {
		flags[k] = v
	}
	return guard.Status{Active: f.active, Platform: "fake", Rules: flags}
}

func newTestServer(t *testing.T, ctrl Controller, db *storage.DB) (*Server, *APIClient) {
	t.Helper()
	s := NewServer(ctrl, db, 0)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.hub.Stop()
		ts.Close()
	})
	return s, NewAPIClient(ts.URL)
}

func TestStatus(t *testing.T) {
	ctrl := newFakeController()
	_, client := newTestServer(t, ctrl, nil)

	st, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Active)
	assert.Equal(t, "fake", st.Platform)
	assert.True(t, st.Rules["f11"])
	assert.Len(t, st.Rules, len(rules.All()))
}

func TestMethodNotAllowed(t *testing.T) {
	s := NewServer(newFakeController(), nil, 0)
	t.Cleanup(s.hub.Stop)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/status"},
		{http.MethodGet, "/api/disable-all"},
		{http.MethodGet, "/api/enable-all"},
		{http.MethodGet, "/api/hook/start"},
		{http.MethodDelete, "/api/rules/f3"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tt.method, tt.path)
	}
}

func TestDisableAndEnableAll(t *testing.T) {
	ctrl := newFakeController()
	_, client := newTestServer(t, ctrl, nil)
	ctx := context.Background()

	st, err := client.EnableAll(ctx)
	require.NoError(t, err)
	assert.False(t, st.Active)
	assert.False(t, st.Rules["super"])

	st, err = client.DisableAll(ctx)
	require.NoError(t, err)
	assert.True(t, st.Active)
	assert.True(t, st.Rules["super"])
}

func TestDisableAllReportsInstallFailure(t *testing.T) {
	ctrl := newFakeController()
	ctrl.startErr = errors.New("failed to start keyboard hook: access denied")
	_, client := newTestServer(t, ctrl, nil)

	st, err := client.DisableAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.False(t, st.Active)
	assert.True(t, st.Rules["fn"], "flags stay set after a failed install")
}

func TestManualStartStop(t *testing.T) {
	ctrl := newFakeController()
	_, client := newTestServer(t, ctrl, nil)
	ctx := context.Background()

	st, err := client.StartHook(ctx)
	require.NoError(t, err)
	assert.True(t, st.Active)

	st, err = client.StopHook(ctx)
	require.NoError(t, err)
	assert.False(t, st.Active)
	assert.True(t, st.Rules["f3"], "stop leaves rules alone")
}

func TestSetRule(t *testing.T) {
	ctrl := newFakeController()
	_, client := newTestServer(t, ctrl, nil)
	ctx := context.Background()

	st, err := client.SetRule(ctx, "f11", false)
	require.NoError(t, err)
	assert.False(t, st.Rules["f11"])
	assert.True(t, st.Rules["f3"])

	// aliases resolve to the canonical name
	st, err = client.SetRule(ctx, "alt-tab", false)
	require.NoError(t, err)
	assert.False(t, st.Rules["task-switch"])

	_, err = client.SetRule(ctx, "capslock", true)
	assert.Error(t, err)
}

func TestGetRule(t *testing.T) {
	s := NewServer(newFakeController(), nil, 0)
	t.Cleanup(s.hub.Stop)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rules/win", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rule":"super","blocked":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rules/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutRuleRejectsBadBody(t *testing.T) {
	s := NewServer(newFakeController(), nil, 0)
	t.Cleanup(s.hub.Stop)

	for _, body := range []string{"", "{}", `{"blocked":"yes"}`} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/api/rules/f11", strings.NewReader(body))
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func openJournal(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestJournal(t *testing.T) {
	db := openJournal(t)

	require.NoError(t, db.Record("s1", guard.EventHookStarted, ""))
	require.NoError(t, db.Record("s1", guard.EventRuleChanged, "f11=false"))
	require.NoError(t, db.Record("s1", guard.EventHookStopped, ""))

	_, client := newTestServer(t, newFakeController(), db)

	page, err := client.Journal(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, guard.EventHookStopped, page.Entries[0].Kind)
	assert.Equal(t, "f11=false", page.Entries[1].Detail)
}

func TestJournalSession(t *testing.T) {
	db := openJournal(t)
	require.NoError(t, db.Record("a", guard.EventHookStarted, ""))
	require.NoError(t, db.Record("b", guard.EventStartFailed, "access denied"))
	require.NoError(t, db.Record("a", guard.EventHookStopped, ""))

	s := NewServer(newFakeController(), db, 0)
	t.Cleanup(s.hub.Stop)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/journal?session=a", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var page JournalPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, guard.EventHookStarted, page.Entries[0].Kind, "session entries are oldest first")
	assert.Equal(t, guard.EventHookStopped, page.Entries[1].Kind)
	for _, e := range page.Entries {
		assert.Equal(t, "a", e.Session)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/journal?session=missing", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Entries)
}

func TestStats(t *testing.T) {
	db := openJournal(t)
	require.NoError(t, db.Record("a", guard.EventHookStarted, ""))
	require.NoError(t, db.Record("a", guard.EventRuleChanged, "f3=false"))
	require.NoError(t, db.Record("a", guard.EventHookStopped, ""))
	require.NoError(t, db.Record("b", guard.EventStartFailed, "access denied"))

	s := NewServer(newFakeController(), db, 0)
	t.Cleanup(s.hub.Stop)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats?days=3", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Days  int                  `json:"days"`
		Daily []storage.DailyStats `json:"daily"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Days)
	require.Len(t, resp.Daily, 1)
	assert.Equal(t, 1, resp.Daily[0].Activations)
	assert.Equal(t, 1, resp.Daily[0].Deactivations)
	assert.Equal(t, 1, resp.Daily[0].StartFailed)
	assert.Equal(t, 1, resp.Daily[0].RuleChanges)

	// bad values fall back to a week
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats?days=-2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Days)
}

func TestStatsJournalDisabled(t *testing.T) {
	s := NewServer(newFakeController(), nil, 0)
	t.Cleanup(s.hub.Stop)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJournalDisabled(t *testing.T) {
	_, client := newTestServer(t, newFakeController(), nil)

	_, err := client.Journal(context.Background(), 10, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestWatchReceivesPushes(t *testing.T) {
	ctrl := newFakeController()
	s, client := newTestServer(t, ctrl, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan guard.Status, 4)
	done := make(chan error, 1)
	go func() {
		done <- client.Watch(ctx, func(st guard.Status) { updates <- st })
	}()

	select {
	case st := <-updates:
		assert.False(t, st.Active, "initial status")
	case <-time.After(5 * time.Second):
		t.Fatal("no initial status")
	}

	ctrl.Start(context.Background())
	s.BroadcastStatus(ctrl.Status())

	select {
	case st := <-updates:
		assert.True(t, st.Active)
	case <-time.After(5 * time.Second):
		t.Fatal("no pushed status")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
}

func TestCheckLoopbackOrigin(t *testing.T) {
	tests := map[string]bool{
		"":                      true,
		"http://localhost:3000": true,
		"http://127.0.0.1":      true,
		"http://[::1]:8080":     true,
		"http://example.com":    false,
		"http://192.168.1.10":   false,
	}
	for origin, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		assert.Equal(t, want, checkLoopbackOrigin(req), origin)
	}
}
