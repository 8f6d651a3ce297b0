package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"markestedt/keyguard/guard"
	"markestedt/keyguard/rules"
)

// ActionResponse is returned by every control endpoint
type ActionResponse struct {
	OK     bool         `json:"ok"`
	Error  string       `json:"error,omitempty"`
	Status guard.Status `json:"status"`
}

// RuleResponse describes a single rule
type RuleResponse struct {
	Rule    string `json:"rule"`
	Blocked bool   `json:"blocked"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeAction reports the outcome of a control call along with the status
// it left behind
func (s *Server) writeAction(w http.ResponseWriter, err error) {
	resp := ActionResponse{OK: err == nil, Status: s.ctrl.Status()}
	code := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, resp)
}

// handleStatus returns the hook state and rule flags
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// handleDisableAll blocks every rule
func (s *Server) handleDisableAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, err := s.ctrl.DisableAll(r.Context())
	if err != nil {
		slog.Error("Failed to block keys", "error", err)
	}
	s.writeAction(w, err)
}

// handleEnableAll allows every key again
func (s *Server) handleEnableAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.ctrl.EnableAll()
	s.writeAction(w, nil)
}

func (s *Server) handleHookStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, err := s.ctrl.Start(r.Context())
	if err != nil {
		slog.Error("Failed to start hook", "error", err)
	}
	s.writeAction(w, err)
}

func (s *Server) handleHookStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.ctrl.Stop()
	s.writeAction(w, nil)
}

// handleRules lists every rule flag
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status().Rules)
}

// handleRule handles GET and PUT requests for a single rule
// (e.g., /api/rules/f11)
func (s *Server) handleRule(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/rules/")
	rule, err := rules.ParseRule(name)
	if err != nil {
		http.Error(w, "Unknown rule", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, RuleResponse{
			Rule:    rule.String(),
			Blocked: s.ctrl.Status().Rules[rule.String()],
		})
	case http.MethodPut:
		s.handlePutRule(w, r, rule)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePutRule(w http.ResponseWriter, r *http.Request, rule rules.Rule) {
	var req struct {
		Blocked *bool `json:"blocked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Blocked == nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := s.ctrl.SetRule(r.Context(), rule, *req.Blocked)
	if err != nil {
		slog.Error("Failed to apply rule", "rule", rule, "blocked", *req.Blocked, "error", err)
	}
	s.writeAction(w, err)
}

// handleJournal returns paginated lifecycle entries, newest first
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		http.Error(w, "Journal disabled", http.StatusNotFound)
		return
	}

	limit := 50
	offset := 0
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}

	if session := r.URL.Query().Get("session"); session != "" {
		entries, err := s.db.GetSession(session)
		if err != nil {
			slog.Error("Failed to get session", "session", session, "error", err)
			http.Error(w, "Failed to get journal", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, JournalPage{Entries: entries, Total: len(entries), Limit: len(entries)})
		return
	}

	entries, err := s.db.GetEntries(limit, offset)
	if err != nil {
		slog.Error("Failed to get journal entries", "error", err)
		http.Error(w, "Failed to get journal", http.StatusInternalServerError)
		return
	}

	total, err := s.db.GetEntryCount()
	if err != nil {
		slog.Error("Failed to get journal count", "error", err)
		http.Error(w, "Failed to get journal", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, JournalPage{
		Entries: entries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// handleStats returns per-day transition counts
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		http.Error(w, "Journal disabled", http.StatusNotFound)
		return
	}

	days := 7 // default to 7 days
	if d, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && d > 0 {
		days = d
	}

	daily, err := s.db.GetDailyStats(days)
	if err != nil {
		slog.Error("Failed to get daily stats", "error", err)
		http.Error(w, "Failed to get statistics", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"days":  days,
		"daily": daily,
	})
}
