package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Entry is one hook lifecycle transition
type Entry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Session   string    `json:"session"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
}

// Record appends a journal entry
func (db *DB) Record(session, kind, detail string) error {
	query := `INSERT INTO journal (session, kind, detail) VALUES (?, ?, ?)`

	var d sql.NullString
	if detail != "" {
		d = sql.NullString{String: detail, Valid: true}
	}

	if _, err := db.conn.Exec(query, session, kind, d); err != nil {
		return fmt.Errorf("failed to record journal entry: %w", err)
	}
	return nil
}

// GetEntries retrieves journal entries, newest first
func (db *DB) GetEntries(limit, offset int) ([]Entry, error) {
	query := `
		SELECT id, timestamp, session, kind, detail
		FROM journal
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := db.conn.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var detail sql.NullString

		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Session, &e.Kind, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		if detail.Valid {
			e.Detail = detail.String
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetSession retrieves every entry of one hook activation in order
func (db *DB) GetSession(session string) ([]Entry, error) {
	query := `
		SELECT id, timestamp, session, kind, detail
		FROM journal
		WHERE session = ?
		ORDER BY id ASC
	`

	rows, err := db.conn.Query(query, session)
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var detail sql.NullString

		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Session, &e.Kind, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		if detail.Valid {
			e.Detail = detail.String
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetEntryCount returns the total number of journal entries
func (db *DB) GetEntryCount() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM journal").Scan(&count)
	return count, err
}

// Prune deletes entries older than the given number of days and returns
// how many were removed
func (db *DB) Prune(days int) (int64, error) {
	query := `DELETE FROM journal WHERE timestamp < datetime('now', '-' || ? || ' days')`

	result, err := db.conn.Exec(query, days)
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
