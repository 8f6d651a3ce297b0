package storage

import (
	"fmt"
)

// DailyStats counts lifecycle transitions for a single day
type DailyStats struct {
	Date          string `json:"date"`
	Activations   int    `json:"activations"`
	Deactivations int    `json:"deactivations"`
	StartFailed   int    `json:"startFailed"`
	StopTimeouts  int    `json:"stopTimeouts"`
	RuleChanges   int    `json:"ruleChanges"`
}

// GetDailyStats retrieves transition counts grouped by date for the last N days
func (db *DB) GetDailyStats(days int) ([]DailyStats, error) {
	query := `
		SELECT
			DATE(timestamp) as date,
			SUM(CASE WHEN kind = 'hook_started' THEN 1 ELSE 0 END) as activations,
			SUM(CASE WHEN kind = 'hook_stopped' THEN 1 ELSE 0 END) as deactivations,
			SUM(CASE WHEN kind = 'start_failed' THEN 1 ELSE 0 END) as start_failed,
			SUM(CASE WHEN kind = 'stop_timeout' THEN 1 ELSE 0 END) as stop_timeouts,
			SUM(CASE WHEN kind = 'rule_changed' THEN 1 ELSE 0 END) as rule_changes
		FROM journal
		WHERE timestamp >= datetime('now', '-' || ? || ' days')
		GROUP BY DATE(timestamp)
		ORDER BY date DESC
	`

	rows, err := db.conn.Query(query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var stats []DailyStats
	for rows.Next() {
		var s DailyStats
		err := rows.Scan(&s.Date, &s.Activations, &s.Deactivations, &s.StartFailed, &s.StopTimeouts, &s.RuleChanges)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily stats: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}
