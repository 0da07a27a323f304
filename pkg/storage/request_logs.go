package storage

import (
	"database/sql"
	"strings"
	"time"
)

// Request outcomes recorded in request_logs.
const (
	OutcomeSolved  = "solved"
	OutcomeManual  = "manual_challenge"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// RequestLog records one clearance request for later review.
type RequestLog struct {
	ID        int64     `json:"id"`
	RequestID string    `json:"requestId"`
	TargetURL string    `json:"targetUrl"`
	Channel   string    `json:"channel"`
	Outcome   string    `json:"outcome"`
	FromCache bool      `json:"fromCache"`
	Attempts  int       `json:"attempts"`
	ElapsedMs int64     `json:"elapsedMs"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SaveRequestLog inserts a request record and fills in its row ID.
func (s *Store) SaveRequestLog(rec *RequestLog) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	if rec.Channel == "" {
		rec.Channel = "direct"
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.Exec(`
		INSERT INTO request_logs (request_id, target_url, channel, outcome, from_cache, attempts, elapsed_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.RequestID,
		rec.TargetURL,
		rec.Channel,
		rec.Outcome,
		rec.FromCache,
		rec.Attempts,
		rec.ElapsedMs,
		nullableString(rec.Error),
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = id
	return nil
}

// ListRequestLogs returns the most recent request records, newest first.
func (s *Store) ListRequestLogs(limit int) ([]RequestLog, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT id, request_id, target_url, channel, outcome, from_cache, attempts, elapsed_ms, error, created_at
		FROM request_logs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []RequestLog
	for rows.Next() {
		var rec RequestLog
		var errText sql.NullString
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.TargetURL, &rec.Channel, &rec.Outcome,
			&rec.FromCache, &rec.Attempts, &rec.ElapsedMs, &errText, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if errText.Valid {
			rec.Error = errText.String
		}
		logs = append(logs, rec)
	}
	return logs, rows.Err()
}

// CountRequestLogs returns per-outcome totals.
func (s *Store) CountRequestLogs() (map[string]int64, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.Query(`SELECT outcome, COUNT(*) FROM request_logs GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// PruneRequestLogs deletes records older than the cutoff and returns how many
// rows were removed.
func (s *Store) PruneRequestLogs(before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrStoreClosed
	}
	result, err := s.db.Exec(`DELETE FROM request_logs WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func nullableString(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
