// internal/chat/calls.go
package chat

import (
	"database/sql"
	"fmt"
	"time"
)

// CallLog is the archived record of a finished call.
type CallLog struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id,omitempty"`
	CallerID       string     `json:"caller_id"`
	CalleeID       string     `json:"callee_id"`
	State          string     `json:"state"`
	Reason         string     `json:"reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ConnectedAt    *time.Time `json:"connected_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

// LogCall records a finished call. Calls are only archived once they reach
// a terminal state, so inserts never need updating.
func (s *Service) LogCall(log *CallLog) error {
	var conversationID, reason any
	if log.ConversationID != "" {
		conversationID = log.ConversationID
	}
	if log.Reason != "" {
		reason = log.Reason
	}
	_, err := s.db.Exec(`
		INSERT INTO call_logs (id, conversation_id, caller_id, callee_id, state, reason,
		                       created_at, connected_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, log.ID, conversationID, log.CallerID, log.CalleeID, log.State, reason,
		log.CreatedAt.UTC().Format(time.RFC3339),
		formatNullableTime(log.ConnectedAt), formatNullableTime(log.EndedAt))
	if err != nil {
		return fmt.Errorf("failed to log call: %w", err)
	}
	return nil
}

// CallsFor lists the user's call history, most recent first.
func (s *Service) CallsFor(userID string, limit int) ([]*CallLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, conversation_id, caller_id, callee_id, state, reason,
		       created_at, connected_at, ended_at
		FROM call_logs WHERE caller_id = ? OR callee_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	defer rows.Close()

	var logs []*CallLog
	for rows.Next() {
		log, err := scanCallLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func scanCallLog(row rowScanner) (*CallLog, error) {
	var log CallLog
	var conversationID, reason, connectedAt, endedAt sql.NullString
	var createdAt string
	err := row.Scan(&log.ID, &conversationID, &log.CallerID, &log.CalleeID,
		&log.State, &reason, &createdAt, &connectedAt, &endedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get call log: %w", err)
	}
	log.ConversationID = conversationID.String
	log.Reason = reason.String
	log.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if connectedAt.Valid {
		t, _ := time.Parse(time.RFC3339, connectedAt.String)
		log.ConnectedAt = &t
	}
	if endedAt.Valid {
		t, _ := time.Parse(time.RFC3339, endedAt.String)
		log.EndedAt = &t
	}
	return &log, nil
}
