// internal/chat/search.go
package chat

import (
	"fmt"
	"strings"
)

// matchQuery turns free-form user input into an FTS5 MATCH expression.
// Each term is quoted so punctuation in the input cannot change the query
// syntax; terms are ANDed together.
func matchQuery(input string) string {
	words := strings.Fields(input)
	if len(words) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ReplaceAll(w, `"`, "")
		if w == "" {
			continue
		}
		quoted = append(quoted, `"`+w+`"`)
	}
	return strings.Join(quoted, " AND ")
}

// SearchMessages finds messages in a conversation whose body matches the
// query, best match first. The caller must already be a participant.
func (s *Service) SearchMessages(conversationID, query string, limit int) ([]*Message, error) {
	match := matchQuery(query)
	if match == "" {
		return []*Message{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT m.id, m.conversation_id, m.sender_id, m.body, m.attachment_url, m.created_at
		FROM messages m
		JOIN messages_fts ON messages_fts.rowid = m.rowid
		WHERE messages_fts MATCH ? AND m.conversation_id = ?
		ORDER BY messages_fts.rank
		LIMIT ?
	`, match, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
