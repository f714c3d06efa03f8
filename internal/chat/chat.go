// internal/chat/chat.go
package chat

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/markb/linglite/internal/db"
)

var (
	ErrNotFound       = errors.New("conversation not found")
	ErrNotParticipant = errors.New("user is not part of this conversation")
	ErrEmptyMessage   = errors.New("message needs a body or an attachment")
)

type Conversation struct {
	ID        string    `json:"id"`
	UserA     string    `json:"user_a"`
	UserB     string    `json:"user_b"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	AttachmentURL  string    `json:"attachment_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type Service struct {
	db *db.DB
}

func NewService(database *db.DB) *Service {
	return &Service{db: database}
}

func orderPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// EnsureConversation returns the conversation between the two users,
// creating it on first use. One conversation exists per pair.
func (s *Service) EnsureConversation(userA, userB string) (*Conversation, error) {
	a, b := orderPair(userA, userB)

	conv, err := s.conversationByPair(a, b)
	if err == nil {
		return conv, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var id string
	err = s.db.QueryRow(`
		INSERT INTO conversations (user_a, user_b, created_at) VALUES (?, ?, ?)
		RETURNING id
	`, a, b, now).Scan(&id)
	if err != nil {
		// Lost a race with a concurrent create; the row exists now.
		if conv, lookupErr := s.conversationByPair(a, b); lookupErr == nil {
			return conv, nil
		}
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return s.GetConversation(id)
}

func (s *Service) conversationByPair(a, b string) (*Conversation, error) {
	row := s.db.QueryRow(`
		SELECT id, user_a, user_b, created_at FROM conversations
		WHERE user_a = ? AND user_b = ?
	`, a, b)
	return scanConversation(row)
}

func (s *Service) GetConversation(id string) (*Conversation, error) {
	row := s.db.QueryRow(`
		SELECT id, user_a, user_b, created_at FROM conversations WHERE id = ?
	`, id)
	return scanConversation(row)
}

// ConversationsFor lists the user's conversations, most recent first.
func (s *Service) ConversationsFor(userID string) ([]*Conversation, error) {
	rows, err := s.db.Query(`
		SELECT c.id, c.user_a, c.user_b, c.created_at FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE c.user_a = ? OR c.user_b = ?
		GROUP BY c.id
		ORDER BY COALESCE(MAX(m.created_at), c.created_at) DESC
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// IsParticipant reports whether userID belongs to the conversation.
func (s *Service) IsParticipant(userID, conversationID string) (bool, error) {
	conv, err := s.GetConversation(conversationID)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return conv.UserA == userID || conv.UserB == userID, nil
}

// OtherParticipant returns the peer of userID in the conversation.
func (s *Service) OtherParticipant(userID, conversationID string) (string, error) {
	conv, err := s.GetConversation(conversationID)
	if err != nil {
		return "", err
	}
	switch userID {
	case conv.UserA:
		return conv.UserB, nil
	case conv.UserB:
		return conv.UserA, nil
	}
	return "", ErrNotParticipant
}

// SaveMessage persists a message. The sender must be a participant.
func (s *Service) SaveMessage(conversationID, senderID, body, attachmentURL string) (*Message, error) {
	if body == "" && attachmentURL == "" {
		return nil, ErrEmptyMessage
	}

	ok, err := s.IsParticipant(senderID, conversationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotParticipant
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var attachment any
	if attachmentURL != "" {
		attachment = attachmentURL
	}
	var id string
	err = s.db.QueryRow(`
		INSERT INTO messages (conversation_id, sender_id, body, attachment_url, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, conversationID, senderID, body, attachment, now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	return s.getMessage(id)
}

// History returns messages in a conversation, oldest first. A non-zero
// before timestamp pages backwards through older messages.
func (s *Service) History(conversationID string, limit int, before time.Time) ([]*Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	where := "conversation_id = ?"
	args := []any{conversationID}
	if !before.IsZero() {
		where += " AND created_at < ?"
		args = append(args, before.UTC().Format(time.RFC3339))
	}
	args = append(args, limit)

	rows, err := s.db.Query(`
		SELECT id, conversation_id, sender_id, body, attachment_url, created_at
		FROM (
			SELECT * FROM messages WHERE `+where+`
			ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at ASC, id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *Service) getMessage(id string) (*Message, error) {
	row := s.db.QueryRow(`
		SELECT id, conversation_id, sender_id, body, attachment_url, created_at
		FROM messages WHERE id = ?
	`, id)
	return scanMessage(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var createdAt string
	err := row.Scan(&conv.ID, &conv.UserA, &conv.UserB, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	conv.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &conv, nil
}

func scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var attachment sql.NullString
	var createdAt string
	err := row.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Body, &attachment, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("message not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if attachment.Valid {
		msg.AttachmentURL = attachment.String
	}
	msg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &msg, nil
}
