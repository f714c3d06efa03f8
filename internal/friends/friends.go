// internal/friends/friends.go
package friends

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/markb/linglite/internal/db"
)

var (
	ErrSelfRequest     = errors.New("cannot send a friend request to yourself")
	ErrAlreadyFriends  = errors.New("users are already friends")
	ErrDuplicate       = errors.New("friend request already exists")
	ErrRequestNotFound = errors.New("friend request not found")
	ErrNotRecipient    = errors.New("only the recipient can answer a request")
	ErrNotSender       = errors.New("only the sender can cancel a request")
)

type Request struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Service struct {
	db *db.DB
}

func NewService(database *db.DB) *Service {
	return &Service{db: database}
}

// orderPair returns the pair in storage order (user_a < user_b).
func orderPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// SendRequest creates a pending request from sender to recipient. If the
// recipient already has a pending request towards the sender, the two
// requests are treated as mutual consent and the friendship is created
// immediately.
func (s *Service) SendRequest(senderID, recipientID string) (*Request, error) {
	if senderID == recipientID {
		return nil, ErrSelfRequest
	}

	friends, err := s.AreFriends(senderID, recipientID)
	if err != nil {
		return nil, err
	}
	if friends {
		return nil, ErrAlreadyFriends
	}

	// A pending request in the opposite direction means both sides want
	// the connection; accept it instead of stacking a second request.
	var reverseID string
	err = s.db.QueryRow(`
		SELECT id FROM friend_requests
		WHERE sender_id = ? AND recipient_id = ? AND status = 'pending'
	`, recipientID, senderID).Scan(&reverseID)
	if err == nil {
		return s.Accept(reverseID, senderID)
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check reverse request: %w", err)
	}

	// A declined or stale accepted row for the pair is revived instead of
	// blocking on the unique constraint; a pending one stays untouched and
	// surfaces as a duplicate.
	now := time.Now().UTC().Format(time.RFC3339)
	var id string
	err = s.db.QueryRow(`
		INSERT INTO friend_requests (sender_id, recipient_id, status, created_at, updated_at)
		VALUES (?, ?, 'pending', ?, ?)
		ON CONFLICT(sender_id, recipient_id) DO UPDATE
		SET status = 'pending', created_at = excluded.created_at, updated_at = excluded.updated_at
		WHERE friend_requests.status != 'pending'
		RETURNING id
	`, senderID, recipientID, now, now).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create friend request: %w", err)
	}

	return s.getRequest(id)
}

// Accept marks a pending request accepted and records the friendship.
// Only the recipient may accept.
func (s *Service) Accept(requestID, userID string) (*Request, error) {
	req, err := s.getRequest(requestID)
	if err != nil {
		return nil, err
	}
	if req.RecipientID != userID {
		return nil, ErrNotRecipient
	}
	if req.Status != "pending" {
		return nil, fmt.Errorf("request is %s, not pending", req.Status)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(`
		UPDATE friend_requests SET status = 'accepted', updated_at = ? WHERE id = ?
	`, now, requestID); err != nil {
		return nil, fmt.Errorf("failed to accept request: %w", err)
	}

	a, b := orderPair(req.SenderID, req.RecipientID)
	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO friendships (user_a, user_b, created_at) VALUES (?, ?, ?)
	`, a, b, now); err != nil {
		return nil, fmt.Errorf("failed to create friendship: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return s.getRequest(requestID)
}

// Decline marks a pending request declined. Only the recipient may decline.
func (s *Service) Decline(requestID, userID string) (*Request, error) {
	req, err := s.getRequest(requestID)
	if err != nil {
		return nil, err
	}
	if req.RecipientID != userID {
		return nil, ErrNotRecipient
	}
	if req.Status != "pending" {
		return nil, fmt.Errorf("request is %s, not pending", req.Status)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.db.Exec(`
		UPDATE friend_requests SET status = 'declined', updated_at = ? WHERE id = ?
	`, now, requestID); err != nil {
		return nil, fmt.Errorf("failed to decline request: %w", err)
	}

	return s.getRequest(requestID)
}

// Cancel withdraws a pending request. Only the sender may cancel; the row
// is deleted so the pair can be requested again later.
func (s *Service) Cancel(requestID, userID string) error {
	req, err := s.getRequest(requestID)
	if err != nil {
		return err
	}
	if req.SenderID != userID {
		return ErrNotSender
	}
	if req.Status != "pending" {
		return fmt.Errorf("request is %s, not pending", req.Status)
	}

	if _, err := s.db.Exec(`DELETE FROM friend_requests WHERE id = ?`, requestID); err != nil {
		return fmt.Errorf("failed to cancel request: %w", err)
	}
	return nil
}

// IncomingRequests lists pending requests addressed to the user.
func (s *Service) IncomingRequests(userID string) ([]*Request, error) {
	return s.listRequests("recipient_id", userID)
}

// OutgoingRequests lists pending requests the user has sent.
func (s *Service) OutgoingRequests(userID string) ([]*Request, error) {
	return s.listRequests("sender_id", userID)
}

func (s *Service) listRequests(column, userID string) ([]*Request, error) {
	rows, err := s.db.Query(`
		SELECT id, sender_id, recipient_id, status, created_at, updated_at
		FROM friend_requests WHERE `+column+` = ? AND status = 'pending'
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// FriendIDs returns the user ids of all friends of userID.
func (s *Service) FriendIDs(userID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT CASE WHEN user_a = ? THEN user_b ELSE user_a END
		FROM friendships WHERE user_a = ? OR user_b = ?
	`, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Service) AreFriends(a, b string) (bool, error) {
	ua, ub := orderPair(a, b)
	var one int
	err := s.db.QueryRow(`
		SELECT 1 FROM friendships WHERE user_a = ? AND user_b = ?
	`, ua, ub).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check friendship: %w", err)
	}
	return true, nil
}

// Remove deletes a friendship in either direction. Removing a non-friend
// is a no-op.
func (s *Service) Remove(a, b string) error {
	ua, ub := orderPair(a, b)
	_, err := s.db.Exec(`DELETE FROM friendships WHERE user_a = ? AND user_b = ?`, ua, ub)
	if err != nil {
		return fmt.Errorf("failed to remove friendship: %w", err)
	}
	return nil
}

func (s *Service) getRequest(id string) (*Request, error) {
	row := s.db.QueryRow(`
		SELECT id, sender_id, recipient_id, status, created_at, updated_at
		FROM friend_requests WHERE id = ?
	`, id)
	return scanRequest(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var req Request
	var createdAt, updatedAt string
	err := row.Scan(&req.ID, &req.SenderID, &req.RecipientID, &req.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	req.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	req.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &req, nil
}
