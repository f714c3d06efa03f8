// internal/profile/profile.go
package profile

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/markb/linglite/internal/db"
)

type Profile struct {
	UserID           string     `json:"user_id"`
	DisplayName      string     `json:"display_name"`
	Bio              string     `json:"bio"`
	NativeLanguage   string     `json:"native_language"`
	LearningLanguage string     `json:"learning_language"`
	Location         string     `json:"location"`
	AvatarURL        string     `json:"avatar_url,omitempty"`
	LastSeenAt       *time.Time `json:"last_seen_at,omitempty"`
	Online           bool       `json:"online"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type Service struct {
	db *db.DB
}

func NewService(database *db.DB) *Service {
	return &Service{db: database}
}

// Create inserts an empty profile row for a new user. Display name defaults
// to the email local part handled by the caller.
func (s *Service) Create(userID, displayName string) error {
	_, err := s.db.Exec(`
		INSERT INTO profiles (user_id, display_name) VALUES (?, ?)
	`, userID, displayName)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (s *Service) Get(userID string) (*Profile, error) {
	row := s.db.QueryRow(`
		SELECT user_id, display_name, bio, native_language, learning_language,
		       location, avatar_url, last_seen_at, created_at, updated_at
		FROM profiles WHERE user_id = ?
	`, userID)
	return scanProfile(row)
}

type UpdateParams struct {
	DisplayName      *string `json:"display_name"`
	Bio              *string `json:"bio"`
	NativeLanguage   *string `json:"native_language"`
	LearningLanguage *string `json:"learning_language"`
	Location         *string `json:"location"`
}

// Update applies the non-nil fields of params to the profile.
func (s *Service) Update(userID string, params UpdateParams) (*Profile, error) {
	set := ""
	args := []any{}
	add := func(col string, val *string) {
		if val == nil {
			return
		}
		if set != "" {
			set += ", "
		}
		set += col + " = ?"
		args = append(args, *val)
	}
	add("display_name", params.DisplayName)
	add("bio", params.Bio)
	add("native_language", params.NativeLanguage)
	add("learning_language", params.LearningLanguage)
	add("location", params.Location)

	if set != "" {
		set += ", updated_at = ?"
		args = append(args, time.Now().UTC().Format(time.RFC3339))
		args = append(args, userID)
		res, err := s.db.Exec("UPDATE profiles SET "+set+" WHERE user_id = ?", args...)
		if err != nil {
			return nil, fmt.Errorf("failed to update profile: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("profile not found")
		}
	}

	return s.Get(userID)
}

func (s *Service) SetAvatarURL(userID, url string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec("UPDATE profiles SET avatar_url = ?, updated_at = ? WHERE user_id = ?", url, now, userID)
	if err != nil {
		return fmt.Errorf("failed to set avatar: %w", err)
	}
	return nil
}

// SetLastSeen stamps the moment a user dropped offline.
func (s *Service) SetLastSeen(userID string, at time.Time) error {
	_, err := s.db.Exec("UPDATE profiles SET last_seen_at = ? WHERE user_id = ?",
		at.UTC().Format(time.RFC3339), userID)
	return err
}

type SearchParams struct {
	NativeLanguage   string
	LearningLanguage string
	Query            string
	Limit            int
	Offset           int
}

// Search finds partner candidates. Filters are ANDed; Query matches the
// display name. The requesting user is excluded from results.
func (s *Service) Search(requesterID string, params SearchParams) ([]*Profile, error) {
	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = 20
	}

	where := "user_id != ?"
	args := []any{requesterID}
	if params.NativeLanguage != "" {
		where += " AND native_language = ?"
		args = append(args, params.NativeLanguage)
	}
	if params.LearningLanguage != "" {
		where += " AND learning_language = ?"
		args = append(args, params.LearningLanguage)
	}
	if params.Query != "" {
		where += " AND display_name LIKE ?"
		args = append(args, "%"+params.Query+"%")
	}
	args = append(args, params.Limit, params.Offset)

	rows, err := s.db.Query(`
		SELECT user_id, display_name, bio, native_language, learning_language,
		       location, avatar_url, last_seen_at, created_at, updated_at
		FROM profiles WHERE `+where+`
		ORDER BY last_seen_at DESC NULLS LAST, created_at DESC
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	var avatarURL, lastSeenAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&p.UserID, &p.DisplayName, &p.Bio, &p.NativeLanguage,
		&p.LearningLanguage, &p.Location, &avatarURL, &lastSeenAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("profile not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if avatarURL.Valid {
		p.AvatarURL = avatarURL.String
	}
	if lastSeenAt.Valid {
		t, _ := time.Parse(time.RFC3339, lastSeenAt.String)
		p.LastSeenAt = &t
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &p, nil
}
