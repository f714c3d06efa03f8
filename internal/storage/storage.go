// internal/storage/storage.go

// Package storage handles user media: profile avatars and voice-note
// attachments. A pluggable backend holds the bytes; this service owns
// naming, validation and public URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/markb/linglite/internal/storage/backend"
)

// MaxAvatarSize caps avatar uploads at 2 MiB.
const MaxAvatarSize = 2 << 20

// MaxAudioSize caps voice notes at 10 MiB.
const MaxAudioSize = 10 << 20

var avatarExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
}

var audioExtensions = map[string]string{
	"audio/ogg":  "ogg",
	"audio/webm": "webm",
	"audio/mpeg": "mp3",
	"audio/mp4":  "m4a",
	"audio/wav":  "wav",
}

// Config holds configuration for the storage service.
type Config struct {
	// Backend specifies the storage backend type: "local" or "s3"
	Backend string

	// LocalPath is the base directory for local storage.
	LocalPath string

	// S3 configuration
	S3Endpoint       string
	S3Region         string
	S3Bucket         string
	S3AccessKey      string
	S3SecretKey      string
	S3ForcePathStyle bool

	// PublicBaseURL prefixes generated object URLs,
	// e.g. "http://localhost:8080/storage/v1".
	PublicBaseURL string
}

// Service provides media storage operations.
type Service struct {
	backend backend.Backend
	baseURL string
}

// NewService creates a storage service with the configured backend.
func NewService(cfg Config) (*Service, error) {
	var b backend.Backend
	var err error

	switch cfg.Backend {
	case "s3":
		b, err = backend.NewS3(context.Background(), backend.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			UsePathStyle:    cfg.S3ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
	default:
		localPath := cfg.LocalPath
		if localPath == "" {
			localPath = "./storage"
		}
		b, err = backend.NewLocal(localPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local storage: %w", err)
		}
	}

	return &Service{
		backend: b,
		baseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// NewServiceWithBackend wires an existing backend; used by tests.
func NewServiceWithBackend(b backend.Backend, baseURL string) *Service {
	return &Service{backend: b, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.backend != nil {
		return s.backend.Close()
	}
	return nil
}

// SaveAvatar stores a user's avatar and returns its public URL. One avatar
// per user; a new upload replaces the old one.
func (s *Service) SaveAvatar(ctx context.Context, userID, contentType string, content io.Reader, size int64) (string, error) {
	ext, ok := avatarExtensions[normalizeContentType(contentType)]
	if !ok {
		return "", fmt.Errorf("unsupported avatar content type %q", contentType)
	}
	if size > MaxAvatarSize {
		return "", fmt.Errorf("avatar exceeds %d byte limit", MaxAvatarSize)
	}

	key := fmt.Sprintf("avatars/%s.%s", userID, ext)
	if _, err := s.backend.Write(ctx, key, io.LimitReader(content, MaxAvatarSize), size, contentType); err != nil {
		return "", fmt.Errorf("failed to store avatar: %w", err)
	}
	return s.ObjectURL(key), nil
}

// SaveAudio stores a voice-note attachment and returns its public URL.
func (s *Service) SaveAudio(ctx context.Context, userID, contentType string, content io.Reader, size int64) (string, error) {
	ext, ok := audioExtensions[normalizeContentType(contentType)]
	if !ok {
		return "", fmt.Errorf("unsupported audio content type %q", contentType)
	}
	if size > MaxAudioSize {
		return "", fmt.Errorf("audio exceeds %d byte limit", MaxAudioSize)
	}

	key := fmt.Sprintf("audio/%s/%s.%s", userID, uuid.NewString(), ext)
	if _, err := s.backend.Write(ctx, key, io.LimitReader(content, MaxAudioSize), size, contentType); err != nil {
		return "", fmt.Errorf("failed to store audio: %w", err)
	}
	return s.ObjectURL(key), nil
}

// Open returns a reader for a stored object.
func (s *Service) Open(ctx context.Context, key string) (io.ReadCloser, *backend.FileInfo, error) {
	return s.backend.Reader(ctx, key)
}

// Delete removes a stored object. Missing objects are a no-op.
func (s *Service) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// ObjectURL returns the public URL for a stored key.
func (s *Service) ObjectURL(key string) string {
	return s.baseURL + "/object/" + key
}

// ContentTypeForKey maps a stored key back to its MIME type from the file
// extension. Backends that do not persist content types rely on this.
func ContentTypeForKey(key string) string {
	idx := strings.LastIndex(key, ".")
	if idx < 0 {
		return "application/octet-stream"
	}
	ext := key[idx+1:]
	for ct, e := range avatarExtensions {
		if e == ext {
			return ct
		}
	}
	for ct, e := range audioExtensions {
		if e == ext {
			return ct
		}
	}
	return "application/octet-stream"
}

func normalizeContentType(ct string) string {
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = ct[:idx]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
