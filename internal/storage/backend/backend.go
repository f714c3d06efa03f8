// Package backend defines the storage backend interface for linglite media
// files (avatars, voice notes). Backends handle the raw bytes; the storage
// service layers naming, validation and URLs on top.
package backend

import (
	"context"
	"io"
	"time"
)

// FileInfo represents metadata about a stored file.
type FileInfo struct {
	Key         string    // Full path/key of the file
	Size        int64     // File size in bytes
	ContentType string    // MIME type
	ETag        string    // MD5 hash for caching/integrity
	ModTime     time.Time // Last modification time
}

// Backend defines the interface for storage backends.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Exists checks if a file exists at the given key.
	Exists(ctx context.Context, key string) (bool, error)

	// Reader returns a reader for the file content along with its metadata.
	// The caller is responsible for closing the reader.
	// Returns ErrNotFound if the file does not exist.
	Reader(ctx context.Context, key string) (io.ReadCloser, *FileInfo, error)

	// Write stores content at the given key.
	// If size is -1, the implementation should read until EOF.
	// Returns metadata about the written file including its ETag.
	Write(ctx context.Context, key string, content io.Reader, size int64, contentType string) (*FileInfo, error)

	// Delete removes a file at the given key.
	// Returns nil if the file does not exist (idempotent).
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the backend.
	Close() error
}

// Error types for backend operations
type Error struct {
	Op  string // Operation that failed
	Key string // Key involved
	Err error  // Underlying error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return e.Op + " " + e.Key + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Sentinel errors
var (
	ErrNotFound   = &Error{Op: "storage", Err: errNotFound{}}
	ErrInvalidKey = &Error{Op: "storage", Err: errInvalidKey{}}
)

type errNotFound struct{}

func (errNotFound) Error() string { return "file not found" }

type errInvalidKey struct{}

func (errInvalidKey) Error() string { return "invalid key" }

// IsNotFound returns true if the error indicates a file was not found.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := err.(errNotFound); ok {
		return true
	}
	if e, ok := err.(*Error); ok {
		_, ok := e.Err.(errNotFound)
		return ok
	}
	return false
}

// IsInvalidKey returns true if the error indicates an invalid key.
func IsInvalidKey(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		_, ok := e.Err.(errInvalidKey)
		return ok
	}
	return false
}
