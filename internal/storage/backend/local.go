package backend

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalBackend implements Backend using the local filesystem.
type LocalBackend struct {
	basePath string
}

// NewLocal creates a new local filesystem backend.
// basePath is the root directory for storing files.
// The directory will be created if it doesn't exist.
func NewLocal(basePath string) (*LocalBackend, error) {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, &Error{Op: "NewLocal", Err: fmt.Errorf("invalid path: %w", err)}
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, &Error{Op: "NewLocal", Err: fmt.Errorf("create directory: %w", err)}
	}

	return &LocalBackend{basePath: absPath}, nil
}

// validateKey checks if a key is safe to use.
// Prevents path traversal attacks and invalid paths.
func (b *LocalBackend) validateKey(key string) error {
	if key == "" {
		return &Error{Op: "validateKey", Key: key, Err: errInvalidKey{}}
	}

	if strings.ContainsRune(key, 0) {
		return &Error{Op: "validateKey", Key: key, Err: errInvalidKey{}}
	}

	if strings.Contains(key, "..") {
		return &Error{Op: "validateKey", Key: key, Err: errInvalidKey{}}
	}

	if filepath.IsAbs(key) {
		return &Error{Op: "validateKey", Key: key, Err: errInvalidKey{}}
	}

	cleaned := filepath.Clean(key)
	if strings.HasPrefix(cleaned, "..") {
		return &Error{Op: "validateKey", Key: key, Err: errInvalidKey{}}
	}

	return nil
}

// fullPath returns the full filesystem path for a key.
func (b *LocalBackend) fullPath(key string) string {
	return filepath.Join(b.basePath, filepath.FromSlash(key))
}

// Exists checks if a file exists at the given key.
func (b *LocalBackend) Exists(ctx context.Context, key string) (bool, error) {
	if err := b.validateKey(key); err != nil {
		return false, err
	}

	_, err := os.Stat(b.fullPath(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &Error{Op: "Exists", Key: key, Err: err}
}

// Reader returns a reader for the file content.
func (b *LocalBackend) Reader(ctx context.Context, key string) (io.ReadCloser, *FileInfo, error) {
	if err := b.validateKey(key); err != nil {
		return nil, nil, err
	}

	path := b.fullPath(key)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, &Error{Op: "Reader", Key: key, Err: errNotFound{}}
		}
		return nil, nil, &Error{Op: "Reader", Key: key, Err: err}
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, &Error{Op: "Reader", Key: key, Err: err}
	}

	if stat.IsDir() {
		f.Close()
		return nil, nil, &Error{Op: "Reader", Key: key, Err: errNotFound{}}
	}

	info := &FileInfo{
		Key:     key,
		Size:    stat.Size(),
		ModTime: stat.ModTime(),
	}

	return f, info, nil
}

// Write stores content at the given key.
func (b *LocalBackend) Write(ctx context.Context, key string, content io.Reader, size int64, contentType string) (*FileInfo, error) {
	if err := b.validateKey(key); err != nil {
		return nil, err
	}

	path := b.fullPath(key)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &Error{Op: "Write", Key: key, Err: fmt.Errorf("create directory: %w", err)}
	}

	// Write to temp file first, then rename for atomicity
	tmpFile, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return nil, &Error{Op: "Write", Key: key, Err: fmt.Errorf("create temp file: %w", err)}
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	// Write content and calculate ETag simultaneously
	h := md5.New()
	writer := io.MultiWriter(tmpFile, h)

	var written int64
	if size >= 0 {
		written, err = io.CopyN(writer, content, size)
	} else {
		written, err = io.Copy(writer, content)
	}
	if err != nil {
		return nil, &Error{Op: "Write", Key: key, Err: fmt.Errorf("write content: %w", err)}
	}

	if err := tmpFile.Close(); err != nil {
		return nil, &Error{Op: "Write", Key: key, Err: fmt.Errorf("close temp file: %w", err)}
	}
	tmpFile = nil // Prevent cleanup in defer

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return nil, &Error{Op: "Write", Key: key, Err: fmt.Errorf("rename to final: %w", err)}
	}

	etag := hex.EncodeToString(h.Sum(nil))

	return &FileInfo{
		Key:         key,
		Size:        written,
		ContentType: contentType,
		ETag:        etag,
		ModTime:     time.Now(),
	}, nil
}

// Delete removes a file at the given key.
func (b *LocalBackend) Delete(ctx context.Context, key string) error {
	if err := b.validateKey(key); err != nil {
		return err
	}

	path := b.fullPath(key)
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return &Error{Op: "Delete", Key: key, Err: err}
	}

	b.cleanEmptyDirs(filepath.Dir(path))

	return nil
}

// cleanEmptyDirs removes empty directories up to basePath.
func (b *LocalBackend) cleanEmptyDirs(dir string) {
	for dir != b.basePath && strings.HasPrefix(dir, b.basePath) {
		err := os.Remove(dir)
		if err != nil {
			break // Directory not empty or other error
		}
		dir = filepath.Dir(dir)
	}
}

// Close releases resources.
func (b *LocalBackend) Close() error {
	return nil // Local backend has no resources to release
}

// BasePath returns the base path of the local backend.
func (b *LocalBackend) BasePath() string {
	return b.basePath
}
