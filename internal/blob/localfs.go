// Package blob stores generated image bytes on the local filesystem.
package blob

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidKey is returned for keys that are empty, absolute or escape the root.
var ErrInvalidKey = errors.New("invalid blob key")

// LocalFS keeps blobs as files below Root.
type LocalFS struct {
	Root string
}

// Put writes r to key atomically and returns the number of bytes stored.
func (l LocalFS) Put(key string, r io.Reader) (int64, error) {
	abs, err := l.resolve(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return 0, fmt.Errorf("create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(abs), ".blob-*")
	if err != nil {
		return 0, fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	n, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("write blob %s: %w", key, errors.Join(copyErr, closeErr))
	}
	if err := os.Rename(tmpName, abs); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("commit blob %s: %w", key, err)
	}
	return n, nil
}

// Open returns a reader for key.
func (l LocalFS) Open(key string) (*os.File, error) {
	abs, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	return os.Open(abs)
}

// Exists reports whether key has been written.
func (l LocalFS) Exists(key string) bool {
	abs, err := l.resolve(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// Path returns the absolute file path for key.
func (l LocalFS) Path(key string) (string, error) {
	return l.resolve(key)
}

func (l LocalFS) resolve(key string) (string, error) {
	if strings.TrimSpace(key) == "" || filepath.IsAbs(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(l.Root, clean), nil
}
