// Package appdata resolves the per-user application data directory and
// provides atomic file persistence for the certificate authority and
// settings material that live under it.
package appdata

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/mvacoimbra/where-is-teemo/internal/domain"
)

const dirName = "where-is-teemo"

var errPersistence = domain.ErrPersistence

// Dir returns the per-user application data directory, creating it (mode
// 0700) if it does not already exist.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("%w: resolve user config dir: %v", errPersistence, err)
	}
	dir := filepath.Join(base, dirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("%w: create app data dir: %v", errPersistence, err)
	}
	return dir, nil
}

// WriteFile atomically writes data to the given path (temp file + rename)
// with owner-only permissions.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("%w: create parent dir for %s: %v", errPersistence, path, err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: write %s: %v", errPersistence, path, err)
	}
	return os.Chmod(path, 0o600)
}

// ReadFile reads the file at path, returning (nil, false, nil) if it does
// not exist.
func ReadFile(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: read %s: %v", errPersistence, path, err)
	}
	return data, true, nil
}
