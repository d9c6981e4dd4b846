package store

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/facewatch/facewatch/pkg/logging"
)

// KeySize is the size of the symmetric encryption key.
const KeySize = 32

// ErrKeyUnavailable is returned when the key file exists but cannot be
// read or has the wrong size. This is fatal at startup.
var ErrKeyUnavailable = errors.New("encryption key unavailable")

// LoadOrCreateKey loads the symmetric key from the given file, generating
// and persisting a fresh one on first run. The key lives outside the
// database and is never rotated here.
func LoadOrCreateKey(path string) ([KeySize]byte, error) {
	var key [KeySize]byte

	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != KeySize {
			return key, fmt.Errorf("%w: %s holds %d bytes, want %d", ErrKeyUnavailable, path, len(data), KeySize)
		}
		copy(key[:], data)
		return key, nil
	}
	if !os.IsNotExist(err) {
		return key, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	// First run: generate and persist.
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return key, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return key, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, key[:], 0600); err != nil {
		return key, fmt.Errorf("failed to write encryption key: %w", err)
	}

	logging.Component("store").Infof("generated new encryption key at %s", path)
	return key, nil
}
