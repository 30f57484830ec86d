// Package storage holds the low-level helpers for the local bbolt database:
// directory preparation and the canonical open/close settings. Partial writes
// are unacceptable here, so the database directory is created restrictively
// and bbolt is opened with a bounded lock timeout to fail fast when another
// process holds the file.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// openTimeout bounds the wait for the bbolt file lock. A second process
// pointing at the same DATABASE_PATH should error out quickly instead of
// hanging at startup.
const openTimeout = 5 * time.Second

// defaultFileMode restricts the database file to the owning process.
const defaultFileMode = 0o600

// EnsureDir guarantees the directory for the given file path exists.
// Paths without a directory component ("." or empty) are a no-op.
// Directories are created with 0o700; errors are wrapped with the path.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	return nil
}

// OpenBolt prepares the directory and opens the bbolt database at path with
// the service-wide settings. The caller owns the returned handle and must
// Close it on shutdown.
func OpenBolt(path string) (*bbolt.DB, error) {
	clean := filepath.Clean(path)
	if err := EnsureDir(clean); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(clean, defaultFileMode, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt db %s: %w", clean, err)
	}
	return db, nil
}
