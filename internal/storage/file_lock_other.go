//go:build !unix

package storage

import "os"

// lockFile only creates the lock file; advisory locking needs flock.
func lockFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
}
