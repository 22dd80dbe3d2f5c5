//go:build !linux

package keepalive

import (
	"os"
	"path/filepath"
)

// Address returns the filesystem socket path for name.
func Address(name string) string {
	return filepath.Join(os.TempDir(), name+".sock")
}

// cleanupAddress removes the socket file left behind by a closed listener.
func cleanupAddress(address string) {
	_ = os.Remove(address)
}
