//go:build linux

package keepalive

// Address returns the abstract-namespace socket address for name.
func Address(name string) string {
	return "@" + name
}

// cleanupAddress is a no-op: abstract sockets vanish with their last descriptor.
func cleanupAddress(string) {}
