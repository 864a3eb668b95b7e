//go:build !linux

package fixture

// DropCache is a no-op where posix_fadvise is unavailable
func DropCache(path string) error {
	return nil
}
