//go:build linux

package strategy

import "golang.org/x/sys/unix"

// adviseRandom disables readahead on a mapping
func adviseRandom(b []byte) error {
	return unix.Madvise(b, unix.MADV_RANDOM)
}
