//go:build linux

package fixture

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-blockbench/internal/errs"
)

// DropCache asks the kernel to evict the file's pages so the next scan hits
// the device instead of the page cache. Dirty pages are not evicted.
func DropCache(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.WrapError("fadvise", err)
	}
	defer f.Close()
	if err := unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_DONTNEED); err != nil {
		return errs.WrapError("fadvise", err)
	}
	return nil
}
