package errs

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestWithWorkerCopies(t *testing.T) {
	base := NewIO("read", 4, 4*65536, syscall.EIO, "")
	attributed := base.WithWorker(2)

	if base.Worker != -1 {
		t.Errorf("original mutated: worker=%d", base.Worker)
	}
	if attributed.Worker != 2 {
		t.Errorf("worker=%d, want 2", attributed.Worker)
	}
	if attributed.Msg != syscall.EIO.Error() {
		t.Errorf("msg=%q, want errno text", attributed.Msg)
	}
}

func TestWrapCanceled(t *testing.T) {
	err := WrapError("scan", fmt.Errorf("wait: %w", context.Canceled))
	if err.Code != CodeCanceled {
		t.Errorf("code=%s, want %s", err.Code, CodeCanceled)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("context.Canceled lost through wrapping")
	}
}

func TestMapErrnoToCode(t *testing.T) {
	tests := []struct {
		errno syscall.Errno
		want  Code
	}{
		{syscall.EINVAL, CodeConfiguration},
		{syscall.ENOMEM, CodeResource},
		{syscall.ENOSYS, CodeResource},
		{syscall.EPERM, CodeResource},
		{syscall.EIO, CodeIO},
		{syscall.EINTR, CodeCanceled},
	}
	for _, tt := range tests {
		if got := mapErrnoToCode(tt.errno); got != tt.want {
			t.Errorf("mapErrnoToCode(%v) = %s, want %s", tt.errno, got, tt.want)
		}
	}
}

func TestWrapNil(t *testing.T) {
	if WrapError("op", nil) != nil {
		t.Error("WrapError(nil) should be nil")
	}
}
