package blockbench

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestStructuredError(t *testing.T) {
	err := NewError("plan_shards", ErrCodeConfiguration, "shard count exceeds block count")

	if err.Op != "plan_shards" {
		t.Errorf("Expected Op=plan_shards, got %s", err.Op)
	}

	if err.Code != ErrCodeConfiguration {
		t.Errorf("Expected Code=ErrCodeConfiguration, got %s", err.Code)
	}

	expected := "blockbench: shard count exceeds block count (op=plan_shards)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestWrapError(t *testing.T) {
	err := WrapError("ring_setup", syscall.ENOMEM)

	if err.Code != ErrCodeResource {
		t.Errorf("Expected Code=ErrCodeResource, got %s", err.Code)
	}

	if err.Errno != syscall.ENOMEM {
		t.Errorf("Expected Errno=ENOMEM, got %v", err.Errno)
	}

	if !errors.Is(err, syscall.ENOMEM) {
		t.Error("Expected wrapped error to satisfy errors.Is for ENOMEM")
	}
}

func TestWrapErrorKeepsLocation(t *testing.T) {
	inner := NewErrorWithErrno("read", ErrCodeIO, syscall.EIO)
	inner.Block = 7
	inner.Offset = 7 * 65536

	wrapped := WrapError("scan", fmt.Errorf("worker 2: %w", inner))
	if wrapped.Op != "scan" {
		t.Errorf("Expected Op=scan, got %s", wrapped.Op)
	}
	if wrapped.Block != 7 || wrapped.Offset != 7*65536 {
		t.Errorf("location lost: block=%d offset=%d", wrapped.Block, wrapped.Offset)
	}
	if !IsErrno(wrapped, syscall.EIO) {
		t.Error("errno lost through wrapping")
	}
}

func TestSentinelErrors(t *testing.T) {
	structuredErr := NewError("read", ErrCodeIO, "short read")

	if !errors.Is(structuredErr, ErrIO) {
		t.Error("Structured error should match sentinel via errors.Is")
	}
	if errors.Is(structuredErr, ErrInternal) {
		t.Error("Structured error should not match a different sentinel")
	}

	if ErrInvalidConfiguration.Error() != "blockbench: invalid configuration" {
		t.Errorf("Unexpected sentinel message %q", ErrInvalidConfiguration.Error())
	}

	if !errors.Is(WrapError("open", syscall.EACCES), ErrResourceUnavailable) {
		t.Error("Wrapped EACCES should match ErrResourceUnavailable")
	}
}

func TestIsCode(t *testing.T) {
	err := NewError("wait", ErrCodeInternal, "wait for more completions than in flight")

	if !IsCode(err, ErrCodeInternal) {
		t.Error("IsCode should return true for matching code")
	}

	if IsCode(err, ErrCodeIO) {
		t.Error("IsCode should return false for non-matching code")
	}

	if IsCode(nil, ErrCodeInternal) {
		t.Error("IsCode should return false for nil error")
	}

	if IsCode(errors.New("plain"), ErrCodeInternal) {
		t.Error("IsCode should return false for unstructured error")
	}
}

func TestErrorMessageParts(t *testing.T) {
	err := &Error{
		Op:     "read",
		Code:   ErrCodeIO,
		Worker: 3,
		Block:  12,
		Offset: 786432,
		Errno:  syscall.EIO,
		Msg:    "read failed",
	}

	expected := "blockbench: read failed (op=read, worker=3, block=12, offset=786432, errno=5)"
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}
}
