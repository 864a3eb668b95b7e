//go:build !linux

package uring

import (
	"syscall"

	"github.com/ehrlich-b/go-blockbench/internal/errs"
)

// NewKernelRing is only available on Linux; use EngineEmulated elsewhere
func NewKernelRing(config Config) (Ring, error) {
	return nil, errs.NewWithErrno("ring_setup", errs.CodeResource, syscall.ENOSYS)
}
