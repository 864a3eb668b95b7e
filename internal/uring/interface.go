// Package uring provides the submission/completion queue pair used by scan
// workers, with a kernel io_uring implementation and a pread-backed
// emulation.
package uring

import (
	"strings"

	"github.com/ehrlich-b/go-blockbench/internal/errs"
	"github.com/ehrlich-b/go-blockbench/internal/logging"
)

// Ring is one submission/completion queue pair bound to one file descriptor.
// A Ring is owned by a single goroutine and is not safe for concurrent use.
type Ring interface {
	// PrepareRead queues a read of len(buf) bytes at offset, tagged with tag.
	// buf must stay valid and untouched until the tagged completion is drained.
	PrepareRead(buf []byte, offset uint64, tag uint64) error

	// SubmitAndWait flushes prepared reads and blocks until at least
	// minComplete completions are available.
	SubmitAndWait(minComplete uint32) (uint, error)

	// Drain hands every available completion to fn without blocking and
	// returns how many were consumed. It stops at the first error from fn.
	Drain(fn func(Completion) error) (int, error)

	// Close tears down the ring. It does not close the bound fd.
	Close() error
}

// Completion is one finished read
type Completion struct {
	Tag uint64 // Tag passed to PrepareRead
	Res int32  // Bytes read, or negative errno
}

// Config contains configuration for creating a ring
type Config struct {
	Entries uint32 // Submission queue depth
	FD      int    // File descriptor reads are issued against
	Flags   uint32 // io_uring_setup flags
}

// Engine selects the Ring implementation
type Engine string

const (
	EngineKernel   Engine = "kernel"   // io_uring via giouring
	EngineEmulated Engine = "emulated" // positional reads, no kernel ring
)

// ParseEngine resolves an engine name
func ParseEngine(name string) (Engine, error) {
	switch Engine(strings.ToLower(strings.TrimSpace(name))) {
	case EngineKernel, "":
		return EngineKernel, nil
	case EngineEmulated:
		return EngineEmulated, nil
	default:
		return "", errs.Newf("parse_engine", errs.CodeConfiguration, "unknown ring engine %q", name)
	}
}

// NewRing creates a Ring for the chosen engine
func NewRing(engine Engine, config Config) (Ring, error) {
	logger := logging.Default()
	logger.Debug("creating ring", "engine", string(engine), "entries", config.Entries, "fd", config.FD)

	var (
		ring Ring
		err  error
	)
	switch engine {
	case EngineEmulated:
		ring, err = NewEmulatedRing(config, EmulatedOptions{})
	case EngineKernel, "":
		ring, err = NewKernelRing(config)
	default:
		err = errs.Newf("new_ring", errs.CodeConfiguration, "unknown ring engine %q", engine)
	}
	if err != nil {
		logger.Error("failed to create ring", "engine", string(engine), "error", err)
		return nil, err
	}
	return ring, nil
}
