package spawn

import (
	"errors"

	"github.com/maxdev1/ghostkernel/elfloader"
	"github.com/maxdev1/ghostkernel/ramdisk"
)

// Status mirrors the original's g_spawn_status enum
// (libapi/inc/ghost/tasks/types.h), returned to the spawner alongside
// the new process/task id on success.
type Status int32

const (
	StatusSuccessful Status = iota
	StatusIOError
	StatusMemoryError
	StatusFormatError
	StatusTaskingError
	StatusDependencyError
)

// ValidationDetail mirrors g_spawn_validation_details: the specific ELF
// header check that failed, surfaced alongside StatusFormatError so a
// caller can tell "not ELF at all" from "ELF but wrong machine" apart
// (spec.md §8: "spawn of a non-ELF file returns FORMAT_ERROR with
// validation-detail ELF32_NOT_ELF").
type ValidationDetail int32

const (
	ValidationSuccessful ValidationDetail = iota
	ValidationNotELF
	ValidationNotExecutable
	ValidationNotI386
	ValidationNot32Bit
	ValidationNotLittleEndian
	ValidationNotStandardELF
	ValidationIOError
)

// LoadError wraps a Load failure with the status/validation-detail pair
// spec.md's SPAWN call struct puts on the wire, instead of surfacing only
// a generic Go error.
type LoadError struct {
	Status     Status
	Validation ValidationDetail
	Err        error
}

func (e *LoadError) Error() string { return e.Err.Error() }
func (e *LoadError) Unwrap() error  { return e.Err }

// classifyLoadError maps an elfloader/reader failure onto the status and
// (for format errors) validation-detail codes the original assigns to
// the same failure, grounded on elf_loader.cpp's validation switch.
func classifyLoadError(err error) (Status, ValidationDetail) {
	switch {
	case errors.Is(err, elfloader.ErrBadMagic):
		return StatusFormatError, ValidationNotELF
	case errors.Is(err, elfloader.ErrNotExecutable):
		return StatusFormatError, ValidationNotExecutable
	case errors.Is(err, elfloader.ErrBadMachine):
		return StatusFormatError, ValidationNotI386
	case errors.Is(err, elfloader.ErrNot32Bit):
		return StatusFormatError, ValidationNot32Bit
	case errors.Is(err, elfloader.ErrNotLSB):
		return StatusFormatError, ValidationNotLittleEndian
	case errors.Is(err, elfloader.ErrBadVersion):
		return StatusFormatError, ValidationNotStandardELF
	case errors.Is(err, ramdisk.ErrNotFound):
		return StatusDependencyError, ValidationSuccessful
	default:
		return StatusIOError, ValidationIOError
	}
}

// wrapLoadError classifies err and wraps it into a *LoadError, leaving
// nil untouched.
func wrapLoadError(err error) error {
	if err == nil {
		return nil
	}
	status, detail := classifyLoadError(err)
	return &LoadError{Status: status, Validation: detail, Err: err}
}
