package kernel

import (
	"fmt"
	"syscall"

	"github.com/maksimkurb/pbrsync/src/internal/errors"
	"github.com/maksimkurb/pbrsync/src/internal/fibrule"
	"github.com/maksimkurb/pbrsync/src/internal/rule"
)

// KernelError is a negative acknowledgment from the kernel.
type KernelError struct {
	Op    fibrule.Op
	Rule  rule.Rule
	Errno syscall.Errno
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("[%s] %s [%s]: %v", errors.ErrCodeKernel, e.Op, e.Rule, e.Errno)
}

// Unwrap exposes the errno, so errors.Is(err, syscall.EEXIST) works.
func (e *KernelError) Unwrap() error {
	return e.Errno
}

// Is matches the KERNEL_ERROR category target.
func (e *KernelError) Is(target error) bool {
	t, ok := target.(*errors.Error)
	return ok && t.Code == errors.ErrCodeKernel && t.Message == ""
}
