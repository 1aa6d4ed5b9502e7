// Package errs defines the kinds of failures shared by the vnetns packages.
// Callers test for a kind with errors.Is; the wrapped cause stays reachable
// through errors.Unwrap.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrQueryFailed reports that the process table, the interface list or
	// the namespace list could not be queried at all.
	ErrQueryFailed = errors.New("query failed")
	// ErrParseFailed reports a malformed value that was expected to be well
	// formed, such as an interface address.
	ErrParseFailed = errors.New("parse failed")
	// ErrNoFreeSubnet reports that every /24 block of the parent range is
	// in use.
	ErrNoFreeSubnet = errors.New("no free subnet")
	// ErrDeletionFailed reports that a namespace or lock could not be removed.
	ErrDeletionFailed = errors.New("deletion failed")
	// ErrPrivilegeRequired reports that the program could not be relaunched
	// with elevated privileges.
	ErrPrivilegeRequired = errors.New("privilege required")
)

type kindError struct {
	kind  error
	cause error
	msg   string
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.msg, e.kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.msg, e.kind, e.cause)
}

func (e *kindError) Is(target error) bool { return target == e.kind }

func (e *kindError) Unwrap() error { return e.cause }

// Wrapf returns an error of the given kind carrying cause (which may be nil)
// and a formatted message, annotated with a stack trace.
func Wrapf(kind, cause error, format string, args ...interface{}) error {
	return errors.WithStack(&kindError{
		kind:  kind,
		cause: cause,
		msg:   fmt.Sprintf(format, args...),
	})
}

// Ensuref returns err unchanged when it already is of the given kind, and
// wraps it into that kind otherwise.
func Ensuref(kind, err error, format string, args ...interface{}) error {
	if err == nil || errors.Is(err, kind) {
		return err
	}
	return Wrapf(kind, err, format, args...)
}
