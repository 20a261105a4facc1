package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Error is a native transport failure. Reason carries the diagnostic text
// the transport reported, Errno the closest errno value.
type Error struct {
	Err    error
	Op     string
	Reason string
	Errno  unix.Errno
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Reason
	}
	return e.Op + ": " + e.Reason
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	if e.Errno != 0 {
		return e.Errno
	}
	return nil
}

// Errno builds an Error from an errno value, using its system text as reason.
func Errno(op string, errno unix.Errno) *Error {
	return &Error{Op: op, Errno: errno, Reason: errno.Error()}
}

// Errnof builds an Error with an explicit reason.
func Errnof(op string, errno unix.Errno, format string, args ...any) *Error {
	return &Error{Op: op, Errno: errno, Reason: fmt.Sprintf(format, args...)}
}

// Wrap converts a backend error into an *Error, keeping the original text.
func Wrap(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		if te.Op == "" {
			cp := *te
			cp.Op = op
			return &cp
		}
		return te
	}
	return &Error{Op: op, Err: err, Errno: mapErrno(err), Reason: err.Error()}
}

// mapErrno picks the errno closest to a backend error.
func mapErrno(err error) unix.Errno {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return unix.Errno(errno)
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, net.ErrClosed), errors.Is(err, os.ErrClosed):
		return unix.ENOTSOCK
	case errors.Is(err, context.DeadlineExceeded), os.IsTimeout(err):
		return unix.ETIMEDOUT
	case os.IsPermission(err):
		return unix.EACCES
	}

	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		return unix.EINVAL
	}
	return unix.EIO
}

// Common failures shared by backends.
var (
	// ErrAgain is returned by a DontWait receive with nothing queued.
	ErrAgain = Errno("recv", unix.EAGAIN)
	// ErrClosedEndpoint is returned by operations on a closed endpoint.
	ErrClosedEndpoint = Errnof("", unix.ENOTSOCK, "socket closed")
	// ErrTerminated is returned by NewEndpoint after Term.
	ErrTerminated = Errnof("", unix.ESHUTDOWN, "context was terminated")
)

// IsAgain reports whether err means the operation would have blocked.
func IsAgain(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Errno == unix.EAGAIN
	}
	return errors.Is(err, unix.EAGAIN)
}

// IsClosed reports whether err means the endpoint or context is gone.
func IsClosed(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Errno == unix.ENOTSOCK || te.Errno == unix.ESHUTDOWN
	}
	return false
}

// Unsupported reports an operation the endpoint's domain does not allow.
func Unsupported(op string, d Domain) *Error {
	return Errnof(op, unix.ENOTSUP, "operation not supported by %s socket", d)
}

// InvalidOption reports an option the backend does not know or cannot apply.
func InvalidOption(op string, opt Option) *Error {
	return Errnof(op, unix.EINVAL, "invalid option %d", int32(opt))
}
