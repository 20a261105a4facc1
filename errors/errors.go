package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseHandle    Phase = "handle"    // registry lookups and destruction
	PhaseTransport Phase = "transport" // message-queue operations
	PhasePoll      Phase = "poll"      // poller setup and supervision
	PhaseHost      Phase = "host"      // guest boundary marshaling
	PhaseLifecycle Phase = "lifecycle" // load and unload
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidHandle  Kind = "invalid_handle"
	KindTransport      Kind = "transport"
	KindThreadCreation Kind = "thread_creation"
	KindDoubleDestroy  Kind = "double_destroy"
	KindBusy           Kind = "busy"
	KindInvalidInput   Kind = "invalid_input"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindClosed         Kind = "closed"
	KindExhausted      Kind = "exhausted"
	KindNotInitialized Kind = "not_initialized"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Op       string
	Resource string
	Detail   string
	Handle   uint32
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}

	if e.Resource != "" || e.Handle != 0 {
		b.WriteString(": ")
		if e.Resource != "" {
			b.WriteString(e.Resource)
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "handle %#x", e.Handle)
	}

	if e.Detail != "" {
		if e.Resource != "" || e.Handle != 0 {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Reason returns the diagnostic text: the detail if set, else the cause's message
func (e *Error) Reason() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Kind)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Phase matches any phase of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && e.Phase != t.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// IsKind reports whether err is, or wraps, an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Op sets the failing operation name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Handle sets the offending handle and its resource type name
func (b *Builder) Handle(resource string, h uint32) *Builder {
	b.err.Resource = resource
	b.err.Handle = h
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Sentinels for errors.Is checks that do not care about the phase.
var (
	ErrInvalidHandle  = &Error{Kind: KindInvalidHandle}
	ErrTransport      = &Error{Kind: KindTransport}
	ErrThreadCreation = &Error{Kind: KindThreadCreation}
	ErrDoubleDestroy  = &Error{Kind: KindDoubleDestroy}
	ErrBusy           = &Error{Kind: KindBusy}
	ErrInvalidInput   = &Error{Kind: KindInvalidInput}
	ErrOutOfBounds    = &Error{Kind: KindOutOfBounds}
	ErrClosed         = &Error{Kind: KindClosed}
	ErrExhausted      = &Error{Kind: KindExhausted}
	ErrNotInitialized = &Error{Kind: KindNotInitialized}
)

// Convenience constructors for common error patterns

// InvalidHandle creates an error for an unknown, stale, mistyped or unauthorized handle
func InvalidHandle(resource string, h uint32, reason string) *Error {
	return &Error{
		Phase:    PhaseHandle,
		Kind:     KindInvalidHandle,
		Resource: resource,
		Handle:   h,
		Detail:   reason,
	}
}

// DoubleDestroy creates an error for a handle that was already destroyed
func DoubleDestroy(resource string, h uint32) *Error {
	return &Error{
		Phase:    PhaseHandle,
		Kind:     KindDoubleDestroy,
		Resource: resource,
		Handle:   h,
		Detail:   "handle already destroyed",
	}
}

// Transport wraps a native transport failure, keeping its diagnostic text
func Transport(op string, cause error) *Error {
	return &Error{
		Phase: PhaseTransport,
		Kind:  KindTransport,
		Op:    op,
		Cause: cause,
	}
}

// ThreadCreation creates an error for a poller worker that could not be started
func ThreadCreation(detail string) *Error {
	return &Error{
		Phase:  PhasePoll,
		Kind:   KindThreadCreation,
		Detail: detail,
	}
}

// Busy creates an error for a resource that is already in use
func Busy(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindBusy,
		Detail: what,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("length %d out of bounds (size %d)", index, length),
		Value:  index,
	}
}

// Closed creates an error for an operation on a closed component
func Closed(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s closed", component),
	}
}

// NotInitialized creates a not-initialized error for a missing component
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
