package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:    PhaseHandle,
				Kind:     KindInvalidHandle,
				Op:       "socket_connect",
				Resource: "ZMQSocket",
				Handle:   0x10002,
				Detail:   "wrong type",
			},
			contains: []string{"[handle]", "invalid_handle", "socket_connect", "ZMQSocket", "0x10002", "wrong type"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhasePoll,
				Kind:  KindThreadCreation,
			},
			contains: []string{"[poll]", "thread_creation"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase: PhaseTransport,
				Kind:  KindTransport,
				Op:    "bind",
				Cause: errors.New("Address already in use"),
			},
			contains: []string{"[transport]", "transport in bind", "caused by", "Address already in use"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Transport("connect", cause)

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
}

func TestError_Reason(t *testing.T) {
	if got := Transport("bind", errors.New("Invalid argument")).Reason(); got != "Invalid argument" {
		t.Errorf("Reason() = %q, want transport text", got)
	}
	if got := InvalidHandle("ZMQSocket", 1, "stale handle").Reason(); got != "stale handle" {
		t.Errorf("Reason() = %q, want detail", got)
	}
	if got := (&Error{Kind: KindBusy}).Reason(); got != string(KindBusy) {
		t.Errorf("Reason() = %q, want kind", got)
	}
}

func TestError_Is(t *testing.T) {
	err := InvalidHandle("ZMQMessage", 0x20001, "stale handle")

	if !err.Is(&Error{Phase: PhaseHandle, Kind: KindInvalidHandle}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseHost, Kind: KindInvalidHandle}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseHandle, Kind: KindDoubleDestroy}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, ErrInvalidHandle) {
		t.Error("errors.Is should match the phase-less sentinel")
	}
	if errors.Is(err, ErrTransport) {
		t.Error("errors.Is should not match another sentinel")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseHost, KindOutOfBounds).
		Op("message_data").
		Handle("ZMQMessage", 7).
		Value(42).
		Cause(cause).
		Detail("requested %d of %d bytes", 42, 10).
		Build()

	if err.Phase != PhaseHost {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseHost)
	}
	if err.Kind != KindOutOfBounds {
		t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfBounds)
	}
	if err.Op != "message_data" {
		t.Errorf("Op = %q", err.Op)
	}
	if err.Resource != "ZMQMessage" || err.Handle != 7 {
		t.Errorf("Handle = %s %d", err.Resource, err.Handle)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v", err.Value)
	}
	if err.Detail != "requested 42 of 10 bytes" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if !errors.Is(err, cause) {
		t.Error("Cause not set")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		err   *Error
		phase Phase
		kind  Kind
	}{
		{DoubleDestroy("ZMQSocket", 1), PhaseHandle, KindDoubleDestroy},
		{ThreadCreation("supervisor shut down"), PhasePoll, KindThreadCreation},
		{Busy(PhasePoll, "socket already polled"), PhasePoll, KindBusy},
		{InvalidInput(PhaseHost, "negative length"), PhaseHost, KindInvalidInput},
		{OutOfBounds(PhaseHandle, 12, 4), PhaseHandle, KindOutOfBounds},
		{Closed(PhaseHandle, "registry"), PhaseHandle, KindClosed},
		{NotInitialized(PhaseLifecycle, "transport"), PhaseLifecycle, KindNotInitialized},
		{Wrap(PhaseLifecycle, KindTransport, errors.New("x"), "term"), PhaseLifecycle, KindTransport},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if tt.err.Phase != tt.phase || tt.err.Kind != tt.kind {
				t.Errorf("got [%s] %s, want [%s] %s", tt.err.Phase, tt.err.Kind, tt.phase, tt.kind)
			}
			if tt.err.Error() == "" {
				t.Error("empty message")
			}
		})
	}
}
