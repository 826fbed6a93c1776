package wifi

import (
	"errors"
	"fmt"

	"github.com/srg/vwifi/internal/dispatch"
)

// State classifies a device error
type State string

const (
	StateBusy              State = "busy"
	StateRetry             State = "retry"
	StateInvalidArgument   State = "invalid_argument"
	StateResourceExhausted State = "resource_exhausted"
	StateTimeout           State = "timeout" // connect results only, never returned by a request
	StateClosed            State = "closed"
	StateNotFound          State = "not_found"
)

// Error is returned synchronously by the request methods of Device.
type Error struct {
	State State
	Op    string // "scan", "connect", "add_interface", ...
	Msg   string
	Err   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	s := string(e.State)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare Error values by State
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors, one per State
var (
	ErrBusy              = &Error{State: StateBusy}
	ErrRetry             = &Error{State: StateRetry}
	ErrInvalidArgument   = &Error{State: StateInvalidArgument}
	ErrResourceExhausted = &Error{State: StateResourceExhausted}
	ErrClosed            = &Error{State: StateClosed}
	ErrNotFound          = &Error{State: StateNotFound}
)

// IsState reports whether err is an Error with the given state
func IsState(err error, state State) bool {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.State == state
	}
	return false
}

func newError(op string, state State, format string, args ...any) *Error {
	return &Error{State: state, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// scheduleError maps a dispatcher failure to the device taxonomy.
func scheduleError(op string, err error) error {
	switch {
	case errors.Is(err, dispatch.ErrClosed):
		return &Error{State: StateClosed, Op: op, Err: err}
	case errors.Is(err, dispatch.ErrBusy):
		return &Error{State: StateBusy, Op: op, Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
