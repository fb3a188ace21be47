package sessionerrors

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Kind int

const (
	// no endpoint could be reached or the session is not connected
	Unavailable Kind = iota + 1
	// point lookup found nothing. not an error condition for callers
	NotFound
	// caller asked for something the local state does not allow
	Precondition
	// lock deadline elapsed. the lock may or may not have been granted
	Timeout
	// keepalive or watch stream failed
	StreamTerminated
	// operation is intentionally not provided
	Unimplemented
	// any other failure returned by the remote service
	Remote
	// session can not be built with the given configuration
	Configuration
)

func (k Kind) String() string {
	switch k {
	case Unavailable:
		return "unavailable"
	case NotFound:
		return "not found"
	case Precondition:
		return "precondition failed"
	case Timeout:
		return "timed out, outcome unknown"
	case StreamTerminated:
		return "stream terminated"
	case Unimplemented:
		return "not implemented"
	case Remote:
		return "remote error"
	case Configuration:
		return "configuration error"
	}
	return "unknown"
}

func (k Kind) code() codes.Code {
	switch k {
	case Unavailable:
		return codes.Unavailable
	case NotFound:
		return codes.NotFound
	case Precondition:
		return codes.FailedPrecondition
	case Timeout:
		return codes.DeadlineExceeded
	case StreamTerminated:
		return codes.Aborted
	case Unimplemented:
		return codes.Unimplemented
	case Configuration:
		return codes.InvalidArgument
	}
	return codes.Unknown
}

// Error is returned by every session operation that fails. Op names
// the operation (Connect, Get, Lock..), Err carries the cause if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// GRPCStatus allows status.FromError/status.Code to see through
// session errors. Remote errors keep the code of their cause.
func (e *Error) GRPCStatus() *status.Status {
	if e.Kind == Remote {
		if s, ok := status.FromError(e.Err); ok {
			return s
		}
	}
	return status.New(e.Kind.code(), e.Error())
}

func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, op string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// FromRPC classifies an error returned by a unary call.
func FromRPC(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return New(Timeout, op, err)
	}
	switch status.Code(err) {
	case codes.Unavailable:
		return New(Unavailable, op, err)
	case codes.DeadlineExceeded:
		return New(Timeout, op, err)
	case codes.Unimplemented:
		return New(Unimplemented, op, err)
	}
	return New(Remote, op, err)
}

func KindOf(e error) Kind {
	var se *Error
	if errors.As(e, &se) {
		return se.Kind
	}
	return 0
}

func IsUnavailableError(e error) bool {
	return e != nil && KindOf(e) == Unavailable
}

func IsNotFoundError(e error) bool {
	return e != nil && KindOf(e) == NotFound
}

func IsPreconditionError(e error) bool {
	return e != nil && KindOf(e) == Precondition
}

func IsTimeoutError(e error) bool {
	return e != nil && KindOf(e) == Timeout
}

func IsStreamTerminatedError(e error) bool {
	return e != nil && KindOf(e) == StreamTerminated
}

func IsUnimplementedError(e error) bool {
	return e != nil && KindOf(e) == Unimplemented
}

func IsConfigurationError(e error) bool {
	return e != nil && KindOf(e) == Configuration
}
