// Package status implements the RPC status taxonomy shared by every
// component of rpcflow: contexts, slots, the router, and the client stub
// all pass status values verbatim rather than inventing their own codes.
package status

import "fmt"

// Code is one of the codes in the ubiquitous RPC status taxonomy.
type Code int32

const (
	OK Code = iota
	Cancelled
	Unknown
	InvalidArgument
	DeadlineExceeded
	NotFound
	AlreadyExists
	PermissionDenied
	Unauthenticated
	ResourceExhausted
	FailedPrecondition
	Aborted
	OutOfRange
	Unimplemented
	Internal
	Unavailable
	DataLoss
)

var names = [...]string{
	"OK", "CANCELLED", "UNKNOWN", "INVALID_ARGUMENT", "DEADLINE_EXCEEDED",
	"NOT_FOUND", "ALREADY_EXISTS", "PERMISSION_DENIED", "UNAUTHENTICATED",
	"RESOURCE_EXHAUSTED", "FAILED_PRECONDITION", "ABORTED", "OUT_OF_RANGE",
	"UNIMPLEMENTED", "INTERNAL", "UNAVAILABLE", "DATA_LOSS",
}

func (c Code) String() string {
	if c < 0 || int(c) >= len(names) {
		return fmt.Sprintf("CODE(%d)", int(c))
	}
	return names[c]
}

// Status is a (code, message) pair. The zero value is OK with no message.
type Status struct {
	Code    Code
	Message string
}

// New builds a Status. Setting code to OK always clears the message,
// matching the RpcContext's finish-once invariant.
func New(code Code, msg string) Status {
	if code == OK {
		return Status{Code: OK}
	}
	return Status{Code: code, Message: msg}
}

func (s Status) OK() bool { return s.Code == OK }

// Err returns nil for OK, otherwise an *Error wrapping s.
func (s Status) Err() error {
	if s.OK() {
		return nil
	}
	return &Error{s}
}

func (s Status) String() string {
	if s.Message == "" {
		return s.Code.String()
	}
	return fmt.Sprintf("%s: %s", s.Code, s.Message)
}

// Error adapts a Status to the standard error interface.
type Error struct {
	Status
}

func (e *Error) Error() string { return e.Status.String() }

// FromError recovers the Status embedded in err, or Unknown if err is not
// one of ours.
func FromError(err error) Status {
	if err == nil {
		return Status{Code: OK}
	}
	if se, ok := err.(*Error); ok {
		return se.Status
	}
	return Status{Code: Unknown, Message: err.Error()}
}

// Errorf is shorthand for New(code, fmt.Sprintf(format, args...)).Err().
func Errorf(code Code, format string, args ...any) error {
	return New(code, fmt.Sprintf(format, args...)).Err()
}
