package common

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when no response arrived within the caller's deadline
	ErrTimeout = errors.New("request timed out")
	// ErrDisconnected is delivered to every request still pending when the connection terminates
	ErrDisconnected = errors.New("connection closed")
	// ErrNotConnected is returned when a request is issued before Connect succeeded
	ErrNotConnected = errors.New("not connected")
	// ErrDuplicateRequestID is returned when a request id is registered twice
	ErrDuplicateRequestID = errors.New("request id already pending")
	// ErrKindBusy is returned when a scoped request of the same kind is already outstanding
	ErrKindBusy = errors.New("a request of this kind is already pending")
)

// TransportError is an I/O failure on connect, read or write
type TransportError struct {
	Op  string // dial, handshake, read, write
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%s): %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a malformed handshake, invalid UTF-8, an oversized frame or an
// unparsable mandatory field
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// NewProtocolError creates a ProtocolError with a formatted reason
func NewProtocolError(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// RemoteError is an error reported by the gateway for a request (or, when
// RequestID <= 0, for the whole connection)
type RemoteError struct {
	RequestID int32
	Code      int32
	Message   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.Code, e.Message)
}

// IsConnectionScoped reports whether the error is not tied to a request
func (e *RemoteError) IsConnectionScoped() bool {
	return e.RequestID <= 0
}
