// internal/model/errors.go
package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for reporting and exit codes
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindConnection
	KindProtocol
	KindConfiguration
	KindIO
)

var kindNames = map[ErrorKind]string{
	KindUnknown:       "error",
	KindValidation:    "validation error",
	KindConnection:    "connection error",
	KindProtocol:      "protocol error",
	KindConfiguration: "configuration error",
	KindIO:            "i/o error",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("error kind %d", int(k))
}

// Validation errors
var (
	ErrInvalidChannel = errors.New("invalid channel")
	ErrOutOfRange     = errors.New("value out of range")
	ErrInvalidValue   = errors.New("invalid value")
	ErrInvalidPreset  = errors.New("invalid preset")
	ErrInvalidPath    = errors.New("invalid path")
)

// Transport and protocol errors
var (
	ErrNotConnected      = errors.New("not connected")
	ErrTimeout           = errors.New("timed out")
	ErrMalformedReply    = errors.New("malformed reply")
	ErrEmptyReply        = errors.New("empty reply")
	ErrTruncatedBlock    = errors.New("truncated binary block")
	ErrUnsupportedDevice = errors.New("unsupported device")
)

// Error carries a failure kind together with the operation that failed
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and operation name
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validationf builds a validation error rooted at one of the sentinel causes
func Validationf(cause error, format string, args ...interface{}) error {
	return &Error{
		Kind: KindValidation,
		Err:  fmt.Errorf("%w: %s", cause, fmt.Sprintf(format, args...)),
	}
}

// KindOf returns the kind of the outermost *Error in err's chain
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
