package errors

import (
	goerrors "errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
)

const (
	UnknownCode       = 500
	MetadataSeparator = ", "
	MetadataPrefix    = "metadata={"
	MetadataSuffix    = "}"
	CausePrefix       = "cause="
)

// Status carries the machine readable part of an error.
// Reason is a stable identifier (e.g. SESSION_EXPIRED) that survives message changes.
type Status struct {
	Code     int               `json:"code,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	Message  string            `json:"message,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Error is a structured error with an HTTP-like code, a reason, a message and an optional cause.
type Error struct {
	Status
	cause error
}

// Error returns a human-readable error message including metadata and cause.
func (e *Error) Error() string {
	var msg strings.Builder

	msg.WriteString("code=")
	msg.WriteString(strconv.Itoa(e.Code))
	if e.Reason != "" {
		msg.WriteString(MetadataSeparator)
		msg.WriteString("reason=")
		msg.WriteString(e.Reason)
	}
	msg.WriteString(MetadataSeparator)
	msg.WriteString("message=")
	msg.WriteString(e.Message)

	if len(e.Metadata) > 0 {
		msg.WriteString(MetadataSeparator)
		msg.WriteString(MetadataPrefix)
		first := true
		for k, v := range e.Metadata {
			if !first {
				msg.WriteString(", ")
			}
			msg.WriteString(k)
			msg.WriteByte('=')
			msg.WriteString(v)
			first = false
		}
		msg.WriteString(MetadataSuffix)
	}

	if e.cause != nil {
		msg.WriteString(MetadataSeparator)
		msg.WriteString(CausePrefix)
		msg.WriteString(e.cause.Error())
	}

	return msg.String()
}

// Unwrap returns the cause of the error
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether err is an *Error describing the same failure.
// Errors carrying a reason match on code and reason, others on code and message.
func (e *Error) Is(err error) bool {
	var ge *Error
	if !goerrors.As(err, &ge) {
		return false
	}
	if e.Reason != "" || ge.Reason != "" {
		return e.Code == ge.Code && e.Reason == ge.Reason
	}
	return e.Code == ge.Code && e.Message == ge.Message
}

// WithMetadata adds metadata to the error. Returns a new error instance.
func (e *Error) WithMetadata(m map[string]string) *Error {
	if len(m) == 0 {
		return e
	}

	err := e.clone()
	if err.Metadata == nil {
		err.Metadata = make(map[string]string, len(m))
	}

	maps.Copy(err.Metadata, m)
	return err
}

// WithCause adds a cause to the error. Returns a new error instance.
func (e *Error) WithCause(cause error) *Error {
	if cause == nil {
		return e
	}

	err := e.clone()
	err.cause = cause
	return err
}

// WithReason returns a copy of the error with the given reason.
func (e *Error) WithReason(reason string) *Error {
	err := e.clone()
	err.Reason = reason
	return err
}

// WithMessage returns a copy of the error with a new message, keeping code and reason.
func (e *Error) WithMessage(format string, args ...any) *Error {
	err := e.clone()
	err.Message = sprintf(format, args...)
	return err
}

// clone creates a shallow copy of the error while deep copying the metadata map
func (e *Error) clone() *Error {
	var metadata map[string]string
	if len(e.Metadata) > 0 {
		metadata = make(map[string]string, len(e.Metadata))
		maps.Copy(metadata, e.Metadata)
	}

	return &Error{
		Status: Status{
			Code:     e.Code,
			Reason:   e.Reason,
			Message:  e.Message,
			Metadata: metadata,
		},
		cause: e.cause,
	}
}

// GetCode returns the error code
func (e *Error) GetCode() int {
	return e.Code
}

// GetReason returns the error reason
func (e *Error) GetReason() string {
	return e.Reason
}

// GetMessage returns the error message
func (e *Error) GetMessage() string {
	return e.Message
}

// GetMetadata returns a copy of the metadata
func (e *Error) GetMetadata() map[string]string {
	if len(e.Metadata) == 0 {
		return nil
	}

	result := make(map[string]string, len(e.Metadata))
	maps.Copy(result, e.Metadata)
	return result
}

// GetCause returns the underlying cause of the error
func (e *Error) GetCause() error {
	return e.cause
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// New creates a new error with the given code and formatted message
func New(code int, format string, args ...any) *Error {
	return &Error{
		Status: Status{
			Code:    code,
			Message: sprintf(format, args...),
		},
	}
}

// NewWithReason creates a new error with a code, a reason and a formatted message
func NewWithReason(code int, reason, format string, args ...any) *Error {
	err := New(code, format, args...)
	err.Reason = reason
	return err
}

// FromError converts a generic error to *Error, looking through wrapping.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var ge *Error
	if goerrors.As(err, &ge) {
		return ge
	}

	return New(UnknownCode, "%v", err)
}

// Code returns the code of the first *Error in err's chain, or UnknownCode.
func Code(err error) int {
	if err == nil {
		return 0
	}
	return FromError(err).Code
}

// Reason returns the reason of the first *Error in err's chain.
func Reason(err error) string {
	var ge *Error
	if goerrors.As(err, &ge) {
		return ge.Reason
	}
	return ""
}

// Wrap wraps an error with additional context while preserving the original error chain.
// Returns nil if the input error is nil.
func Wrap(err error, code int, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return New(code, format, args...).WithCause(err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return goerrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return goerrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err.
func Unwrap(err error) error {
	return goerrors.Unwrap(err)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return goerrors.Join(errs...)
}
