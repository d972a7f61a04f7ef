// Package errs classifies the errors produced while converting flow records
// into symbols, so the command layer can pick an exit code and the drivers can
// decide between aborting and skipping a record.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for handling purposes.
type Kind int

const (
	// KindUnknown is any error that was not classified.
	KindUnknown Kind = iota
	// KindConfig covers malformed schema directives, invalid flags and window geometry.
	KindConfig
	// KindEncoding covers records that cannot be turned into a symbol.
	KindEncoding
	// KindIO covers unreadable inputs and unwritable outputs.
	KindIO
	// KindStreamTransient is end-of-file while following a growing file.
	// It is handled where it occurs and never reaches a caller.
	KindStreamTransient
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindEncoding:
		return "encoding"
	case KindIO:
		return "io"
	case KindStreamTransient:
		return "stream-transient"
	default:
		return "unknown"
	}
}

// Sentinel errors for conditions callers match with errors.Is.
var (
	ErrUnknownCategoricalValue = errors.New("unknown categorical value")
	ErrMalformedNumericField   = errors.New("malformed numeric field")
	ErrEmptyRecord             = errors.New("empty record")
	ErrMissingColumn           = errors.New("missing column")
	ErrMissingRequiredColumn   = errors.New("missing required column")
	ErrInvalidWindow           = errors.New("invalid window geometry")
	ErrInvalidDirective        = errors.New("invalid schema directive")
)

// Error wraps an error with its classification and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New classifies err under kind. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Config wraps a formatted message as a configuration error.
func Config(op, format string, args ...any) error {
	return &Error{Kind: KindConfig, Op: op, Err: fmt.Errorf(format, args...)}
}

// Encoding wraps sentinel with detail as an encoding error.
func Encoding(op string, sentinel error, format string, args ...any) error {
	return &Error{Kind: KindEncoding, Op: op, Err: fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))}
}

// IO wraps err as an I/O error.
func IO(op string, err error) error {
	return New(KindIO, op, err)
}

// KindOf returns the classification of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindConfig:
		return 2
	case KindIO:
		return 3
	case KindEncoding:
		return 4
	default:
		return 1
	}
}
