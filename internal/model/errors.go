package model

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrorKind classifies failures so callers can decide whether a run aborts,
// degrades, or merely counts the event.
type ErrorKind string

const (
	// KindInput covers missing, unreadable, or corrupt input data. Fatal.
	KindInput ErrorKind = "input"
	// KindConfig covers invalid tile sizes, modes, or mismatched rasters. Fatal,
	// raised before processing starts.
	KindConfig ErrorKind = "configuration"
	// KindPartition marks a point outside every tile. Counted, not fatal.
	KindPartition ErrorKind = "partition"
	// KindExternal marks an auxiliary fetch failure. The caller substitutes an
	// empty dataset and logs a warning.
	KindExternal ErrorKind = "external_dependency"
	// KindIO covers sink write or close failures. Fatal after other sinks are
	// closed.
	KindIO ErrorKind = "io"
)

// Error carries an ErrorKind alongside the operation that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError wraps err with a kind and operation name. A nil err yields a bare
// error of that kind.
func NewError(kind ErrorKind, op string, err error) *Error {
	if err == nil {
		err = eris.New(string(kind) + " error")
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf is NewError with a formatted message.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: eris.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" when
// there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether any *Error in err's chain has the given kind.
func IsKind(err error, kind ErrorKind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}
