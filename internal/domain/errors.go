package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies engine failures
type ErrorKind string

const (
	KindInvalidInput      ErrorKind = "invalid_input"
	KindNetwork           ErrorKind = "network"
	KindExtraction        ErrorKind = "extraction"
	KindValidation        ErrorKind = "validation"
	KindUnavailable       ErrorKind = "unavailable"
	KindStrategyExhausted ErrorKind = "strategy_exhausted"
)

// Sentinels usable with errors.Is; any *Error of the same kind matches.
var (
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrNetwork           = &Error{Kind: KindNetwork}
	ErrExtraction        = &Error{Kind: KindExtraction}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrUnavailable       = &Error{Kind: KindUnavailable}
	ErrStrategyExhausted = &Error{Kind: KindStrategyExhausted}

	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrAttemptAfterSuccess = errors.New("attempt recorded after a successful attempt")
)

// Error is a kinded engine error
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError creates a kinded error for an operation
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf creates a kinded error with a formatted cause
func Errorf(kind ErrorKind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(" error")
	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StrategyExhaustedError is returned when every strategy of a chain run failed
type StrategyExhaustedError struct {
	Attempts []DownloadAttempt
	Cause    error
}

func (e *StrategyExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s=%s", a.Strategy, a.Outcome))
	}
	return fmt.Sprintf("all %d strategies failed [%s]", len(e.Attempts), strings.Join(parts, ", "))
}

func (e *StrategyExhaustedError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, ErrStrategyExhausted) match
func (e *StrategyExhaustedError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == KindStrategyExhausted
}
