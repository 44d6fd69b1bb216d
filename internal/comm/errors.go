package comm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Standard error variables for link and transport conditions
var (
	ErrLinkClosed   = errors.New("comm link closed")
	ErrNotOpen      = errors.New("messenger not open")
	ErrNoSelector   = errors.New("comm selector not running")
	ErrNoResponse   = errors.New("no response expected")
	ErrNotSupported = errors.New("operation not supported by messenger")
)

// ErrorClass classifies errors for retry purposes
type ErrorClass int

const (
	ClassTransport ErrorClass = iota
	ClassParsing
	ClassTimeout
	ClassConfiguration
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransport:
		return "transport"
	case ClassParsing:
		return "parsing"
	case ClassTimeout:
		return "timeout"
	case ClassConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// TransportError is a channel that is unreachable, closed or faulted.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParsingError is a malformed or out-of-range response. Detail carries the
// protocol-specific diagnostic (raw field values).
type ParsingError struct {
	Detail string
	Err    error
}

func (e *ParsingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parsing error: %s: %v", e.Detail, e.Err)
	}
	return "parsing error: " + e.Detail
}

func (e *ParsingError) Unwrap() error { return e.Err }

// TimeoutError is a step that exceeded its allotted wait.
type TimeoutError struct {
	Op      string
	Timeout string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout %s after %s", e.Op, e.Timeout)
}

// ConfigError is an invalid address or missing device binding.
// These fail before any I/O and are never retried.
type ConfigError struct {
	Controller string
	Reason     string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error on %s: %s", e.Controller, e.Reason)
}

// Transport wraps err as a TransportError (nil stays nil).
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	var to *TimeoutError
	if errors.As(err, &to) {
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TimeoutError{Op: op, Timeout: "deadline"}
	}
	return &TransportError{Op: op, Err: err}
}

// Parsing builds a ParsingError from a format string.
func Parsing(format string, args ...any) error {
	return &ParsingError{Detail: fmt.Sprintf(format, args...)}
}

// Classify returns the error class of err.
// Unknown errors are treated as transport faults.
func Classify(err error) ErrorClass {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ClassConfiguration
	}
	var pe *ParsingError
	if errors.As(err, &pe) {
		return ClassParsing
	}
	var to *TimeoutError
	if errors.As(err, &to) || errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	return ClassTransport
}

// IsRetryable reports whether err allows the operation to be requeued.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrLinkClosed) {
		return false
	}
	return Classify(err) != ClassConfiguration
}

// RetryLimit returns the number of retries allowed for err given the
// operation's budget. Parsing errors are capped at parseLimit.
func RetryLimit(err error, budget, parseLimit int) int {
	if !IsRetryable(err) {
		return 0
	}
	if Classify(err) == ClassParsing && parseLimit < budget {
		return parseLimit
	}
	return budget
}
