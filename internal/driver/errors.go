package driver

import (
	"errors"
	"fmt"
)

// Diagnostic codes reported alongside failures, e.g. on the MQTT
// diagnostic topic.
const (
	DiagOK             = 0
	DiagConfigError    = 1
	DiagChannelError   = 2
	DiagNotResponding  = 3
	DiagInvalidRequest = 4
	DiagTimeout        = 5
)

// ErrorSeverity defines the severity level of an error
type ErrorSeverity int

const (
	SeverityWarning ErrorSeverity = iota
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// DriverError is the base error type for all driver errors
type DriverError struct {
	Op       string        // Operation that failed
	Err      error         // Underlying error
	Severity ErrorSeverity // Error severity
	Code     int           // Diagnostic code
}

// Error implements the error interface
func (e *DriverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Severity, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Severity, e.Op)
}

// Unwrap returns the underlying error
func (e *DriverError) Unwrap() error {
	return e.Err
}

// NotRespondingError reports that the instrument did not identify itself
// after the bus reset during connection open.
type NotRespondingError struct {
	DriverError
	Status string // Status line received from the device, may be empty
}

// NewNotRespondingError creates a new not-responding error
func NewNotRespondingError(status string) *NotRespondingError {
	return &NotRespondingError{
		DriverError: DriverError{
			Op:       "open connection",
			Severity: SeverityCritical,
			Code:     DiagNotResponding,
		},
		Status: status,
	}
}

// Error implements the error interface
func (e *NotRespondingError) Error() string {
	return fmt.Sprintf("[%s] %s: the Keithley 617 is not responding, make sure it is turned on (status %q)",
		e.Severity, e.Op, e.Status)
}

// IntervalError reports a sample interval outside the set accepted by the
// instrument's data store.
type IntervalError struct {
	DriverError
	Interval Interval
}

// NewIntervalError creates a new interval error
func NewIntervalError(interval Interval) *IntervalError {
	return &IntervalError{
		DriverError: DriverError{
			Op:       "acquire",
			Severity: SeverityError,
			Code:     DiagInvalidRequest,
		},
		Interval: interval,
	}
}

// Error implements the error interface
func (e *IntervalError) Error() string {
	return fmt.Sprintf("[%s] %s: the Keithley 617 allows interval values of 0, 1, 10, 60, 600, and 3600, got %d",
		e.Severity, e.Op, e.Interval)
}

// SampleCountError reports a request for more samples than the instrument
// can buffer.
type SampleCountError struct {
	DriverError
	Samples int
}

// NewSampleCountError creates a new sample count error
func NewSampleCountError(samples int) *SampleCountError {
	return &SampleCountError{
		DriverError: DriverError{
			Op:       "acquire",
			Severity: SeverityError,
			Code:     DiagInvalidRequest,
		},
		Samples: samples,
	}
}

// Error implements the error interface
func (e *SampleCountError) Error() string {
	return fmt.Sprintf("[%s] %s: the Keithley 617 allows a maximum of 100 samples, got %d",
		e.Severity, e.Op, e.Samples)
}

// TimeoutError reports that the poll budget for one expected sample was
// exhausted before the device advanced its buffer index.
type TimeoutError struct {
	DriverError
	Sample int // Sample index that never arrived, 1-based
	Polls  int // Number of polls spent waiting for it
}

// NewTimeoutError creates a new acquisition timeout error
func NewTimeoutError(sample, polls int) *TimeoutError {
	return &TimeoutError{
		DriverError: DriverError{
			Op:       "acquire",
			Severity: SeverityError,
			Code:     DiagTimeout,
		},
		Sample: sample,
		Polls:  polls,
	}
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("[%s] %s: gave up waiting for sample %03d after %d polls",
		e.Severity, e.Op, e.Sample, e.Polls)
}

type diagnosticCoder interface {
	diagnosticCode() int
}

func (e *DriverError) diagnosticCode() int { return e.Code }

// DiagnosticCode extracts the diagnostic code from a driver error. Channel
// level errors and anything else map to DiagChannelError.
func DiagnosticCode(err error) int {
	if err == nil {
		return DiagOK
	}
	var c diagnosticCoder
	if errors.As(err, &c) {
		return c.diagnosticCode()
	}
	return DiagChannelError
}
