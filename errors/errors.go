package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass is the handling bucket an error falls into
type ErrorClass int

const (
	// ErrorTransient may succeed if tried again
	ErrorTransient ErrorClass = iota
	// ErrorInvalid is caused by the caller's input or configuration
	ErrorInvalid
	// ErrorFatal cannot be recovered from
	ErrorFatal
)

func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Lifecycle
var (
	ErrAlreadyStarted = errors.New("boundary already started")
	ErrAlreadyStopped = errors.New("boundary already stopped")
)

// Routing and analysis. A peer never sees these: a request that fails to
// route is answered with ErrBoundaryExited.
var (
	ErrBoundaryExited  = errors.New("boundary exited")
	ErrUnroutable      = errors.New("no consumer registered for request")
	ErrNoAnalysis      = errors.New("no analysis registered")
	ErrUnknownAnalysis = errors.New("unknown analysis id")
	ErrWrongSocket     = errors.New("analysis request arrived on the wrong socket")
)

// Transport and data
var (
	ErrNoConnection  = errors.New("no connection available")
	ErrCircuitOpen   = errors.New("circuit breaker open")
	ErrInvalidData   = errors.New("invalid data format")
	ErrParsingFailed = errors.New("parsing failed")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// sentinelClasses fixes the class of the sentinels and context errors
var sentinelClasses = []struct {
	err   error
	class ErrorClass
}{
	{ErrNoConnection, ErrorTransient},
	{ErrCircuitOpen, ErrorTransient},
	{context.DeadlineExceeded, ErrorTransient},
	{context.Canceled, ErrorTransient},
	{ErrInvalidConfig, ErrorFatal},
	{ErrInvalidData, ErrorInvalid},
	{ErrParsingFailed, ErrorInvalid},
	{ErrUnroutable, ErrorInvalid},
	{ErrWrongSocket, ErrorInvalid},
	{ErrNoAnalysis, ErrorInvalid},
	{ErrUnknownAnalysis, ErrorInvalid},
}

// Foreign errors, such as those from the NATS client, are classified by
// their message.
var (
	transientWords = []string{"timeout", "connection", "network", "temporary", "unavailable", "busy"}
	fatalWords     = []string{"fatal", "panic", "corrupted"}
)

// ClassifiedError carries an error's class and where it happened
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// classOf resolves err's class, reporting false when nothing about err
// decides it.
func classOf(err error) (ErrorClass, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	for _, s := range sentinelClasses {
		if errors.Is(err, s.err) {
			return s.class, true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, w := range fatalWords {
		if strings.Contains(msg, w) {
			return ErrorFatal, true
		}
	}
	for _, w := range transientWords {
		if strings.Contains(msg, w) {
			return ErrorTransient, true
		}
	}
	return ErrorTransient, false
}

// Classify returns err's class. Errors nothing is known about count as
// transient so they are retried rather than dropped.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}
	class, _ := classOf(err)
	return class
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	class, known := classOf(err)
	return known && class == ErrorTransient
}

// IsFatal reports whether err should stop processing
func IsFatal(err error) bool {
	return err != nil && Classify(err) == ErrorFatal
}

// IsInvalid reports whether err was caused by bad input
func IsInvalid(err error) bool {
	return err != nil && Classify(err) == ErrorInvalid
}

// Wrap adds context in the form "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapAs(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// WrapTransient wraps err with context and marks it retryable
func WrapTransient(err error, component, method, action string) error {
	return wrapAs(ErrorTransient, err, component, method, action)
}

// WrapInvalid wraps err with context and marks it as bad input
func WrapInvalid(err error, component, method, action string) error {
	return wrapAs(ErrorInvalid, err, component, method, action)
}

// WrapFatal wraps err with context and marks it unrecoverable
func WrapFatal(err error, component, method, action string) error {
	return wrapAs(ErrorFatal, err, component, method, action)
}
