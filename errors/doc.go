// Package errors provides standardized error handling for the boundary.
//
// # Overview
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid
// (bad input, non-retryable) and Fatal (unrecoverable, stop processing).
// The boundary uses the classes to decide what a fault inside its event loop
// means:
//
//   - Invalid: a routing failure. The peer gets an exited-boundary reply and
//     the loop continues.
//   - Transient: a reply or heartbeat could not be published. Logged and
//     counted, the loop continues.
//   - Fatal: the loop invariants can no longer be trusted. The process exits.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the format:
//
//	"component.method: action failed: %w"
//
//	errors.WrapTransient(err, "Boundary", "handleReply", "publish reply")
//	errors.WrapInvalid(err, "Codec", "Decode", "unmarshal envelope")
//	errors.WrapFatal(err, "Boundary", "spin", "drain notifications")
//
// Wrap preserves whatever classification the wrapped error already has.
//
// # Standard Error Variables
//
//   - Lifecycle: ErrAlreadyStarted, ErrAlreadyStopped
//   - Routing: ErrBoundaryExited, ErrUnroutable, ErrNoAnalysis, ErrUnknownAnalysis, ErrWrongSocket
//   - Transport and data: ErrNoConnection, ErrCircuitOpen, ErrInvalidData, ErrParsingFailed, ErrInvalidConfig
//
// Each sentinel has a fixed class. Errors from other packages that carry no
// class are judged by their message, and anything still unknown counts as
// Transient.
//
// All types support errors.Is and errors.As through the wrap chain:
//
//	var ce *errors.ClassifiedError
//	if errors.As(err, &ce) {
//	    slog.Warn("classified", "component", ce.Component, "class", ce.Class)
//	}
//
// Context errors (context.DeadlineExceeded, context.Canceled) classify as
// Transient.
package errors
