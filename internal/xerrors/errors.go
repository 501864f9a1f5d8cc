// Package xerrors implements the error taxonomy of the orchestrator:
// Capacity, InvalidArgument, WorkerStalled, StepFailed, SimulationInvariant,
// and Transport. Each carries a stable JSON-RPC numeric code so the
// transport layer can surface it to the render subscriber without a
// second translation table.
package xerrors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the taxonomy's error classes.
type Kind int

const (
	KindCapacity Kind = iota
	KindInvalidArgument
	KindWorkerStalled
	KindStepFailed
	KindSimulationInvariant
	KindTransport
)

// RPCCode is the stable JSON-RPC 2.0 error code for a Kind.
func (k Kind) RPCCode() int {
	switch k {
	case KindCapacity:
		return -32000
	case KindInvalidArgument:
		return -32602 // standard JSON-RPC "invalid params"
	case KindWorkerStalled:
		return -32001
	case KindStepFailed:
		return -32002
	case KindSimulationInvariant:
		return -32003
	case KindTransport:
		return -32004
	default:
		return -32099
	}
}

func (k Kind) String() string {
	switch k {
	case KindCapacity:
		return "Capacity"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindWorkerStalled:
		return "WorkerStalled"
	case KindStepFailed:
		return "StepFailed"
	case KindSimulationInvariant:
		return "SimulationInvariant"
	case KindTransport:
		return "Transport"
	default:
		return "Unknown"
	}
}

// Error is a classified, wrappable error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func new_(kind Kind, msg string, wrapped error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: wrapped}
}

func Capacity(msg string) *Error                    { return new_(KindCapacity, msg, nil) }
func InvalidArgument(msg string) *Error              { return new_(KindInvalidArgument, msg, nil) }
func WorkerStalled(msg string) *Error                { return new_(KindWorkerStalled, msg, nil) }
func StepFailed(msg string, wrapped error) *Error    { return new_(KindStepFailed, msg, wrapped) }
func SimulationInvariant(msg string) *Error          { return new_(KindSimulationInvariant, msg, nil) }
func Transport(msg string, wrapped error) *Error     { return new_(KindTransport, msg, wrapped) }

// Wrap attaches additional context to an existing error without
// reclassifying it.
func Wrap(err error, msg string) error {
	if err == nil {
		return errors.New(msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// As reports whether err (or something it wraps) is an *Error of the
// given kind, returning it for inspection.
func As(err error, kind Kind) (*Error, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return nil, false
	}
	if e.Kind != kind {
		return nil, false
	}
	return e, true
}
