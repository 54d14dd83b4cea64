package errors

import (
	"errors"
	"fmt"
)

// Op is the builder form of Operation, accepted by E.
type Op string

// Component is the builder form of a component name, accepted by E.
type Component string

// Code carries an ErrorCode into E.
type Code ErrorCode

// Retryable marks an error built by E as retryable.
type Retryable bool

// E builds a QueueError from its arguments, in the spirit of upspin's
// errors.E. Recognised argument types are Op, Operation, Component, Kind,
// Code, ErrorCode, Retryable, error, string (appended to the message) and
// map[string]interface{} (metadata). Unknown types are ignored.
func E(args ...interface{}) error {
	if len(args) == 0 {
		return nil
	}
	e := &QueueError{}
	var msgs []string
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = Operation(a)
		case Operation:
			e.Op = a
		case Component:
			e.Component = string(a)
		case Kind:
			e.Kind = a
		case Code:
			e.Code = ErrorCode(a)
		case ErrorCode:
			e.Code = a
		case Retryable:
			e.Retryable = bool(a)
		case map[string]interface{}:
			e.Metadata = a
		case error:
			e.Err = a
		case string:
			msgs = append(msgs, a)
		}
	}

	if e.Err == nil && len(msgs) > 0 {
		e.Err = errors.New(msgs[0])
		msgs = msgs[1:]
	}
	for _, m := range msgs {
		e.Err = fmt.Errorf("%w (%s)", e.Err, m)
	}

	// Inherit classification from a wrapped QueueError when not set explicitly
	var inner *QueueError
	if errors.As(e.Err, &inner) {
		if e.Code == "" {
			e.Code = inner.Code
		}
		if e.Kind == "" {
			e.Kind = inner.Kind
		}
		if !e.Retryable {
			e.Retryable = inner.Retryable
		}
	}
	return e
}

// WrapOpComponent provides a convenience helper to wrap errors with consistent Op and Component propagation.
// If err is nil, returns nil.
func WrapOpComponent(err error, op, component string) error {
	if err == nil {
		return nil
	}
	return E(Op(op), Component(component), err)
}

// WrapOpComponentKind provides a convenience helper to wrap errors with Op, Component, and Kind.
// If err is nil, returns nil.
func WrapOpComponentKind(err error, op, component string, kind Kind) error {
	if err == nil {
		return nil
	}
	return E(Op(op), Component(component), kind, err)
}
