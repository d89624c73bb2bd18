package normalizer

import (
	"errors"
	"fmt"
)

// ErrKind classifies per-event normalization failures.
type ErrKind string

const (
	// ErrKindUnknownEventType: the event belongs to an indexed module but its
	// name is not registered.
	ErrKindUnknownEventType ErrKind = "unknown_event_type"
	// ErrKindMalformedPayload: a required field is absent or has the wrong shape.
	ErrKindMalformedPayload ErrKind = "malformed_payload"
)

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Error is returned by Registry.Normalize for events that cannot be turned
// into a canonical event. It only ever affects the one event.
type Error struct {
	Kind  ErrKind
	Type  string
	Field string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("%s %s: field %q: %v", e.Kind, e.Type, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s %s: field %q", e.Kind, e.Type, e.Field)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Type, e.Err)
	default:
		return fmt.Sprintf("%s %s", e.Kind, e.Type)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets callers match on the kind sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnknownEventType:
		return e.Kind == ErrKindUnknownEventType
	case ErrMalformedPayload:
		return e.Kind == ErrKindMalformedPayload
	}
	return false
}

func unknownType(tag string) *Error {
	return &Error{Kind: ErrKindUnknownEventType, Type: tag}
}

func malformed(tag, field string, err error) *Error {
	return &Error{Kind: ErrKindMalformedPayload, Type: tag, Field: field, Err: err}
}

var (
	errMissing        = errors.New("missing")
	errUnparseableTag = errors.New("unparseable type tag")
	errNegative       = errors.New("negative amount")
	errOutOfRange     = errors.New("out of range")
)
