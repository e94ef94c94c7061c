package ocr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindMissingInput Kind = iota + 1
	KindDecode
	KindInference
)

func (k Kind) String() string {
	switch k {
	case KindMissingInput:
		return "MissingInput"
	case KindDecode:
		return "DecodeError"
	case KindInference:
		return "InferenceFailure"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is returned by every pipeline stage. Message is what clients see.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func MissingInput(msg string) *Error {
	return &Error{Kind: KindMissingInput, Message: msg}
}

func decodeError(err error) *Error {
	return &Error{Kind: KindDecode, Err: err}
}

func inferenceFailure(err error) *Error {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindInference {
		return e
	}
	return &Error{Kind: KindInference, Err: err}
}

// KindOf reports the pipeline kind of err. Unknown errors count as inference failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInference
}
