package ocr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	cause := errors.New("bad header")

	assert.Equal(t, "No file part", MissingInput("No file part").Error())
	assert.Equal(t, "bad header", decodeError(cause).Error())
	assert.Equal(t, "InferenceFailure", (&Error{Kind: KindInference}).Error())
}

func TestKindOf(t *testing.T) {
	cause := errors.New("boom")

	assert.Equal(t, KindMissingInput, KindOf(MissingInput("x")))
	assert.Equal(t, KindDecode, KindOf(fmt.Errorf("wrapped: %w", decodeError(cause))))
	assert.Equal(t, KindInference, KindOf(cause))
	assert.ErrorIs(t, inferenceFailure(cause), cause)
}

func TestInferenceFailureDoesNotDoubleWrap(t *testing.T) {
	inner := inferenceFailure(errors.New("oom"))
	assert.Same(t, inner, inferenceFailure(inner))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "MissingInput", KindMissingInput.String())
	assert.Equal(t, "DecodeError", KindDecode.String())
	assert.Equal(t, "InferenceFailure", KindInference.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
}
