package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.class.String())
		})
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		fatal     bool
		invalid   bool
	}{
		{"nil", nil, false, false, false},
		{"connection timeout", ErrConnectionTimeout, true, false, false},
		{"deadline", context.DeadlineExceeded, true, false, false},
		{"queue full", ErrQueueFull, true, false, false},
		{"timeout in message", fmt.Errorf("dial tcp: i/o timeout"), true, false, false},
		{"invalid config", ErrInvalidConfig, false, true, false},
		{"startup fault", ErrStartupFault, false, true, false},
		{"decode", ErrDecodeFailed, false, false, true},
		{"parsing", ErrParsingFailed, false, false, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("x")}, false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err))
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
			assert.Equal(t, tt.invalid, IsInvalid(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorFatal, Classify(ErrMissingConfig))
	assert.Equal(t, ErrorInvalid, Classify(ErrDecodeFailed))
	assert.Equal(t, ErrorTransient, Classify(errors.New("something odd")))
}

func TestWrap(t *testing.T) {
	base := errors.New("boom")

	err := Wrap(base, "socket-receiver", "Start", "listen")
	assert.Equal(t, "socket-receiver.Start: listen failed: boom", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Nil(t, Wrap(nil, "a", "b", "c"))
}

func TestWrapClassified(t *testing.T) {
	base := errors.New("boom")

	fatal := WrapFatal(base, "publisher", "Start", "connect")
	var ce *ClassifiedError
	require.True(t, errors.As(fatal, &ce))
	assert.Equal(t, ErrorFatal, ce.Class)
	assert.Equal(t, "publisher", ce.Component)
	assert.Equal(t, "Start", ce.Operation)
	assert.ErrorIs(t, fatal, base)

	assert.True(t, IsTransient(WrapTransient(base, "a", "b", "c")))
	assert.True(t, IsInvalid(WrapInvalid(base, "a", "b", "c")))
	assert.Nil(t, WrapFatal(nil, "a", "b", "c"))
}

func TestWrapDecode(t *testing.T) {
	base := errors.New("unexpected token")

	err := WrapDecode(base, "json-decoder", "Decode", "unmarshal")
	assert.ErrorIs(t, err, ErrDecodeFailed)
	assert.ErrorIs(t, err, base)
	assert.True(t, IsDecode(err))
	assert.True(t, IsInvalid(err))

	again := WrapDecode(err, "composite-decoder", "Decode", "delegate")
	assert.ErrorIs(t, again, ErrDecodeFailed)
	assert.Contains(t, again.Error(), "composite-decoder.Decode")
}

func TestNewStartupFault(t *testing.T) {
	cause := errors.New("bind: address in use")

	err := NewStartupFault("socket-receiver", cause)
	assert.ErrorIs(t, err, ErrStartupFault)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsFatal(err))
	assert.Contains(t, err.Error(), "socket-receiver")

	assert.ErrorIs(t, NewStartupFault("x", nil), ErrComponentFail)
}
