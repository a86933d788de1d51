package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPattern(t *testing.T) {
	base := stderrors.New("disk full")
	wrapped := Wrap(base, "fileTransport", "Write", "flush")

	assert.Equal(t, "fileTransport.Write: flush failed: disk full", wrapped.Error())
	assert.True(t, stderrors.Is(wrapped, base))
	assert.Nil(t, Wrap(nil, "a", "b", "c"))
}

func TestClassifiedWrappers(t *testing.T) {
	base := stderrors.New("oops")

	transient := WrapTransient(base, "c", "m", "a")
	invalid := WrapInvalid(base, "c", "m", "a")
	fatal := WrapFatal(base, "c", "m", "a")

	assert.True(t, IsTransient(transient))
	assert.True(t, IsInvalid(invalid))
	assert.True(t, IsFatal(fatal))

	assert.Equal(t, ErrorTransient, Classify(transient))
	assert.Equal(t, ErrorInvalid, Classify(invalid))
	assert.Equal(t, ErrorFatal, Classify(fatal))

	// Wrapped errors still match their cause.
	assert.True(t, stderrors.Is(transient, base))

	var ce *ClassifiedError
	assert.True(t, stderrors.As(transient, &ce))
	assert.Equal(t, "c", ce.Component)
}

func TestSentinelClassification(t *testing.T) {
	assert.True(t, IsInvalid(ErrInvalidConnections))
	assert.True(t, IsInvalid(ErrArgumentNil))
	assert.True(t, IsInvalid(fmt.Errorf("context: %w", ErrInvalidOption)))

	assert.True(t, IsTransient(ErrNotConnected))
	assert.True(t, IsTransient(ErrConnectionLost))
	assert.True(t, IsTransient(stderrors.New("dial tcp: connection refused")))

	assert.True(t, IsFatal(ErrSchedulerStopped))
}

func TestClassifyDefaultsToTransient(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(stderrors.New("mystery")))
	assert.Equal(t, ErrorTransient, Classify(nil))
}

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
}
