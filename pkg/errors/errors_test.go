package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusyError(t *testing.T) {
	err := NewBusyError("bluetooth", "librespot")

	assert.True(t, Is(err, ErrBusy))
	assert.False(t, Is(err, ErrBackend))
	assert.Contains(t, err.Error(), "bluetooth")
	assert.Contains(t, err.Error(), "librespot")

	var busy *BusyError
	require.True(t, As(err, &busy))
	assert.Equal(t, "bluetooth", busy.Requested)
	assert.Equal(t, "librespot", busy.Active)
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("level", 150, "must be between 0 and 100")

	assert.True(t, Is(err, ErrInvalidInput))
	assert.Contains(t, err.Error(), "level")
	assert.Contains(t, err.Error(), "must be between 0 and 100")

	// Field-less variant
	bare := &ValidationError{Message: "empty body"}
	assert.Contains(t, bare.Error(), "empty body")
}

func TestSourceError(t *testing.T) {
	err := NewSourceError("tape")
	assert.True(t, Is(err, ErrInvalidSource))
	assert.Contains(t, err.Error(), "tape")
}

func TestBackendError_Unwraps(t *testing.T) {
	cause := New("connection refused")
	err := NewBackendError("snapcast", "start", cause)

	assert.True(t, Is(err, ErrBackend))
	assert.True(t, Is(err, cause), "the cause stays in the chain")
	assert.Contains(t, err.Error(), "snapcast")
	assert.Contains(t, err.Error(), "start")
}

func TestRPCError(t *testing.T) {
	cause := New("503 from daemon")
	err := WrapRPC("librespot", 503, cause)

	assert.True(t, Is(err, ErrBackend))
	assert.True(t, Is(err, cause))

	var rpc *RPCError
	require.True(t, As(err, &rpc))
	assert.Equal(t, 503, rpc.StatusCode)
	assert.Equal(t, "librespot", rpc.Backend)
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("source start", "5s", "librespot did not come up")
	assert.True(t, Is(err, ErrTimeout))
	assert.Contains(t, err.Error(), "5s")
}

func TestWrap_NilSafety(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WrapValidation("field", nil))
	assert.Nil(t, WrapBackend("b", "op", nil))
	assert.Nil(t, WrapRPC("b", 500, nil))
}

func TestWrap_PreservesChain(t *testing.T) {
	err := Wrap(ErrBusy, "activating roc")
	assert.True(t, Is(err, ErrBusy))
	assert.Contains(t, err.Error(), "activating roc")

	err = Wrapf(ErrNoActiveSource, "playback %s", "pause")
	assert.True(t, Is(err, ErrNoActiveSource))
	assert.Contains(t, err.Error(), "playback pause")
}
