package signal

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classcast/classcast/internal/domain"
)

func TestAwaitCallReturnsResult(t *testing.T) {
	v, err := awaitCall(time.Second, func() (int, error) { return 42, nil }, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestAwaitCallPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := awaitCall(time.Second, func() (int, error) { return 0, boom }, nil)
	assert.ErrorIs(t, err, boom)
}

func TestAwaitCallTimeout(t *testing.T) {
	var abandoned atomic.Bool
	release := make(chan struct{})

	_, err := awaitCall(10*time.Millisecond,
		func() (int, error) {
			<-release
			return 7, nil
		},
		func(int) { abandoned.Store(true) },
	)
	assert.ErrorIs(t, err, domain.ErrEngineTimeout)
	assert.False(t, abandoned.Load())

	// Once the engine answers after the deadline, the orphaned result
	// must be handed back for cleanup.
	close(release)
	assert.Eventually(t, abandoned.Load, time.Second, 5*time.Millisecond)
}

func TestMarshalEnvelope(t *testing.T) {
	f, err := marshalEnvelope("pong", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(f))

	f, err = marshalEnvelope("error", map[string]string{"message": "nope"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","data":{"message":"nope"}}`, string(f))
}
