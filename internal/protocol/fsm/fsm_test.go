package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sv2d/sv2d/internal/miningtypes"
)

func newTestMachine() *Machine {
	conn := miningtypes.NewConnection("127.0.0.1:1234")
	return New(conn)
}

func TestV1HappyPath(t *testing.T) {
	m := newTestMachine()
	assert.Equal(t, miningtypes.StateConnecting, m.State())

	_, err := m.Fire(EventProtocolDetected)
	require.NoError(t, err)
	assert.Equal(t, miningtypes.StateConnected, m.State())

	_, err = m.Fire(EventSubscribed)
	require.NoError(t, err)
	assert.Equal(t, miningtypes.StateSubscribed, m.State())

	_, err = m.Fire(EventAuthorized)
	require.NoError(t, err)
	assert.Equal(t, miningtypes.StateAuthenticated, m.State())

	_, err = m.Fire(EventCloseRequested)
	require.NoError(t, err)
	assert.Equal(t, miningtypes.StateDisconnecting, m.State())

	_, err = m.Fire(EventClosed)
	require.NoError(t, err)
	assert.Equal(t, miningtypes.StateDisconnected, m.State())
	assert.True(t, m.IsTerminal())
}

func TestV2SkipsSubscribed(t *testing.T) {
	m := newTestMachine()
	_, err := m.Fire(EventProtocolDetected)
	require.NoError(t, err)

	_, err = m.Fire(EventAuthorized)
	require.NoError(t, err)
	assert.Equal(t, miningtypes.StateAuthenticated, m.State())
}

func TestDetectionTimeoutGoesDirectlyToDisconnected(t *testing.T) {
	m := newTestMachine()
	_, err := m.Fire(EventDetectionTimeout)
	require.NoError(t, err)
	assert.Equal(t, miningtypes.StateDisconnected, m.State())
}

func TestInvalidTransitionRejected(t *testing.T) {
	m := newTestMachine()
	_, err := m.Fire(EventAuthorized)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, miningtypes.StateConnecting, m.State())
}

func TestDisconnectedIsTerminal(t *testing.T) {
	m := newTestMachine()
	_, _ = m.Fire(EventDetectionTimeout)
	assert.True(t, m.IsTerminal())
	_, err := m.Fire(EventProtocolDetected)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestProtocolErrorFromAuthenticated(t *testing.T) {
	m := newTestMachine()
	_, _ = m.Fire(EventProtocolDetected)
	_, _ = m.Fire(EventAuthorized)

	_, err := m.Fire(EventProtocolError)
	require.NoError(t, err)
	assert.Equal(t, miningtypes.StateError, m.State())

	assert.True(t, m.CanFire(EventCloseRequested))
}
