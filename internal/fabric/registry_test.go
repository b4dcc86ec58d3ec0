package fabric

import (
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sv2d/sv2d/internal/miningtypes"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	conn := miningtypes.NewConnection("127.0.0.1:1234")
	writer := NewWriter(server, 8)
	return NewSession(conn, server, writer, func() {}, nil)
}

func TestRegistryInsertGetRemove(t *testing.T) {
	r := NewRegistry(0)
	sess := newTestSession(t)

	require.NoError(t, r.Insert(sess))
	got, ok := r.Get(sess.Conn.ID)
	require.True(t, ok)
	assert.Equal(t, sess, got)
	assert.Equal(t, 1, r.Len())

	r.Remove(sess.Conn.ID)
	_, ok = r.Get(sess.Conn.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryRefusesOverCapacity(t *testing.T) {
	r := NewRegistry(1)
	first := newTestSession(t)
	second := newTestSession(t)

	require.NoError(t, r.Insert(first))
	err := r.Insert(second)
	assert.ErrorIs(t, err, ErrAtCapacity)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryMutateAppliesUnderLock(t *testing.T) {
	r := NewRegistry(0)
	sess := newTestSession(t)
	require.NoError(t, r.Insert(sess))

	ok := r.Mutate(sess.Conn.ID, func(s *Session) {
		s.Conn.State = miningtypes.StateAuthenticated
	})
	assert.True(t, ok)
	assert.Equal(t, miningtypes.StateAuthenticated, sess.Conn.State)
}

func TestRegistryMutateUnknownIDReturnsFalse(t *testing.T) {
	r := NewRegistry(0)
	ok := r.Mutate(uuid.Nil, func(s *Session) {})
	assert.False(t, ok)
}

func TestRegistrySnapshotIsIndependentOfLiveMap(t *testing.T) {
	r := NewRegistry(0)
	sess := newTestSession(t)
	require.NoError(t, r.Insert(sess))

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	r.Remove(sess.Conn.ID)
	assert.Len(t, snap, 1)
}
