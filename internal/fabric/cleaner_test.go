package fabric

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanerSweepCancelsIdleSessions(t *testing.T) {
	r := NewRegistry(0)
	sess := newTestSession(t)
	sess.Conn.LastActivity = time.Now().Add(-time.Hour)

	var cancelled bool
	sess.Cancel = func() { cancelled = true }
	require.NoError(t, r.Insert(sess))

	c := NewCleaner(r, time.Second, 10*time.Second)
	c.sweep(time.Now())

	assert.True(t, cancelled)
}

func TestCleanerSweepLeavesActiveSessions(t *testing.T) {
	r := NewRegistry(0)
	sess := newTestSession(t)
	sess.Conn.LastActivity = time.Now()

	var cancelled bool
	sess.Cancel = func() { cancelled = true }
	require.NoError(t, r.Insert(sess))

	c := NewCleaner(r, time.Second, time.Minute)
	c.sweep(time.Now())

	assert.False(t, cancelled)
}
