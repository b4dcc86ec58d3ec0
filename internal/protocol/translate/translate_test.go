package translate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/sv2d/sv2d/internal/protocol/v1"
)

func TestSubscribeToSetupConnection(t *testing.T) {
	req := &v1.Request{ID: 1, Method: v1.MethodSubscribe, Params: []interface{}{"cgminer/4.10.0"}}
	setup, err := SubscribeToSetupConnection(req, "pool.example.com:3333", "synthetic-1")
	require.NoError(t, err)
	assert.Equal(t, "cgminer/4.10.0", string(setup.Vendor))
	assert.Equal(t, "synthetic-1", string(setup.DeviceID))
	assert.EqualValues(t, 2, setup.Protocol)
}

func TestAuthorizeToOpenChannel(t *testing.T) {
	req := &v1.Request{ID: 2, Method: v1.MethodAuthorize, Params: []interface{}{"worker.1", "x"}}
	open, err := AuthorizeToOpenChannel(req, 5)
	require.NoError(t, err)
	assert.Equal(t, "worker.1", string(open.UserIdentity))
	assert.Equal(t, authorizeNominalHashrate, open.NominalHashrate)
}

// TestSubmitToSubmitSharesSpecVector reproduces spec.md §4.1.5's test
// vector: forward map {"j42" -> 42}, channel_id=7, sequence_counter=0.
func TestSubmitToSubmitSharesSpecVector(t *testing.T) {
	state := NewState(7, "ab01", 4)
	state.Map("j42", 42)

	req := &v1.Request{
		Method: v1.MethodSubmit,
		Params: []interface{}{"w", "j42", "deadbeef", "504e86b9", "01020304"},
	}

	msg, err := SubmitToSubmitShares(state, req)
	require.NoError(t, err)
	assert.EqualValues(t, 7, msg.ChannelID)
	assert.EqualValues(t, 0, msg.SequenceNum)
	assert.EqualValues(t, 42, msg.JobID)
	assert.EqualValues(t, 0x01020304, msg.Nonce)
	assert.EqualValues(t, 0x504e86b9, msg.NTime)
	assert.EqualValues(t, 0x20000000, msg.Version)

	assert.EqualValues(t, 1, state.SequenceCounter)
}

func TestSubmitToSubmitSharesStaleJob(t *testing.T) {
	state := NewState(7, "ab01", 4)
	req := &v1.Request{
		Method: v1.MethodSubmit,
		Params: []interface{}{"w", "unknown-job", "deadbeef", "504e86b9", "01020304"},
	}
	_, err := SubmitToSubmitShares(state, req)
	assert.ErrorIs(t, err, ErrStaleJob)
}

func TestNotifyToNewMiningJobRegistersMapping(t *testing.T) {
	state := NewState(7, "ab01", 4)
	prevHash := strings.Repeat("0", 64)
	branch := strings.Repeat("ab", 32)
	notif := &v1.Notification{
		Method: v1.MethodNotify,
		Params: []interface{}{
			"j42", prevHash, "coinb1", "coinb2",
			[]interface{}{branch}, "20000000", "170abcde", "504e86b9", true,
		},
	}

	job, err := NotifyToNewMiningJob(state, notif)
	require.NoError(t, err)
	assert.EqualValues(t, 1, job.JobID)
	assert.EqualValues(t, 0x20000000, job.Version)
	assert.True(t, job.FutureJob)
	assert.Len(t, job.MerklePath, 1)

	v2ID, ok := state.ResolveToV2("j42")
	require.True(t, ok)
	assert.Equal(t, job.JobID, v2ID)

	v1ID, ok := state.ResolveToV1(job.JobID)
	require.True(t, ok)
	assert.Equal(t, "j42", v1ID)
}

func TestSetDifficultyToSetTarget(t *testing.T) {
	target, err := SetDifficultyToSetTarget(7, 1.0)
	require.NoError(t, err)
	assert.EqualValues(t, 7, target.ChannelID)
	assert.NotEqual(t, [32]byte{}, target.MaxTarget)

	_, err = SetDifficultyToSetTarget(7, 0)
	assert.Error(t, err)
}

func TestSubscribeToSetupConnectionWrongMethod(t *testing.T) {
	req := &v1.Request{Method: v1.MethodSubmit}
	_, err := SubscribeToSetupConnection(req, "", "")
	assert.ErrorIs(t, err, ErrUntranslatable)
}
