package miningtypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionValidate(t *testing.T) {
	c := NewConnection("127.0.0.1:3333")
	require.NoError(t, c.Validate())

	c.AuthorizedWorkers = []string{"alice.rig1"}
	assert.Error(t, c.Validate(), "authorized workers without Authenticated state must be rejected")

	c.State = StateAuthenticated
	assert.NoError(t, c.Validate())

	c.Extranonce2Size = 9
	assert.Error(t, c.Validate())
}

func TestConnectionLastActivityInvariant(t *testing.T) {
	c := NewConnection("127.0.0.1:3333")
	c.LastActivity = c.CreatedAt.Add(-time.Second)
	assert.Error(t, c.Validate())
}

func TestShareValidateNTimeBoundary(t *testing.T) {
	now := time.Unix(1700000000, 0)

	valid := &Share{ClaimedDifficulty: 1, NTime: uint32(now.Add(300 * time.Second).Unix())}
	assert.NoError(t, valid.Validate(now), "ntime exactly now+300 must be accepted")

	invalid := &Share{ClaimedDifficulty: 1, NTime: uint32(now.Add(301 * time.Second).Unix())}
	assert.Error(t, invalid.Validate(now), "ntime now+301 must be rejected")
}

func TestShareValidateDifficultyMustBePositive(t *testing.T) {
	s := &Share{ClaimedDifficulty: 0, NTime: uint32(time.Now().Unix())}
	assert.Error(t, s.Validate(time.Now()))
}

func TestShareFingerprintStability(t *testing.T) {
	s1 := &Share{JobID: "j1", Extranonce2: "00000000", NTime: 1, Nonce: 2}
	s2 := &Share{JobID: "j1", Extranonce2: "00000000", NTime: 1, Nonce: 2}
	assert.Equal(t, s1.Fingerprint(), s2.Fingerprint())

	s3 := &Share{JobID: "j2", Extranonce2: "00000000", NTime: 1, Nonce: 2}
	assert.NotEqual(t, s1.Fingerprint(), s3.Fingerprint())
}

func TestWorkTemplateValidateAndExpiry(t *testing.T) {
	now := time.Now()
	tpl := &WorkTemplate{
		Difficulty: 1,
		CoinbaseTx: []byte{0x01},
		CreatedAt:  now,
		ExpiresAt:  now.Add(DefaultTemplateExpiry),
	}
	require.NoError(t, tpl.Validate())
	assert.False(t, tpl.IsExpired(now))
	assert.True(t, tpl.IsExpired(now.Add(DefaultTemplateExpiry+time.Second)))

	tpl.ExpiresAt = tpl.CreatedAt
	assert.Error(t, tpl.Validate())
}

func TestTranslationStateBijection(t *testing.T) {
	ts := NewTranslationState()
	ts.Map("j1", 1)
	ts.Map("j2", 2)

	v2, ok := ts.ResolveToV2("j1")
	require.True(t, ok)
	assert.Equal(t, uint32(1), v2)

	v1, ok := ts.ResolveToV1(2)
	require.True(t, ok)
	assert.Equal(t, "j2", v1)

	_, ok = ts.ResolveToV2("missing")
	assert.False(t, ok)
}

func TestTranslationStateSequenceGapFree(t *testing.T) {
	ts := NewTranslationState()
	for i := uint32(0); i < 5; i++ {
		assert.Equal(t, i, ts.NextSequence())
	}
}
