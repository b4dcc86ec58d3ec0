package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyOverridesEmptyIsIdentity(t *testing.T) {
	cfg := DefaultConfig()
	before := cfg

	require.NoError(t, cfg.ApplyOverrides(Overrides{}))
	assert.Equal(t, before, cfg)
}

func TestApplyOverridesUnknownKey(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyOverrides(Overrides{"bogus.key": "x"})
	assert.Error(t, err)
}

func TestApplyOverridesKnownKeys(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyOverrides(Overrides{
		"network.bind_address":  "0.0.0.0:4444",
		"mode.pool.share_difficulty": "2.5",
	}))
	assert.Equal(t, "0.0.0.0:4444", cfg.Network.BindAddress)
	assert.Equal(t, 2.5, cfg.Pool.ShareDifficulty)
}

func TestValidateProxyWeightedRoundRobinZeroWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeProxy
	cfg.Proxy.LoadBalancing = WeightedRoundRobin
	cfg.Proxy.UpstreamPools = []UpstreamPool{
		{URL: "stratum+tcp://pool1:3333", Username: "worker1", Weight: 0},
		{URL: "stratum+tcp://pool2:3333", Username: "worker2", Weight: 0},
	}

	errs := cfg.Validate()
	require.NotEmpty(t, errs)

	found := false
	for _, e := range errs {
		if e.Error() == "config: Weighted round robin requires non-zero weights" {
			found = true
		}
	}
	assert.True(t, found, "expected weighted round robin zero-weight error, got %v", errs)
}

func TestValidateSoloRequiresCoinbaseAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeSolo
	cfg.Bitcoin.RPCURL = "http://localhost:8332"
	errs := cfg.Validate()
	require.NotEmpty(t, errs)
}

func TestFromEnvOverlay(t *testing.T) {
	env := map[string]string{
		"SV2D_BIND_ADDRESS":    "127.0.0.1:9999",
		"SV2D_MAX_CONNECTIONS": "5000",
	}
	cfg, err := FromEnv(DefaultConfig(), func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Network.BindAddress)
	assert.Equal(t, 5000, cfg.Network.MaxConnections)
}

func TestErrorKindKindOf(t *testing.T) {
	err := WrapError(ErrKindBitcoinRPC, "node unreachable", assert.AnError)
	assert.Equal(t, ErrKindBitcoinRPC, KindOf(err))
	assert.Equal(t, ErrKindSystem, KindOf(assert.AnError))
}
