// Package translate implements the Proxy-mode bidirectional translation
// between Stratum v1 and Stratum v2 message shapes (spec.md §4.1.5): a
// per-connection job-id bijection, a monotonic v2 sequence counter, and
// the message-equivalence mapping between mining.subscribe/authorize/
// submit/notify and their v2 counterparts.
package translate

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/sv2d/sv2d/internal/miningtypes"
	v1 "github.com/sv2d/sv2d/internal/protocol/v1"
	v2binary "github.com/sv2d/sv2d/internal/protocol/v2/binary"
)

// State is the translation bookkeeping a Proxy connection carries for
// its lifetime: the job-id bijection, channel binding, and sequence
// counter (spec.md §4.1.5). It is miningtypes.Connection's Trans field;
// this package only adds the message-equivalence functions that read
// and mutate it. Single-owner per connection (the reader task), so it
// carries no internal locking of its own.
type State = miningtypes.TranslationState

// NewState returns an empty translation state for a channel.
func NewState(channelID uint32, extranonce1 string, extranonce2Size int) *State {
	s := miningtypes.NewTranslationState()
	s.ChannelID = channelID
	s.Extranonce1 = extranonce1
	s.Extranonce2Size = extranonce2Size
	return s
}

// diff1 is the Bitcoin pool-difficulty-1 target: the largest target a
// share at difficulty 1 must meet, derived from compact bits 0x1d00ffff
// the same way a block header's nBits expands to a target.
var diff1 = new(big.Int).Lsh(big.NewInt(0xffff), 8*(0x1d-3))

// defaultBaseVersion is the block version a translated SubmitSharesStandard
// carries when the originating v1 mining.submit supplies none, since v1's
// submit params (worker, job id, extranonce2, ntime, nonce) have no
// version field (spec.md §4.1.5 test vector).
const defaultBaseVersion uint32 = 0x20000000

// authorizeNominalHashrate is the sentinel nominal hashrate spec.md §4.1.5
// prescribes for a translated mining.authorize, since v1 carries none.
const authorizeNominalHashrate float32 = 1000.0

var (
	// ErrUntranslatable is returned for a v1/v2 message with no
	// equivalence entry in spec.md §4.1.5's table.
	ErrUntranslatable = errors.New("translate: feature not supported in translation mode")
	// ErrStaleJob is returned when a mining.submit's job id has no entry
	// in the forward map (spec.md §4.1.5: never forwarded silently).
	ErrStaleJob = errors.New("translate: stale job")
)

// nextJobID allocates the next v2 job id for a translation state; states
// start with JobIDReverse empty, so the allocator uses its size as the
// monotonic counter.
func nextJobID(s *State) uint32 {
	return uint32(len(s.JobIDReverse)) + 1
}

// registerJob binds a v1 job id to a freshly allocated v2 job id,
// maintaining the bijection spec.md requires in steady state.
// Re-registering the same v1 id returns its existing mapping.
func registerJob(s *State, v1JobID string) uint32 {
	if id, ok := s.ResolveToV2(v1JobID); ok {
		return id
	}
	id := nextJobID(s)
	s.Map(v1JobID, id)
	return id
}

// SubscribeToSetupConnection translates mining.subscribe into
// SetupConnection. Vendor carries the v1 user agent; DeviceID falls back
// to a caller-supplied synthesized identifier when the session supplies
// none (spec.md §4.1.5).
func SubscribeToSetupConnection(req *v1.Request, endpoint, syntheticDeviceID string) (*v2binary.SetupConnection, error) {
	if req.Method != v1.MethodSubscribe {
		return nil, fmt.Errorf("%w: %s", ErrUntranslatable, req.Method)
	}
	userAgent := ""
	if len(req.Params) > 0 {
		if s, ok := req.Params[0].(string); ok {
			userAgent = s
		}
	}
	deviceID := syntheticDeviceID
	if len(req.Params) > 1 {
		if s, ok := req.Params[1].(string); ok && s != "" {
			deviceID = s
		}
	}
	return &v2binary.SetupConnection{
		Protocol:   2,
		MinVersion: 2,
		MaxVersion: 2,
		Endpoint:   v2binary.STR0_255(endpoint),
		Vendor:     v2binary.STR0_255(userAgent),
		DeviceID:   v2binary.STR0_255(deviceID),
	}, nil
}

// AuthorizeToOpenChannel translates mining.authorize into
// OpenStandardMiningChannel, using the spec.md §4.1.5 sentinel nominal
// hashrate since v1 authorize carries none.
func AuthorizeToOpenChannel(req *v1.Request, requestID uint32) (*v2binary.OpenStandardMiningChannel, error) {
	if req.Method != v1.MethodAuthorize {
		return nil, fmt.Errorf("%w: %s", ErrUntranslatable, req.Method)
	}
	username := ""
	if len(req.Params) > 0 {
		if s, ok := req.Params[0].(string); ok {
			username = s
		}
	}
	return &v2binary.OpenStandardMiningChannel{
		RequestID:       requestID,
		UserIdentity:    v2binary.STR0_255(username),
		NominalHashrate: authorizeNominalHashrate,
	}, nil
}

// SubmitToSubmitShares translates mining.submit into
// SubmitSharesStandard. Params are [worker, job id, extranonce2, ntime,
// nonce]. A job id absent from state's forward map fails with
// ErrStaleJob rather than being forwarded (spec.md §4.1.5).
func SubmitToSubmitShares(state *State, req *v1.Request) (*v2binary.SubmitSharesStandard, error) {
	if req.Method != v1.MethodSubmit {
		return nil, fmt.Errorf("%w: %s", ErrUntranslatable, req.Method)
	}
	if len(req.Params) < 5 {
		return nil, fmt.Errorf("translate: mining.submit: expected 5 params, got %d", len(req.Params))
	}
	v1JobID, ok := req.Params[1].(string)
	if !ok {
		return nil, fmt.Errorf("translate: mining.submit: job id not a string")
	}
	ntimeHex, ok := req.Params[3].(string)
	if !ok {
		return nil, fmt.Errorf("translate: mining.submit: ntime not a string")
	}
	nonceHex, ok := req.Params[4].(string)
	if !ok {
		return nil, fmt.Errorf("translate: mining.submit: nonce not a string")
	}

	v2JobID, ok := state.ResolveToV2(v1JobID)
	if !ok {
		return nil, ErrStaleJob
	}

	ntime, err := parseHexU32(ntimeHex)
	if err != nil {
		return nil, fmt.Errorf("translate: mining.submit: ntime: %w", err)
	}
	nonce, err := parseHexU32(nonceHex)
	if err != nil {
		return nil, fmt.Errorf("translate: mining.submit: nonce: %w", err)
	}

	return &v2binary.SubmitSharesStandard{
		ChannelID:   state.ChannelID,
		SequenceNum: state.NextSequence(),
		JobID:       v2JobID,
		Nonce:       nonce,
		NTime:       ntime,
		Version:     defaultBaseVersion,
	}, nil
}

// NotifyToNewMiningJob translates mining.notify into NewMiningJob,
// registering the v1 job id in state's bijection; the returned
// NewMiningJob's JobID is the v2 job id it was assigned. Params are
// [job id, prevhash, coinb1, coinb2,
// merkle_branch[], version, nbits, ntime, clean_jobs].
func NotifyToNewMiningJob(state *State, notif *v1.Notification) (*v2binary.NewMiningJob, error) {
	if notif.Method != v1.MethodNotify {
		return nil, fmt.Errorf("%w: %s", ErrUntranslatable, notif.Method)
	}
	if len(notif.Params) < 9 {
		return nil, fmt.Errorf("translate: mining.notify: expected 9 params, got %d", len(notif.Params))
	}
	v1JobID, ok := notif.Params[0].(string)
	if !ok {
		return nil, fmt.Errorf("translate: mining.notify: job id not a string")
	}
	versionHex, ok := notif.Params[5].(string)
	if !ok {
		return nil, fmt.Errorf("translate: mining.notify: version not a string")
	}
	version, err := parseHexU32(versionHex)
	if err != nil {
		return nil, fmt.Errorf("translate: mining.notify: version: %w", err)
	}
	cleanJobs, _ := notif.Params[8].(bool)

	merklePath, err := parseMerkleBranch(notif.Params[4])
	if err != nil {
		return nil, fmt.Errorf("translate: mining.notify: merkle branch: %w", err)
	}

	v2JobID := registerJob(state, v1JobID)
	return &v2binary.NewMiningJob{
		ChannelID:  state.ChannelID,
		JobID:      v2JobID,
		FutureJob:  cleanJobs,
		Version:    version,
		MerklePath: merklePath,
	}, nil
}

// SetDifficultyToSetTarget derives a channel target from a v1 difficulty
// value (spec.md §4.1.5: "target derived from difficulty").
func SetDifficultyToSetTarget(channelID uint32, difficulty float64) (*v2binary.SetTarget, error) {
	if difficulty <= 0 {
		return nil, fmt.Errorf("translate: mining.set_difficulty: non-positive difficulty %v", difficulty)
	}
	return &v2binary.SetTarget{ChannelID: channelID, MaxTarget: difficultyToTarget(difficulty)}, nil
}

func parseHexU32(s string) (uint32, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return 0, err
	}
	if len(b) != 4 {
		return 0, fmt.Errorf("expected 4 bytes, got %d", len(b))
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

func parseMerkleBranch(raw interface{}) ([][32]byte, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("not an array")
	}
	out := make([][32]byte, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("branch entry not a string")
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, err
		}
		if len(b) != 32 {
			return nil, fmt.Errorf("branch entry: expected 32 bytes, got %d", len(b))
		}
		var h [32]byte
		copy(h[:], b)
		out = append(out, h)
	}
	return out, nil
}

// difficultyToTarget converts a Stratum v1 difficulty into a 256-bit
// big-endian target using the same diff-1 constant the share-validation
// path in internal/sharepipeline derives targets from.
func difficultyToTarget(difficulty float64) [32]byte {
	scaled := new(big.Float).Quo(new(big.Float).SetInt(diff1), big.NewFloat(difficulty))
	target, _ := scaled.Int(nil)

	var out [32]byte
	b := target.Bytes()
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(out[32-len(b):], b)
	return out
}
