// Package sharepipeline implements the share validation computation spec.md
// §4.3 describes as identical in every mode: reconstruct the candidate block
// header from a Job and its backing WorkTemplate, double-SHA-256 it, and
// classify the result against the share's claimed difficulty and the
// template's network target.
package sharepipeline

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"github.com/sv2d/sv2d/internal/daemon"
	"github.com/sv2d/sv2d/internal/miningtypes"
	"github.com/sv2d/sv2d/internal/stratum/merkle"
)

// twoTo256 is 2^256, the numerator difficultyToTarget divides by a
// share's claimed difficulty.
var twoTo256 = new(big.Int).Lsh(big.NewInt(1), 256)

var builder = merkle.NewBuilder()

// Pipeline validates shares against their referenced Job and WorkTemplate,
// rejecting duplicate submissions without recomputation (spec.md §4.3).
// One Pipeline is shared across a mode's connections; its only mutable
// state is the per-connection seen-fingerprint set.
type Pipeline struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// New returns a Pipeline with an empty duplicate-tracking set.
func New() *Pipeline {
	return &Pipeline{seen: make(map[string]struct{})}
}

// AssembleCoinbase splices extranonce1 and extranonce2 between a job's
// coinbase halves, producing the full coinbase transaction bytes the
// merkle root is computed from.
func AssembleCoinbase(job *miningtypes.Job, extranonce1, extranonce2 []byte) []byte {
	out := make([]byte, 0, len(job.Coinbase1)+len(extranonce1)+len(extranonce2)+len(job.Coinbase2))
	out = append(out, job.Coinbase1...)
	out = append(out, extranonce1...)
	out = append(out, extranonce2...)
	out = append(out, job.Coinbase2...)
	return out
}

// buildHeader assembles the 80-byte block header candidate: version,
// prev_hash, merkle_root, ntime, nbits, nonce, all little-endian per
// spec.md §4.3.
func buildHeader(template *miningtypes.WorkTemplate, job *miningtypes.Job, merkleRoot []byte, share *miningtypes.Share) ([]byte, error) {
	prevHash, err := hex.DecodeString(template.PreviousHash)
	if err != nil {
		return nil, fmt.Errorf("sharepipeline: decode previous hash: %w", err)
	}
	if len(prevHash) != 32 {
		return nil, fmt.Errorf("sharepipeline: previous hash must be 32 bytes, got %d", len(prevHash))
	}
	if len(merkleRoot) != 32 {
		return nil, fmt.Errorf("sharepipeline: merkle root must be 32 bytes, got %d", len(merkleRoot))
	}

	header := make([]byte, 0, 80)
	var buf [4]byte

	binary.LittleEndian.PutUint32(buf[:], template.Version)
	header = append(header, buf[:]...)

	// Internal byte order reverses the display (big-endian hex) order.
	reversed := make([]byte, 32)
	for i, b := range prevHash {
		reversed[31-i] = b
	}
	header = append(header, reversed...)

	rootReversed := make([]byte, 32)
	for i, b := range merkleRoot {
		rootReversed[31-i] = b
	}
	header = append(header, rootReversed...)

	binary.LittleEndian.PutUint32(buf[:], share.NTime)
	header = append(header, buf[:]...)

	binary.LittleEndian.PutUint32(buf[:], job.Bits)
	header = append(header, buf[:]...)

	binary.LittleEndian.PutUint32(buf[:], share.Nonce)
	header = append(header, buf[:]...)

	return header, nil
}

func doubleSHA256(data []byte) []byte {
	h1 := sha256.Sum256(data)
	h2 := sha256.Sum256(h1[:])
	return h2[:]
}

// difficultyToTarget floors 2^256 / difficulty into a 256-bit target, the
// "share-target" of spec.md §4.3 step 4.
func difficultyToTarget(difficulty float64) *big.Int {
	scaled := new(big.Float).Quo(new(big.Float).SetInt(twoTo256), big.NewFloat(difficulty))
	target, _ := scaled.Int(nil)
	return target
}

// littleEndianInt reinterprets a big-endian 32-byte digest as the
// little-endian integer spec.md §4.3 step 3 compares against targets with,
// matching Bitcoin's convention of reading a header hash in reverse.
func littleEndianInt(digest []byte) *big.Int {
	reversed := make([]byte, len(digest))
	for i, b := range digest {
		reversed[len(digest)-1-i] = b
	}
	return new(big.Int).SetBytes(reversed)
}

// ValidateShare implements spec.md §4.3's five-step computation. extranonce1
// and extranonce2 are the raw bytes spliced into job's coinbase; minDifficulty
// is the configured floor (default 1.0) and connectionDifficulty is the
// connection's currently assigned difficulty, both enforced before any
// hashing occurs (step 1).
func (p *Pipeline) ValidateShare(share *miningtypes.Share, job *miningtypes.Job, template *miningtypes.WorkTemplate, extranonce1, extranonce2 []byte, minDifficulty, connectionDifficulty float64) (miningtypes.ShareResult, error) {
	if share.ClaimedDifficulty < minDifficulty {
		return miningtypes.ResultInvalid(fmt.Sprintf("claimed difficulty %v below minimum %v", share.ClaimedDifficulty, minDifficulty)), nil
	}
	if share.ClaimedDifficulty < connectionDifficulty {
		return miningtypes.ResultInvalid(fmt.Sprintf("claimed difficulty %v below connection target %v", share.ClaimedDifficulty, connectionDifficulty)), nil
	}

	fp := share.Fingerprint()
	p.mu.Lock()
	if _, dup := p.seen[fp]; dup {
		p.mu.Unlock()
		return miningtypes.ResultInvalid("duplicate share"), nil
	}
	p.seen[fp] = struct{}{}
	p.mu.Unlock()

	coinbase := AssembleCoinbase(job, extranonce1, extranonce2)
	coinbaseHash := doubleSHA256(coinbase)
	merkleRoot := builder.ComputeRoot(coinbaseHash, job.MerkleBranch)

	header, err := buildHeader(template, job, merkleRoot, share)
	if err != nil {
		return miningtypes.ShareResult{}, daemon.WrapError(daemon.ErrKindTemplate, "reconstruct block header", err)
	}

	digest := doubleSHA256(header)
	h := littleEndianInt(digest)

	shareTarget := difficultyToTarget(share.ClaimedDifficulty)
	if h.Cmp(shareTarget) > 0 {
		return miningtypes.ResultInvalid("does not meet difficulty"), nil
	}

	networkTarget := new(big.Int).SetBytes(template.NetworkTarget[:])
	if h.Cmp(networkTarget) <= 0 {
		return miningtypes.ResultBlock(hex.EncodeToString(reverseBytes(digest))), nil
	}
	return miningtypes.ResultValid(), nil
}

// Forget drops connectionID's duplicate-tracking entries, called on
// disconnection so the set doesn't grow unbounded across the registry's
// lifetime.
func (p *Pipeline) Forget(connectionID uuid.UUID) {
	prefix := connectionID.String() + "|"
	p.mu.Lock()
	defer p.mu.Unlock()
	for fp := range p.seen {
		if len(fp) >= len(prefix) && fp[:len(prefix)] == prefix {
			delete(p.seen, fp)
		}
	}
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
