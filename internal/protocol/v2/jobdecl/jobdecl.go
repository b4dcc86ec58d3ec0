// Package jobdecl implements the token-allocation and job-declaration
// message flow of the Stratum v2 Job Declaration Protocol extension
// (extension_type=1), as scoped by spec.md §4.3: AllocateMiningJobToken,
// AllocateMiningJobTokenSuccess, and DeclareMiningJob. The full JDP
// (negotiation, multiple pending declarations, revocation) is out of
// scope.
package jobdecl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	v2binary "github.com/sv2d/sv2d/internal/protocol/v2/binary"
)

// ExtensionType is the v2 frame extension_type carrying JDP messages.
const ExtensionType uint8 = 1

// Message types within ExtensionType (spec.md §4.3 table).
const (
	MsgTypeAllocateMiningJobToken        uint8 = 0x50
	MsgTypeAllocateMiningJobTokenSuccess uint8 = 0x51
	MsgTypeDeclareMiningJob              uint8 = 0x53
	MsgTypeDeclareMiningJobSuccess       uint8 = 0x54
)

// Job declaration limits (spec.md §4.3).
const (
	MaxSigOps = 80_000
	MaxWeight = 4_000_000
)

var (
	ErrSigOpsExceeded    = errors.New("jobdecl: sigops limit exceeded")
	ErrWeightExceeded    = errors.New("jobdecl: weight limit exceeded")
	ErrOutOfTimeWindow   = errors.New("jobdecl: ntime outside [min_time, max_time]")
	ErrNonPositiveDiff   = errors.New("jobdecl: difficulty must be > 0")
	ErrUnknownToken      = errors.New("jobdecl: unknown token")
)

// AllocateMiningJobToken requests a token to later declare a custom job.
type AllocateMiningJobToken struct {
	RequestID uint32
	UserID    v2binary.STR0_255
}

// AllocateMiningJobTokenSuccess grants a token for a later DeclareMiningJob.
type AllocateMiningJobTokenSuccess struct {
	RequestID uint32
	Token     v2binary.STR0_255
}

// DeclareMiningJobSuccess grants the job id for an accepted declaration.
type DeclareMiningJobSuccess struct {
	JobID uint32
}

// DeclareMiningJob proposes a custom block template built by the client.
type DeclareMiningJob struct {
	Token      v2binary.STR0_255
	TemplateID v2binary.STR0_255
	Version    uint32
	PrevHash   [32]byte
	MerkleRoot [32]byte
	NTime      uint32
	NBits      uint32
	SigOps     uint32
	Weight     uint32
}

// Validate enforces the invariants spec.md §4.3 places on a declared job:
// sigops/weight ceilings, the ntime window against the allocating
// template, and a positive difficulty (the difficulty argument; NBits
// itself is not examined).
func (m *DeclareMiningJob) Validate(minTime, maxTime uint32, difficulty float64) error {
	if m.SigOps > MaxSigOps {
		return ErrSigOpsExceeded
	}
	if m.Weight > MaxWeight {
		return ErrWeightExceeded
	}
	if m.NTime < minTime || m.NTime > maxTime {
		return ErrOutOfTimeWindow
	}
	if difficulty <= 0 {
		return ErrNonPositiveDiff
	}
	return nil
}

func serializeAllocateMiningJobToken(m *AllocateMiningJobToken) []byte {
	buf := make([]byte, 0, 4+1+len(m.UserID))
	var reqID [4]byte
	binary.LittleEndian.PutUint32(reqID[:], m.RequestID)
	buf = append(buf, reqID[:]...)
	buf = append(buf, m.UserID.Serialize()...)
	return buf
}

func parseAllocateMiningJobToken(payload []byte) (*AllocateMiningJobToken, error) {
	d := v2binary.NewDeserializer(payload)
	reqID, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	userID, err := d.ReadSTR0_255()
	if err != nil {
		return nil, err
	}
	return &AllocateMiningJobToken{RequestID: reqID, UserID: userID}, nil
}

func serializeAllocateMiningJobTokenSuccess(m *AllocateMiningJobTokenSuccess) []byte {
	buf := make([]byte, 0, 4+1+len(m.Token))
	var reqID [4]byte
	binary.LittleEndian.PutUint32(reqID[:], m.RequestID)
	buf = append(buf, reqID[:]...)
	buf = append(buf, m.Token.Serialize()...)
	return buf
}

func parseAllocateMiningJobTokenSuccess(payload []byte) (*AllocateMiningJobTokenSuccess, error) {
	d := v2binary.NewDeserializer(payload)
	reqID, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	token, err := d.ReadSTR0_255()
	if err != nil {
		return nil, err
	}
	return &AllocateMiningJobTokenSuccess{RequestID: reqID, Token: token}, nil
}

func serializeDeclareMiningJob(m *DeclareMiningJob) []byte {
	s := v2binary.NewSerializer()
	s.WriteSTR0_255(string(m.Token))
	s.WriteSTR0_255(string(m.TemplateID))
	s.WriteU32(m.Version)
	s.WriteFixedBytes(m.PrevHash[:], 32)
	s.WriteFixedBytes(m.MerkleRoot[:], 32)
	s.WriteU32(m.NTime)
	s.WriteU32(m.NBits)
	s.WriteU32(m.SigOps)
	s.WriteU32(m.Weight)
	return s.Bytes()
}

func parseDeclareMiningJob(payload []byte) (*DeclareMiningJob, error) {
	d := v2binary.NewDeserializer(payload)
	m := &DeclareMiningJob{}
	var err error
	if m.Token, err = d.ReadSTR0_255(); err != nil {
		return nil, err
	}
	if m.TemplateID, err = d.ReadSTR0_255(); err != nil {
		return nil, err
	}
	if m.Version, err = d.ReadU32(); err != nil {
		return nil, err
	}
	prevHash, err := d.ReadFixedBytes(32)
	if err != nil {
		return nil, err
	}
	copy(m.PrevHash[:], prevHash)
	merkleRoot, err := d.ReadFixedBytes(32)
	if err != nil {
		return nil, err
	}
	copy(m.MerkleRoot[:], merkleRoot)
	if m.NTime, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.NBits, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.SigOps, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.Weight, err = d.ReadU32(); err != nil {
		return nil, err
	}
	return m, nil
}

func serializeDeclareMiningJobSuccess(m *DeclareMiningJobSuccess) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], m.JobID)
	return buf[:]
}

func parseDeclareMiningJobSuccess(payload []byte) (*DeclareMiningJobSuccess, error) {
	d := v2binary.NewDeserializer(payload)
	jobID, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	return &DeclareMiningJobSuccess{JobID: jobID}, nil
}

// EncodeFrame wraps a JDP message in its v2 frame (extension_type=1).
func EncodeFrame(msgType uint8, m interface{}) ([]byte, error) {
	var payload []byte
	switch v := m.(type) {
	case *AllocateMiningJobToken:
		payload = serializeAllocateMiningJobToken(v)
	case *AllocateMiningJobTokenSuccess:
		payload = serializeAllocateMiningJobTokenSuccess(v)
	case *DeclareMiningJob:
		payload = serializeDeclareMiningJob(v)
	case *DeclareMiningJobSuccess:
		payload = serializeDeclareMiningJobSuccess(v)
	default:
		return nil, fmt.Errorf("jobdecl: unsupported message type %T", m)
	}
	return v2binary.SerializeFrame(msgType, ExtensionType, payload), nil
}

// DecodeFrame parses a JDP message payload by msgType.
func DecodeFrame(msgType uint8, payload []byte) (interface{}, error) {
	switch msgType {
	case MsgTypeAllocateMiningJobToken:
		return parseAllocateMiningJobToken(payload)
	case MsgTypeAllocateMiningJobTokenSuccess:
		return parseAllocateMiningJobTokenSuccess(payload)
	case MsgTypeDeclareMiningJob:
		return parseDeclareMiningJob(payload)
	case MsgTypeDeclareMiningJobSuccess:
		return parseDeclareMiningJobSuccess(payload)
	default:
		return nil, fmt.Errorf("jobdecl: unknown message type 0x%02x", msgType)
	}
}

// tokenRecord binds an issued token to the window the declaring job must
// satisfy.
type tokenRecord struct {
	userID  string
	minTime uint32
	maxTime uint32
	issued  time.Time
}

// Declarator is the job-declaration-server (JDS) side of the flow: it
// issues tokens and validates declarations against them.
type Declarator struct {
	mu     sync.Mutex
	tokens map[string]tokenRecord
	nextID uint64
}

// NewDeclarator returns an empty Declarator.
func NewDeclarator() *Declarator {
	return &Declarator{tokens: make(map[string]tokenRecord)}
}

// AllocateToken issues a token for userID valid for the [minTime, maxTime]
// window of the template the token will be redeemed against.
func (d *Declarator) AllocateToken(userID string, minTime, maxTime uint32) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	token := fmt.Sprintf("jdt-%d", d.nextID)
	d.tokens[token] = tokenRecord{userID: userID, minTime: minTime, maxTime: maxTime, issued: time.Now()}
	return token
}

// Declare validates msg against the window recorded for its token and, on
// success, consumes the token (single-use, per spec.md §4.3's
// token-allocation-then-declare flow).
func (d *Declarator) Declare(msg *DeclareMiningJob, difficulty float64) error {
	d.mu.Lock()
	rec, ok := d.tokens[string(msg.Token)]
	d.mu.Unlock()
	if !ok {
		return ErrUnknownToken
	}
	if err := msg.Validate(rec.minTime, rec.maxTime, difficulty); err != nil {
		return err
	}
	d.mu.Lock()
	delete(d.tokens, string(msg.Token))
	d.mu.Unlock()
	return nil
}
