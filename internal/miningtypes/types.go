// Package miningtypes holds the entities shared across the protocol engine,
// mode dispatcher, share pipeline and concurrency fabric: Connection, Share,
// WorkTemplate, Job, Worker and Alert, plus the invariants each must satisfy.
package miningtypes

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Protocol identifies which Stratum wire variant a connection negotiated.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolV1
	ProtocolV2
)

func (p Protocol) String() string {
	switch p {
	case ProtocolV1:
		return "stratum-v1"
	case ProtocolV2:
		return "stratum-v2"
	default:
		return "unknown"
	}
}

// ConnectionState is a node in the state machine described in spec §4.1.6.
type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateConnected
	StateSubscribed
	StateAuthenticated
	StateDisconnecting
	StateDisconnected
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// StaleConnectionTimeout is the default idle window after which a
// connection is evicted by the cleaner background task.
const StaleConnectionTimeout = 300 * time.Second

// V1ProtocolState holds the per-connection state the v1 parser maintains.
type V1ProtocolState struct {
	Subscribed         bool
	Authorized         bool
	Difficulty         float64
	Extranonce1        string
	Extranonce2Size    int
	SessionID          string
	AuthorizedWorkers  map[string]struct{}
}

// V2ProtocolState holds the per-connection state the v2 framer maintains.
type V2ProtocolState struct {
	SetupComplete    bool
	ChannelID        uint32
	GroupChannelID   uint32
	ExtranoncePrefix []byte
	CurrentTarget    [32]byte
	Version          uint16
	Flags            uint32
	DeviceID         string
	LastSequence     uint32
}

// TranslationState is carried only by Proxy-mode connections: the bridge
// between a downstream v1 session and its upstream v2 counterpart.
type TranslationState struct {
	Detected         Protocol
	Target           Protocol
	JobIDForward     map[string]uint32
	JobIDReverse     map[uint32]string
	ChannelID        uint32
	Extranonce1      string
	Extranonce2Size  int
	SequenceCounter  uint32
}

// NewTranslationState returns an empty, internally-consistent translation
// state ready for the connection's first job.
func NewTranslationState() *TranslationState {
	return &TranslationState{
		JobIDForward: make(map[string]uint32),
		JobIDReverse: make(map[uint32]string),
	}
}

// Map records a v1<->v2 job-id pair, keeping the forward and reverse maps a
// bijection (spec §8 invariant).
func (t *TranslationState) Map(v1JobID string, v2JobID uint32) {
	t.JobIDForward[v1JobID] = v2JobID
	t.JobIDReverse[v2JobID] = v1JobID
}

// ResolveToV2 looks up the v2 job id for a v1 job id.
func (t *TranslationState) ResolveToV2(v1JobID string) (uint32, bool) {
	id, ok := t.JobIDForward[v1JobID]
	return id, ok
}

// ResolveToV1 looks up the v1 job id for a v2 job id.
func (t *TranslationState) ResolveToV1(v2JobID uint32) (string, bool) {
	id, ok := t.JobIDReverse[v2JobID]
	return id, ok
}

// NextSequence returns the next strictly-increasing, gap-free sequence
// number for an outbound SubmitSharesStandard message.
func (t *TranslationState) NextSequence() uint32 {
	seq := t.SequenceCounter
	t.SequenceCounter++
	return seq
}

// Connection is the central entity owned by the connection registry.
type Connection struct {
	ID                 uuid.UUID
	PeerAddress        string
	Protocol           Protocol
	State              ConnectionState
	ErrorReason        string
	CreatedAt          time.Time
	LastActivity       time.Time
	UserAgent          string
	SubscribedDiff     *float64
	Extranonce1        string
	Extranonce2Size    int
	AuthorizedWorkers  []string
	TotalShares        uint64
	ValidShares        uint64
	InvalidShares      uint64
	BlocksFound        uint64

	V1    V1ProtocolState
	V2    V2ProtocolState
	Trans *TranslationState
}

// NewConnection creates a Connecting-state connection for a freshly
// accepted byte stream, assigning it a process-unique 128-bit id.
func NewConnection(peerAddress string) *Connection {
	now := time.Now()
	return &Connection{
		ID:           uuid.New(),
		PeerAddress:  peerAddress,
		Protocol:     ProtocolUnknown,
		State:        StateConnecting,
		CreatedAt:    now,
		LastActivity: now,
		V1: V1ProtocolState{
			AuthorizedWorkers: make(map[string]struct{}),
		},
	}
}

// Touch updates LastActivity; callers must hold the registry write lock.
func (c *Connection) Touch() {
	c.LastActivity = time.Now()
}

// IdleFor reports how long the connection has been without activity.
func (c *Connection) IdleFor(now time.Time) time.Duration {
	return now.Sub(c.LastActivity)
}

// Validate enforces the Connection invariants from spec §3.
func (c *Connection) Validate() error {
	if c.LastActivity.Before(c.CreatedAt) {
		return fmt.Errorf("connection %s: last_activity before creation", c.ID)
	}
	if len(c.AuthorizedWorkers) > 0 && c.State != StateAuthenticated {
		return fmt.Errorf("connection %s: authorized workers require Authenticated state, got %s", c.ID, c.State)
	}
	if c.Extranonce2Size != 0 && (c.Extranonce2Size < 1 || c.Extranonce2Size > 8) {
		return fmt.Errorf("connection %s: extranonce2 size %d out of range [1,8]", c.ID, c.Extranonce2Size)
	}
	return nil
}

// Share is a miner's claimed solution against the connection's current
// target, as described in spec §3.
type Share struct {
	ConnectionID      uuid.UUID
	Nonce             uint32
	NTime             uint32
	ClaimedDifficulty float64
	IsValid           bool
	WinningBlockHash  string
	SubmittedAt       time.Time

	// ShareSubmission envelope fields (spec §3 ShareSubmission)
	JobID       string
	Extranonce2 string
	WorkerName  string
}

// Validate enforces the Share invariants from spec §3 against the current
// wall-clock time.
func (s *Share) Validate(now time.Time) error {
	if s.ClaimedDifficulty <= 0 {
		return fmt.Errorf("share: claimed difficulty must be > 0, got %f", s.ClaimedDifficulty)
	}
	low := now.Add(-3600 * time.Second).Unix()
	high := now.Add(300 * time.Second).Unix()
	nt := int64(s.NTime)
	if nt < low || nt > high {
		return fmt.Errorf("share: ntime %d outside [%d,%d]", nt, low, high)
	}
	if s.WinningBlockHash != "" && !s.IsValid {
		return fmt.Errorf("share: winning block hash set but is_valid=false")
	}
	return nil
}

// Fingerprint identifies a share for the duplicate-submission check in
// spec §4.3 ("same {job_id, extranonce2, ntime, nonce} on the same
// connection").
func (s *Share) Fingerprint() string {
	return fmt.Sprintf("%s|%s|%s|%d|%d", s.ConnectionID, s.JobID, s.Extranonce2, s.NTime, s.Nonce)
}

// ShareResult is the outcome of validating a Share against the share
// pipeline (spec §4.2, §4.3).
type ShareResult struct {
	Kind   ShareResultKind
	Reason string
	Hash   string
}

type ShareResultKind int

const (
	ShareValid ShareResultKind = iota
	ShareInvalid
	ShareBlock
)

func ResultValid() ShareResult             { return ShareResult{Kind: ShareValid} }
func ResultInvalid(reason string) ShareResult {
	return ShareResult{Kind: ShareInvalid, Reason: reason}
}
func ResultBlock(hash string) ShareResult { return ShareResult{Kind: ShareBlock, Hash: hash} }

// DefaultTemplateExpiry is the default WorkTemplate lifetime (spec §3).
const DefaultTemplateExpiry = 10 * time.Minute

// WorkTemplate is a block-construction skeleton shared by reference among
// every connection requesting work (spec §3).
type WorkTemplate struct {
	ID               uuid.UUID
	PreviousHash     string
	CoinbaseTx       []byte
	Transactions     [][]byte
	TransactionIDs   []string // txid hex, for merkle branch construction
	Difficulty       float64
	NetworkTarget    [32]byte
	Bits             uint32
	Version          uint32
	NTime            uint32
	Height           uint64
	Rules            []string
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// Validate enforces the WorkTemplate invariants from spec §3.
func (t *WorkTemplate) Validate() error {
	if t.Difficulty <= 0 {
		return fmt.Errorf("template %s: difficulty must be > 0", t.ID)
	}
	if len(t.CoinbaseTx) == 0 {
		return fmt.Errorf("template %s: coinbase transaction is empty", t.ID)
	}
	if !t.ExpiresAt.After(t.CreatedAt) {
		return fmt.Errorf("template %s: expiry must be after creation", t.ID)
	}
	return nil
}

// IsExpired reports whether the template has passed its expiry at now.
func (t *WorkTemplate) IsExpired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// HasRule reports whether the template's backing getblocktemplate call
// negotiated the given consensus rule (e.g. "segwit").
func (t *WorkTemplate) HasRule(rule string) bool {
	for _, r := range t.Rules {
		if r == rule {
			return true
		}
	}
	return false
}

// Job is a per-channel instantiation of a WorkTemplate (spec §3). Coinbase1
// and Coinbase2 bracket the extranonce1+extranonce2 splice point a miner
// fills in before hashing; MerkleBranch is the sibling-hash path from the
// coinbase to the template's merkle root.
type Job struct {
	IDString     string // v1: short string job id
	IDNumeric    uint32 // v2: u32 job id
	TemplateID   uuid.UUID
	Coinbase1    []byte
	Coinbase2    []byte
	MerkleRoot   []byte
	MerkleBranch [][]byte
	Bits         uint32
	Target       [32]byte
	CleanJobs    bool
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Validate enforces "job lifetime <= template lifetime" (spec §3).
func (j *Job) Validate(templateExpiry time.Time) error {
	if j.ExpiresAt.After(templateExpiry) {
		return fmt.Errorf("job %s: expiry exceeds backing template expiry", j.IDString)
	}
	return nil
}

// Worker is a named, authorised miner identity within Pool mode.
type Worker struct {
	Name             string
	ConnectionID     uuid.UUID
	Difficulty       float64
	HardwareClass    HardwareClass
	LastShareAt      time.Time
	RecentShareTimes []time.Time
	TotalShares      uint64
	ValidShares      uint64
	Hashrate         float64
}

// HardwareClass loosely buckets a miner's capability for initial
// difficulty assignment; it has no bearing on protocol correctness.
type HardwareClass int

const (
	HardwareUnknown HardwareClass = iota
	HardwareCPU
	HardwareGPU
	HardwareFPGA
	HardwareASIC
)

// AlertLevel classifies an operational Alert (spec §6 persisted state).
type AlertLevel int

const (
	AlertInfo AlertLevel = iota
	AlertWarning
	AlertCritical
)

func (l AlertLevel) String() string {
	switch l {
	case AlertWarning:
		return "warning"
	case AlertCritical:
		return "critical"
	default:
		return "info"
	}
}

// Alert is an operational event raised by a mode handler or background
// task (e.g. node RPC unreachable beyond backoff ceiling).
type Alert struct {
	ID         uuid.UUID
	Level      AlertLevel
	Title      string
	Message    string
	Component  string
	CreatedAt  time.Time
	ResolvedAt *time.Time
	Metadata   map[string]string
}

// MiningStats summarises a mode handler's operational state for
// get_statistics() (spec §4.2).
type MiningStats struct {
	Hashrate         float64
	SharesPerMinute  float64
	AcceptanceRate   float64
	Efficiency       float64
	Uptime           time.Duration
	SharesAccepted   uint64
	SharesRejected   uint64
	BlocksFound      uint64
	ConnectedMiners  int
	AuthorizedMiners int
}

// PerformanceMetrics is the periodic system snapshot persisted via the
// store/get PerformanceMetrics contract operation (spec §6).
type PerformanceMetrics struct {
	CPUPercent      float64
	MemUsedBytes    uint64
	MemTotalBytes   uint64
	NetRxBytes      uint64
	NetTxBytes      uint64
	DiskUsedBytes   uint64
	DiskTotalBytes  uint64
	OpenConnections int
	DBConnections   int
	Timestamp       time.Time
}

// ConfigHistory records an applied configuration for audit (spec §6).
type ConfigHistory struct {
	ID        int64
	ConfigRaw string
	AppliedAt time.Time
	AppliedBy string
}
