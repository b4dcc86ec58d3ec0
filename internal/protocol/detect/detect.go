// Package detect auto-detects whether an inbound connection speaks
// Stratum v1 (JSON) or v2 (binary) without consuming the bytes it
// inspects, so the chosen codec sees the full stream from byte zero
// (spec.md §4.1 hybrid-port design).
package detect

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sv2d/sv2d/internal/miningtypes"
	v2binary "github.com/sv2d/sv2d/internal/protocol/v2/binary"
)

// PeekSize is the number of leading bytes inspected to tell v1 from v2.
// Large enough to cover the v2 frame header (6 bytes).
const PeekSize = 6

// DefaultTimeout bounds how long detection waits for the first bytes
// before giving up on a connection that never sends anything.
const DefaultTimeout = 5 * time.Second

// v1JSONStart is the leading byte of every Stratum v1 JSON-RPC line.
const v1JSONStart byte = '{'

var (
	ErrDetectionTimeout = errors.New("detect: timed out waiting for first bytes")
	ErrConnectionClosed = errors.New("detect: connection closed during detection")
	ErrDetectionFailed  = errors.New("detect: could not classify protocol")
)

// PeekableConn wraps a net.Conn so bytes inspected during detection are
// still delivered to the first Read call.
type PeekableConn struct {
	net.Conn
	peeked []byte
	mu     sync.Mutex
}

// NewPeekableConn wraps conn for peek-then-read.
func NewPeekableConn(conn net.Conn) *PeekableConn {
	return &PeekableConn{Conn: conn}
}

// Peek returns the first n bytes of the stream without consuming them.
func (pc *PeekableConn) Peek(n int) ([]byte, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if len(pc.peeked) >= n {
		return pc.peeked[:n], nil
	}

	needed := n - len(pc.peeked)
	buf := make([]byte, needed)
	read, err := io.ReadFull(pc.Conn, buf)
	if read > 0 {
		pc.peeked = append(pc.peeked, buf[:read]...)
	}
	if err != nil {
		return pc.peeked, err
	}
	return pc.peeked[:n], nil
}

// Read implements io.Reader, draining any peeked bytes first.
func (pc *PeekableConn) Read(b []byte) (int, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if len(pc.peeked) > 0 {
		n := copy(b, pc.peeked)
		pc.peeked = pc.peeked[n:]
		return n, nil
	}
	return pc.Conn.Read(b)
}

// Detector classifies a connection's protocol from its first bytes.
type Detector struct {
	timeout time.Duration
}

// NewDetector returns a Detector using DefaultTimeout.
func NewDetector() *Detector { return &Detector{timeout: DefaultTimeout} }

// NewDetectorWithTimeout returns a Detector with a custom deadline.
func NewDetectorWithTimeout(timeout time.Duration) *Detector {
	return &Detector{timeout: timeout}
}

// Detect peeks at conn and classifies it, returning a PeekableConn that
// replays the peeked bytes on the next Read.
func (d *Detector) Detect(conn net.Conn) (miningtypes.Protocol, *PeekableConn, error) {
	pc := NewPeekableConn(conn)

	if d.timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(d.timeout))
	}

	peeked, err := pc.Peek(PeekSize)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return miningtypes.ProtocolUnknown, pc, ErrConnectionClosed
		}
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return miningtypes.ProtocolUnknown, pc, ErrDetectionTimeout
		}
		if len(peeked) == 0 {
			return miningtypes.ProtocolUnknown, pc, ErrDetectionFailed
		}
	}

	conn.SetReadDeadline(time.Time{})

	return classify(peeked), pc, nil
}

// maxV2FrameLength rejects any header claiming a payload of 1 MiB or more,
// per spec.md §4.1.4.
const maxV2FrameLength = 1 << 20

// knownV2MsgTypes enumerates msg_type values valid under extension_type 0.
var knownV2MsgTypes = map[uint8]bool{
	v2binary.MsgTypeSetupConnection:                  true,
	v2binary.MsgTypeSetupConnectionSuccess:           true,
	v2binary.MsgTypeSetupConnectionError:             true,
	v2binary.MsgTypeReconnect:                        true,
	v2binary.MsgTypeOpenStandardMiningChannel:        true,
	v2binary.MsgTypeOpenStandardMiningChannelSuccess: true,
	v2binary.MsgTypeOpenStandardMiningChannelError:   true,
	v2binary.MsgTypeNewMiningJob:                     true,
	v2binary.MsgTypeSetNewPrevHash:                   true,
	v2binary.MsgTypeSetTarget:                        true,
	v2binary.MsgTypeCloseChannel:                     true,
	v2binary.MsgTypeSubmitSharesStandard:             true,
	v2binary.MsgTypeSubmitSharesSuccess:              true,
	v2binary.MsgTypeSubmitSharesError:                true,
}

// knownJobDeclMsgTypes enumerates the msg_type values this daemon
// recognizes under extension_type 1 (job declaration, spec.md §4.3).
var knownJobDeclMsgTypes = map[uint8]bool{
	0x50: true, // AllocateMiningJobToken
	0x51: true, // AllocateMiningJobTokenSuccess
	0x53: true, // DeclareMiningJob
	0x54: true, // DeclareMiningJobSuccess
}

// classify inspects the leading bytes of a stream and reports which
// protocol they belong to. Per spec.md §4.1.4: v1 is recognized by a
// leading '{'; v2 is recognized when extension_type is 0 or 1, msg_type
// is in the known table for that extension, and the declared length is
// under 1 MiB. Anything else defaults to v1.
func classify(data []byte) miningtypes.Protocol {
	if len(data) == 0 {
		return miningtypes.ProtocolUnknown
	}

	if data[0] == v1JSONStart {
		return miningtypes.ProtocolV1
	}

	if len(data) >= v2binary.HeaderSize {
		extType, msgType := data[0], data[1]
		length := binary.LittleEndian.Uint32(data[2:6])

		var known bool
		switch extType {
		case 0:
			known = knownV2MsgTypes[msgType]
		case 1:
			known = knownJobDeclMsgTypes[msgType]
		}

		if known && length < maxV2FrameLength {
			return miningtypes.ProtocolV2
		}
	}

	// Neither heuristic matched; spec.md §4.1.4 defaults undetected
	// connections to v1 rather than rejecting them outright.
	return miningtypes.ProtocolV1
}

// ClassifyBytes exposes classify for unit testing against raw byte
// fixtures without a real connection.
func ClassifyBytes(data []byte) miningtypes.Protocol {
	return classify(data)
}
