// Package binary implements the Stratum v2 binary wire format: the
// 6-byte frame header, length-prefixed strings, and the mining message
// catalogue (spec.md §4.1).
package binary

import (
	"encoding/binary"
	"errors"
)

// Message type identifiers, matching the spec.md §4.1.2 catalogue
// exactly for the standard-channel messages it names. Reconnect,
// SetNewPrevHash, SetTarget, and CloseChannel are not in that table;
// they fill slots the table leaves open and carry the retarget,
// new-tip, and teardown signals spec.md's prose describes without
// assigning them wire IDs (§4.2.3 reconnect task, §4.1.6 disconnect
// path, vardiff retargeting).
const (
	MsgTypeSetupConnection        uint8 = 0x00
	MsgTypeSetupConnectionSuccess uint8 = 0x01
	MsgTypeSetupConnectionError   uint8 = 0x02
	MsgTypeReconnect              uint8 = 0x03

	MsgTypeOpenStandardMiningChannel        uint8 = 0x10
	MsgTypeOpenStandardMiningChannelSuccess uint8 = 0x11
	MsgTypeOpenStandardMiningChannelError   uint8 = 0x12

	MsgTypeNewMiningJob   uint8 = 0x15
	MsgTypeSetNewPrevHash uint8 = 0x16
	MsgTypeSetTarget      uint8 = 0x17
	MsgTypeCloseChannel   uint8 = 0x18

	MsgTypeSubmitSharesStandard uint8 = 0x1a
	MsgTypeSubmitSharesSuccess  uint8 = 0x1c
	MsgTypeSubmitSharesError    uint8 = 0x1d
)

// ExtensionTypeNone marks extension_type 0, the base mining protocol.
// ExtensionTypeJobDeclaration (value 1) lives in package jobdecl, which
// owns that extension's message catalogue.
const ExtensionTypeNone uint8 = 0x00

// Numeric error codes. The *Error messages in this package carry their
// error code as a STR0_255 string, not as one of these values.
const (
	ErrUnknownMessage       uint8 = 0x00
	ErrInvalidExtensionType uint8 = 0x01
	ErrInvalidChannelID     uint8 = 0x02
	ErrInvalidJobID         uint8 = 0x03
	ErrInvalidTarget        uint8 = 0x04
	ErrInvalidShare         uint8 = 0x05
	ErrStaleShare           uint8 = 0x06
	ErrDuplicateShare       uint8 = 0x07
	ErrLowDifficultyShare   uint8 = 0x08
	ErrUnauthorized         uint8 = 0x09
	ErrNotSubscribed        uint8 = 0x0A
)

var (
	ErrInvalidMessageLength = errors.New("binary: invalid message length")
	ErrUnsupportedMessage   = errors.New("binary: unsupported message type")
	ErrInvalidHeader        = errors.New("binary: invalid frame header")
	ErrTruncatedMessage     = errors.New("binary: truncated message")
)

// HeaderSize is the frame header length in bytes.
const HeaderSize = 6

// FrameHeader is the 6-byte envelope preceding every v2 payload:
// extension_type (u8) | msg_type (u8) | length (u32, little-endian).
type FrameHeader struct {
	ExtensionType uint8
	MsgType       uint8
	MsgLength     uint32
}

// Serialize encodes the header.
func (h *FrameHeader) Serialize() []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = h.ExtensionType
	buf[1] = h.MsgType
	binary.LittleEndian.PutUint32(buf[2:6], h.MsgLength)
	return buf
}

// ParseHeader decodes a header from the front of data.
func ParseHeader(data []byte) (*FrameHeader, error) {
	if len(data) < HeaderSize {
		return nil, ErrInvalidHeader
	}
	return &FrameHeader{
		ExtensionType: data[0],
		MsgType:       data[1],
		MsgLength:     binary.LittleEndian.Uint32(data[2:6]),
	}, nil
}

// STR0_255 is a string with an 8-bit length prefix (max 255 bytes).
type STR0_255 string

// Serialize encodes the string with its length prefix.
func (s STR0_255) Serialize() []byte {
	str := string(s)
	if len(str) > 255 {
		str = str[:255]
	}
	buf := make([]byte, 1+len(str))
	buf[0] = byte(len(str))
	copy(buf[1:], str)
	return buf
}

// ParseSTR0_255 decodes a length-prefixed string, returning the number of
// bytes consumed.
func ParseSTR0_255(data []byte) (STR0_255, int, error) {
	if len(data) < 1 {
		return "", 0, ErrTruncatedMessage
	}
	length := int(data[0])
	if len(data) < 1+length {
		return "", 0, ErrTruncatedMessage
	}
	return STR0_255(data[1 : 1+length]), 1 + length, nil
}

// SetupConnection is sent by the client to initiate a v2 session.
type SetupConnection struct {
	Protocol        uint8
	MinVersion      uint16
	MaxVersion      uint16
	Flags           uint32
	Endpoint        STR0_255
	Vendor          STR0_255
	HardwareVersion STR0_255
	FirmwareVersion STR0_255
	DeviceID        STR0_255
}

// SetupConnectionSuccess confirms a negotiated session.
type SetupConnectionSuccess struct {
	UsedVersion uint16
	Flags       uint32
}

// SetupConnectionError reports why SetupConnection was refused.
type SetupConnectionError struct {
	Flags     uint32
	ErrorCode STR0_255
}

// OpenStandardMiningChannel requests a new mining channel.
type OpenStandardMiningChannel struct {
	RequestID         uint32
	UserIdentity      STR0_255
	NominalHashrate   float32
	MaxTargetRequired [32]byte
}

// OpenStandardMiningChannelSuccess confirms a channel was opened.
type OpenStandardMiningChannelSuccess struct {
	RequestID       uint32
	ChannelID       uint32
	Target          [32]byte
	ExtraNonce2Size uint16
	GroupChannelID  uint32
}

// OpenStandardMiningChannelError reports a channel-open failure.
type OpenStandardMiningChannelError struct {
	RequestID uint32
	ErrorCode STR0_255
}

// NewMiningJob announces a new job on a channel. MerklePath holds the
// branch hashes needed to fold a coinbase into the job's merkle root,
// each 32 bytes, outermost-first.
type NewMiningJob struct {
	ChannelID  uint32
	JobID      uint32
	FutureJob  bool
	Version    uint32
	MerklePath [][32]byte
}

// SetNewPrevHash updates the previous block hash a job builds on.
type SetNewPrevHash struct {
	ChannelID uint32
	JobID     uint32
	PrevHash  [32]byte
	MinNTime  uint32
	NBits     uint32
}

// SubmitSharesStandard is a miner's share submission on a channel.
type SubmitSharesStandard struct {
	ChannelID   uint32
	SequenceNum uint32
	JobID       uint32
	Nonce       uint32
	NTime       uint32
	Version     uint32
}

// SubmitSharesSuccess acknowledges one or more accepted shares.
type SubmitSharesSuccess struct {
	ChannelID       uint32
	LastSequenceNum uint32
	NewSubmits      uint32
	NewDifficulty   uint64
}

// SubmitSharesError reports why a submitted share was rejected.
type SubmitSharesError struct {
	ChannelID   uint32
	SequenceNum uint32
	ErrorCode   STR0_255
}

// SetTarget updates the mining target for a channel.
type SetTarget struct {
	ChannelID uint32
	MaxTarget [32]byte
}

// Reconnect instructs the client to reconnect elsewhere (spec.md Proxy
// failover and Client-mode upstream-switch paths).
type Reconnect struct {
	NewHost STR0_255
	NewPort uint16
}

// CloseChannel closes a previously opened channel.
type CloseChannel struct {
	ChannelID uint32
	Reason    STR0_255
}
