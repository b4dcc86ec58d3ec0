package binary

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Serializer accumulates a single message payload into a reusable buffer,
// matching the teacher's zero-allocation-on-reuse Serializer.
type Serializer struct {
	buf *bytes.Buffer
}

// NewSerializer returns a Serializer with a pre-allocated buffer.
func NewSerializer() *Serializer {
	return &Serializer{buf: bytes.NewBuffer(make([]byte, 0, 512))}
}

func (s *Serializer) Reset()          { s.buf.Reset() }
func (s *Serializer) Bytes() []byte   { return s.buf.Bytes() }
func (s *Serializer) Len() int        { return s.buf.Len() }

func (s *Serializer) WriteU8(v uint8) { s.buf.WriteByte(v) }

func (s *Serializer) WriteU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	s.buf.Write(b[:])
}

func (s *Serializer) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	s.buf.Write(b[:])
}

func (s *Serializer) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	s.buf.Write(b[:])
}

func (s *Serializer) WriteF32(v float32) { s.WriteU32(math.Float32bits(v)) }

func (s *Serializer) WriteBool(v bool) {
	if v {
		s.buf.WriteByte(1)
	} else {
		s.buf.WriteByte(0)
	}
}

func (s *Serializer) WriteFixedBytes(b []byte, n int) {
	if len(b) >= n {
		s.buf.Write(b[:n])
		return
	}
	s.buf.Write(b)
	for i := len(b); i < n; i++ {
		s.buf.WriteByte(0)
	}
}

func (s *Serializer) WriteSTR0_255(str string) {
	if len(str) > 255 {
		str = str[:255]
	}
	s.buf.WriteByte(byte(len(str)))
	s.buf.WriteString(str)
}

func (s *Serializer) WriteHeader(h *FrameHeader) { s.buf.Write(h.Serialize()) }

// SerializeFrame builds a complete header+payload frame for msgType.
func SerializeFrame(msgType uint8, extensionType uint8, payload []byte) []byte {
	h := &FrameHeader{ExtensionType: extensionType, MsgType: msgType, MsgLength: uint32(len(payload))}
	out := make([]byte, HeaderSize+len(payload))
	copy(out[:HeaderSize], h.Serialize())
	copy(out[HeaderSize:], payload)
	return out
}

func (s *Serializer) SerializeSetupConnection(m *SetupConnection) []byte {
	s.Reset()
	s.WriteU8(m.Protocol)
	s.WriteU16(m.MinVersion)
	s.WriteU16(m.MaxVersion)
	s.WriteU32(m.Flags)
	s.WriteSTR0_255(string(m.Endpoint))
	s.WriteSTR0_255(string(m.Vendor))
	s.WriteSTR0_255(string(m.HardwareVersion))
	s.WriteSTR0_255(string(m.FirmwareVersion))
	s.WriteSTR0_255(string(m.DeviceID))
	return s.Bytes()
}

func (s *Serializer) SerializeSetupConnectionSuccess(m *SetupConnectionSuccess) []byte {
	s.Reset()
	s.WriteU16(m.UsedVersion)
	s.WriteU32(m.Flags)
	return s.Bytes()
}

func (s *Serializer) SerializeSetupConnectionError(m *SetupConnectionError) []byte {
	s.Reset()
	s.WriteU32(m.Flags)
	s.WriteSTR0_255(string(m.ErrorCode))
	return s.Bytes()
}

func (s *Serializer) SerializeOpenStandardMiningChannel(m *OpenStandardMiningChannel) []byte {
	s.Reset()
	s.WriteU32(m.RequestID)
	s.WriteSTR0_255(string(m.UserIdentity))
	s.WriteF32(m.NominalHashrate)
	s.WriteFixedBytes(m.MaxTargetRequired[:], 32)
	return s.Bytes()
}

func (s *Serializer) SerializeOpenStandardMiningChannelSuccess(m *OpenStandardMiningChannelSuccess) []byte {
	s.Reset()
	s.WriteU32(m.RequestID)
	s.WriteU32(m.ChannelID)
	s.WriteFixedBytes(m.Target[:], 32)
	s.WriteU16(m.ExtraNonce2Size)
	s.WriteU32(m.GroupChannelID)
	return s.Bytes()
}

func (s *Serializer) SerializeOpenStandardMiningChannelError(m *OpenStandardMiningChannelError) []byte {
	s.Reset()
	s.WriteU32(m.RequestID)
	s.WriteSTR0_255(string(m.ErrorCode))
	return s.Bytes()
}

func (s *Serializer) SerializeNewMiningJob(m *NewMiningJob) []byte {
	s.Reset()
	s.WriteU32(m.ChannelID)
	s.WriteU32(m.JobID)
	s.WriteBool(m.FutureJob)
	s.WriteU32(m.Version)
	s.WriteU8(uint8(len(m.MerklePath)))
	for _, h := range m.MerklePath {
		s.WriteFixedBytes(h[:], 32)
	}
	return s.Bytes()
}

func (s *Serializer) SerializeSetNewPrevHash(m *SetNewPrevHash) []byte {
	s.Reset()
	s.WriteU32(m.ChannelID)
	s.WriteU32(m.JobID)
	s.WriteFixedBytes(m.PrevHash[:], 32)
	s.WriteU32(m.MinNTime)
	s.WriteU32(m.NBits)
	return s.Bytes()
}

func (s *Serializer) SerializeSubmitSharesStandard(m *SubmitSharesStandard) []byte {
	s.Reset()
	s.WriteU32(m.ChannelID)
	s.WriteU32(m.SequenceNum)
	s.WriteU32(m.JobID)
	s.WriteU32(m.Nonce)
	s.WriteU32(m.NTime)
	s.WriteU32(m.Version)
	return s.Bytes()
}

func (s *Serializer) SerializeSubmitSharesSuccess(m *SubmitSharesSuccess) []byte {
	s.Reset()
	s.WriteU32(m.ChannelID)
	s.WriteU32(m.LastSequenceNum)
	s.WriteU32(m.NewSubmits)
	s.WriteU64(m.NewDifficulty)
	return s.Bytes()
}

func (s *Serializer) SerializeSubmitSharesError(m *SubmitSharesError) []byte {
	s.Reset()
	s.WriteU32(m.ChannelID)
	s.WriteU32(m.SequenceNum)
	s.WriteSTR0_255(string(m.ErrorCode))
	return s.Bytes()
}

func (s *Serializer) SerializeSetTarget(m *SetTarget) []byte {
	s.Reset()
	s.WriteU32(m.ChannelID)
	s.WriteFixedBytes(m.MaxTarget[:], 32)
	return s.Bytes()
}

func (s *Serializer) SerializeReconnect(m *Reconnect) []byte {
	s.Reset()
	s.WriteSTR0_255(string(m.NewHost))
	s.WriteU16(m.NewPort)
	return s.Bytes()
}

func (s *Serializer) SerializeCloseChannel(m *CloseChannel) []byte {
	s.Reset()
	s.WriteU32(m.ChannelID)
	s.WriteSTR0_255(string(m.Reason))
	return s.Bytes()
}

// Deserializer walks a payload buffer, matching the teacher's cursor-based
// Deserializer.
type Deserializer struct {
	data []byte
	pos  int
}

func NewDeserializer(data []byte) *Deserializer { return &Deserializer{data: data} }

func (d *Deserializer) Remaining() int { return len(d.data) - d.pos }

func (d *Deserializer) ReadU8() (uint8, error) {
	if d.Remaining() < 1 {
		return 0, ErrTruncatedMessage
	}
	v := d.data[d.pos]
	d.pos++
	return v, nil
}

func (d *Deserializer) ReadU16() (uint16, error) {
	if d.Remaining() < 2 {
		return 0, ErrTruncatedMessage
	}
	v := binary.LittleEndian.Uint16(d.data[d.pos : d.pos+2])
	d.pos += 2
	return v, nil
}

func (d *Deserializer) ReadU32() (uint32, error) {
	if d.Remaining() < 4 {
		return 0, ErrTruncatedMessage
	}
	v := binary.LittleEndian.Uint32(d.data[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}

func (d *Deserializer) ReadU64() (uint64, error) {
	if d.Remaining() < 8 {
		return 0, ErrTruncatedMessage
	}
	v := binary.LittleEndian.Uint64(d.data[d.pos : d.pos+8])
	d.pos += 8
	return v, nil
}

func (d *Deserializer) ReadF32() (float32, error) {
	v, err := d.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (d *Deserializer) ReadBool() (bool, error) {
	v, err := d.ReadU8()
	return v != 0, err
}

func (d *Deserializer) ReadFixedBytes(n int) ([]byte, error) {
	if d.Remaining() < n {
		return nil, ErrTruncatedMessage
	}
	b := make([]byte, n)
	copy(b, d.data[d.pos:d.pos+n])
	d.pos += n
	return b, nil
}

func (d *Deserializer) ReadSTR0_255() (STR0_255, error) {
	s, n, err := ParseSTR0_255(d.data[d.pos:])
	if err != nil {
		return "", err
	}
	d.pos += n
	return s, nil
}

func ParseSetupConnection(payload []byte) (*SetupConnection, error) {
	d := NewDeserializer(payload)
	m := &SetupConnection{}
	var err error
	if m.Protocol, err = d.ReadU8(); err != nil {
		return nil, err
	}
	if m.MinVersion, err = d.ReadU16(); err != nil {
		return nil, err
	}
	if m.MaxVersion, err = d.ReadU16(); err != nil {
		return nil, err
	}
	if m.Flags, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.Endpoint, err = d.ReadSTR0_255(); err != nil {
		return nil, err
	}
	if m.Vendor, err = d.ReadSTR0_255(); err != nil {
		return nil, err
	}
	if m.HardwareVersion, err = d.ReadSTR0_255(); err != nil {
		return nil, err
	}
	if m.FirmwareVersion, err = d.ReadSTR0_255(); err != nil {
		return nil, err
	}
	if m.DeviceID, err = d.ReadSTR0_255(); err != nil {
		return nil, err
	}
	return m, nil
}

func ParseOpenStandardMiningChannel(payload []byte) (*OpenStandardMiningChannel, error) {
	d := NewDeserializer(payload)
	m := &OpenStandardMiningChannel{}
	var err error
	if m.RequestID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.UserIdentity, err = d.ReadSTR0_255(); err != nil {
		return nil, err
	}
	if m.NominalHashrate, err = d.ReadF32(); err != nil {
		return nil, err
	}
	target, err := d.ReadFixedBytes(32)
	if err != nil {
		return nil, err
	}
	copy(m.MaxTargetRequired[:], target)
	return m, nil
}

func ParseSubmitSharesStandard(payload []byte) (*SubmitSharesStandard, error) {
	d := NewDeserializer(payload)
	m := &SubmitSharesStandard{}
	var err error
	if m.ChannelID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.SequenceNum, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.JobID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.Nonce, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.NTime, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.Version, err = d.ReadU32(); err != nil {
		return nil, err
	}
	return m, nil
}

func ParseNewMiningJob(payload []byte) (*NewMiningJob, error) {
	d := NewDeserializer(payload)
	m := &NewMiningJob{}
	var err error
	if m.ChannelID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.JobID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.FutureJob, err = d.ReadBool(); err != nil {
		return nil, err
	}
	if m.Version, err = d.ReadU32(); err != nil {
		return nil, err
	}
	count, err := d.ReadU8()
	if err != nil {
		return nil, err
	}
	m.MerklePath = make([][32]byte, count)
	for i := 0; i < int(count); i++ {
		branch, err := d.ReadFixedBytes(32)
		if err != nil {
			return nil, err
		}
		copy(m.MerklePath[i][:], branch)
	}
	return m, nil
}

func ParseSetNewPrevHash(payload []byte) (*SetNewPrevHash, error) {
	d := NewDeserializer(payload)
	m := &SetNewPrevHash{}
	var err error
	if m.ChannelID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.JobID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	prevHash, err := d.ReadFixedBytes(32)
	if err != nil {
		return nil, err
	}
	copy(m.PrevHash[:], prevHash)
	if m.MinNTime, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.NBits, err = d.ReadU32(); err != nil {
		return nil, err
	}
	return m, nil
}

func ParseSetTarget(payload []byte) (*SetTarget, error) {
	d := NewDeserializer(payload)
	m := &SetTarget{}
	var err error
	if m.ChannelID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	target, err := d.ReadFixedBytes(32)
	if err != nil {
		return nil, err
	}
	copy(m.MaxTarget[:], target)
	return m, nil
}

func ParseSetupConnectionSuccess(payload []byte) (*SetupConnectionSuccess, error) {
	d := NewDeserializer(payload)
	m := &SetupConnectionSuccess{}
	var err error
	if m.UsedVersion, err = d.ReadU16(); err != nil {
		return nil, err
	}
	if m.Flags, err = d.ReadU32(); err != nil {
		return nil, err
	}
	return m, nil
}

func ParseSetupConnectionError(payload []byte) (*SetupConnectionError, error) {
	d := NewDeserializer(payload)
	m := &SetupConnectionError{}
	var err error
	if m.Flags, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.ErrorCode, err = d.ReadSTR0_255(); err != nil {
		return nil, err
	}
	return m, nil
}

func ParseOpenStandardMiningChannelSuccess(payload []byte) (*OpenStandardMiningChannelSuccess, error) {
	d := NewDeserializer(payload)
	m := &OpenStandardMiningChannelSuccess{}
	var err error
	if m.RequestID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.ChannelID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	target, err := d.ReadFixedBytes(32)
	if err != nil {
		return nil, err
	}
	copy(m.Target[:], target)
	if m.ExtraNonce2Size, err = d.ReadU16(); err != nil {
		return nil, err
	}
	if m.GroupChannelID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	return m, nil
}

func ParseOpenStandardMiningChannelError(payload []byte) (*OpenStandardMiningChannelError, error) {
	d := NewDeserializer(payload)
	m := &OpenStandardMiningChannelError{}
	var err error
	if m.RequestID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.ErrorCode, err = d.ReadSTR0_255(); err != nil {
		return nil, err
	}
	return m, nil
}

func ParseSubmitSharesSuccess(payload []byte) (*SubmitSharesSuccess, error) {
	d := NewDeserializer(payload)
	m := &SubmitSharesSuccess{}
	var err error
	if m.ChannelID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.LastSequenceNum, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.NewSubmits, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.NewDifficulty, err = d.ReadU64(); err != nil {
		return nil, err
	}
	return m, nil
}

func ParseSubmitSharesError(payload []byte) (*SubmitSharesError, error) {
	d := NewDeserializer(payload)
	m := &SubmitSharesError{}
	var err error
	if m.ChannelID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.SequenceNum, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.ErrorCode, err = d.ReadSTR0_255(); err != nil {
		return nil, err
	}
	return m, nil
}

func ParseReconnect(payload []byte) (*Reconnect, error) {
	d := NewDeserializer(payload)
	m := &Reconnect{}
	var err error
	if m.NewHost, err = d.ReadSTR0_255(); err != nil {
		return nil, err
	}
	if m.NewPort, err = d.ReadU16(); err != nil {
		return nil, err
	}
	return m, nil
}

func ParseCloseChannel(payload []byte) (*CloseChannel, error) {
	d := NewDeserializer(payload)
	m := &CloseChannel{}
	var err error
	if m.ChannelID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.Reason, err = d.ReadSTR0_255(); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeFrame serializes m into a complete base-protocol (extension_type=0)
// frame for msgType, dispatching on m's concrete type the way
// jobdecl.EncodeFrame does for its own message family.
func EncodeFrame(msgType uint8, m interface{}) ([]byte, error) {
	s := NewSerializer()
	var payload []byte
	switch v := m.(type) {
	case *SetupConnection:
		payload = s.SerializeSetupConnection(v)
	case *SetupConnectionSuccess:
		payload = s.SerializeSetupConnectionSuccess(v)
	case *SetupConnectionError:
		payload = s.SerializeSetupConnectionError(v)
	case *OpenStandardMiningChannel:
		payload = s.SerializeOpenStandardMiningChannel(v)
	case *OpenStandardMiningChannelSuccess:
		payload = s.SerializeOpenStandardMiningChannelSuccess(v)
	case *OpenStandardMiningChannelError:
		payload = s.SerializeOpenStandardMiningChannelError(v)
	case *NewMiningJob:
		payload = s.SerializeNewMiningJob(v)
	case *SetNewPrevHash:
		payload = s.SerializeSetNewPrevHash(v)
	case *SubmitSharesStandard:
		payload = s.SerializeSubmitSharesStandard(v)
	case *SubmitSharesSuccess:
		payload = s.SerializeSubmitSharesSuccess(v)
	case *SubmitSharesError:
		payload = s.SerializeSubmitSharesError(v)
	case *SetTarget:
		payload = s.SerializeSetTarget(v)
	case *Reconnect:
		payload = s.SerializeReconnect(v)
	case *CloseChannel:
		payload = s.SerializeCloseChannel(v)
	default:
		return nil, fmt.Errorf("binary: unsupported message type %T", m)
	}
	return SerializeFrame(msgType, ExtensionTypeNone, payload), nil
}

// DecodeFrame parses a base-protocol message payload by msgType.
func DecodeFrame(msgType uint8, payload []byte) (interface{}, error) {
	switch msgType {
	case MsgTypeSetupConnection:
		return ParseSetupConnection(payload)
	case MsgTypeSetupConnectionSuccess:
		return ParseSetupConnectionSuccess(payload)
	case MsgTypeSetupConnectionError:
		return ParseSetupConnectionError(payload)
	case MsgTypeOpenStandardMiningChannel:
		return ParseOpenStandardMiningChannel(payload)
	case MsgTypeOpenStandardMiningChannelSuccess:
		return ParseOpenStandardMiningChannelSuccess(payload)
	case MsgTypeOpenStandardMiningChannelError:
		return ParseOpenStandardMiningChannelError(payload)
	case MsgTypeNewMiningJob:
		return ParseNewMiningJob(payload)
	case MsgTypeSetNewPrevHash:
		return ParseSetNewPrevHash(payload)
	case MsgTypeSubmitSharesStandard:
		return ParseSubmitSharesStandard(payload)
	case MsgTypeSubmitSharesSuccess:
		return ParseSubmitSharesSuccess(payload)
	case MsgTypeSubmitSharesError:
		return ParseSubmitSharesError(payload)
	case MsgTypeSetTarget:
		return ParseSetTarget(payload)
	case MsgTypeReconnect:
		return ParseReconnect(payload)
	case MsgTypeCloseChannel:
		return ParseCloseChannel(payload)
	default:
		return nil, fmt.Errorf("binary: unknown message type 0x%02x", msgType)
	}
}

// MaxFrameLength is the spec.md §8 boundary on a v2 frame's declared
// payload length: a frame whose length field names exactly this many
// bytes is accepted, one byte more is rejected before the payload is
// read.
const MaxFrameLength = 1 << 20

// ReadFrame reads one header+payload frame from r, rejecting a declared
// length over MaxFrameLength without reading the oversized payload.
func ReadFrame(r io.Reader, maxLength uint32) (*FrameHeader, []byte, error) {
	if maxLength == 0 {
		maxLength = MaxFrameLength
	}
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, nil, err
	}
	h, err := ParseHeader(hdr[:])
	if err != nil {
		return nil, nil, err
	}
	if h.MsgLength > maxLength {
		return nil, nil, fmt.Errorf("binary: frame length %d exceeds %d: %w", h.MsgLength, maxLength, ErrInvalidMessageLength)
	}
	payload := make([]byte, h.MsgLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, nil, err
	}
	return h, payload, nil
}
