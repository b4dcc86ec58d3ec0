package detect

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sv2d/sv2d/internal/miningtypes"
)

func TestClassifyBytes(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected miningtypes.Protocol
	}{
		{"v1 json", []byte(`{"id":1,"method":"mining.subscribe"}`), miningtypes.ProtocolV1},
		{"v2 setup connection", []byte{0x00, 0x00, 0x10, 0x00, 0x00, 0x00}, miningtypes.ProtocolV2},
		{"v2 job declaration", []byte{0x01, 0x50, 0x08, 0x00, 0x00, 0x00}, miningtypes.ProtocolV2},
		{"empty", []byte{}, miningtypes.ProtocolUnknown},
		{"garbage defaults to v1", []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, miningtypes.ProtocolV1},
		{"oversized length rejected as v2", []byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF}, miningtypes.ProtocolV1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyBytes(tt.data))
		})
	}
}

func TestPeekableConnPeek(t *testing.T) {
	data := []byte(`{"id":1,"method":"mining.subscribe"}`)
	conn := newMockConn(data)
	pc := NewPeekableConn(conn)

	peeked, err := pc.Peek(6)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":`), peeked)

	peeked2, err := pc.Peek(6)
	require.NoError(t, err)
	assert.Equal(t, peeked, peeked2)
}

func TestPeekableConnPeekThenRead(t *testing.T) {
	data := []byte(`{"id":1,"method":"mining.subscribe"}`)
	conn := newMockConn(data)
	pc := NewPeekableConn(conn)

	_, err := pc.Peek(6)
	require.NoError(t, err)

	buf := make([]byte, 6)
	n, err := pc.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []byte(`{"id":`), buf)

	buf2 := make([]byte, 4)
	n2, err := pc.Read(buf2)
	require.NoError(t, err)
	assert.Equal(t, 4, n2)
	assert.Equal(t, []byte(`1,"m`), buf2)
}

func TestDetectorDetectV1(t *testing.T) {
	data := []byte(`{"id":1,"method":"mining.subscribe","params":[]}` + "\n")
	conn := newMockConn(data)
	d := NewDetector()

	proto, pc, err := d.Detect(conn)
	require.NoError(t, err)
	assert.Equal(t, miningtypes.ProtocolV1, proto)

	full, err := io.ReadAll(pc)
	require.NoError(t, err)
	assert.Equal(t, data, full)
}

func TestDetectorDetectV2(t *testing.T) {
	data := []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0xAB}
	conn := newMockConn(data)
	d := NewDetector()

	proto, pc, err := d.Detect(conn)
	require.NoError(t, err)
	assert.Equal(t, miningtypes.ProtocolV2, proto)

	full, err := io.ReadAll(pc)
	require.NoError(t, err)
	assert.Equal(t, data, full)
}

func TestDetectorDetectClosedConnection(t *testing.T) {
	conn := newMockConn([]byte{})
	d := NewDetector()

	_, _, err := d.Detect(conn)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestDetectorDetectDefaultsToV1(t *testing.T) {
	data := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	conn := newMockConn(data)
	d := NewDetector()

	proto, _, err := d.Detect(conn)
	require.NoError(t, err)
	assert.Equal(t, miningtypes.ProtocolV1, proto)
}

type mockConn struct {
	reader     *bytes.Reader
	remoteAddr net.Addr
	closed     bool
	mu         sync.Mutex
}

func newMockConn(data []byte) *mockConn {
	return &mockConn{
		reader:     bytes.NewReader(data),
		remoteAddr: &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 12345},
	}
}

func (m *mockConn) Read(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, io.EOF
	}
	return m.reader.Read(b)
}

func (m *mockConn) Write(b []byte) (int, error) { return len(b), nil }

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) LocalAddr() net.Addr  { return &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 3333} }
func (m *mockConn) RemoteAddr() net.Addr { return m.remoteAddr }

func (m *mockConn) SetDeadline(t time.Time) error      { return nil }
func (m *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *mockConn) SetWriteDeadline(t time.Time) error { return nil }
