package fabric

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/sv2d/sv2d/internal/protocol/v1"
)

// stubHandler answers mining.subscribe and records connect/disconnect
// calls, enough to exercise the Acceptor/Reader/Writer wiring end to
// end without depending on internal/mode.
type stubHandler struct {
	connected    chan struct{}
	disconnected chan string
}

func newStubHandler() *stubHandler {
	return &stubHandler{connected: make(chan struct{}, 1), disconnected: make(chan string, 1)}
}

func (h *stubHandler) OnConnect(sess *Session) { h.connected <- struct{}{} }

func (h *stubHandler) HandleV1(sess *Session, req *v1.Request) (*v1.Response, error) {
	return v1.NewSubscribeResponse(req.ID, "sub-1", "aabbccdd", 4), nil
}

func (h *stubHandler) HandleV2(sess *Session, msgType uint8, msg interface{}) (uint8, interface{}, bool, error) {
	return 0, nil, false, nil
}

func (h *stubHandler) OnDisconnect(sess *Session, reason string) { h.disconnected <- reason }

func TestAcceptorV1SubscribeRoundTrip(t *testing.T) {
	registry := NewRegistry(0)
	handler := newStubHandler()
	acceptor := NewAcceptor(registry, handler, 8)

	ctx, cancel := context.WithCancel(context.Background())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ln.Close()
	addr := ln.Addr().String()

	serveDone := make(chan error, 1)
	go func() { serveDone <- acceptor.Serve(ctx, addr) }()

	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(`{"id":1,"method":"mining.subscribe","params":[]}` + "\n"))
	require.NoError(t, err)

	select {
	case <-handler.connected:
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnect was not called")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "sub-1")
	assert.Contains(t, line, "aabbccdd")

	conn.Close()
	select {
	case <-handler.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnect was not called")
	}

	cancel()
	select {
	case <-serveDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestNextAcceptRetryDelayDoublesAndCaps(t *testing.T) {
	delay := time.Duration(0)
	delay = nextAcceptRetryDelay(delay)
	assert.Equal(t, acceptRetryBaseDelay, delay)

	delay = nextAcceptRetryDelay(delay)
	assert.Equal(t, 2*acceptRetryBaseDelay, delay)

	delay = nextAcceptRetryDelay(delay)
	assert.Equal(t, 4*acceptRetryBaseDelay, delay)

	// Keep doubling well past the cap; it must never exceed acceptRetryMaxDelay.
	for i := 0; i < 20; i++ {
		delay = nextAcceptRetryDelay(delay)
	}
	assert.Equal(t, acceptRetryMaxDelay, delay)
}
