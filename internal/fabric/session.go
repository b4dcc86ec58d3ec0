package fabric

import (
	"net"

	"github.com/sv2d/sv2d/internal/miningtypes"
	"github.com/sv2d/sv2d/internal/protocol/fsm"
)

// Session binds the domain Connection to the live network resources a
// Reader/Writer pair needs to drive it: the raw conn, its outbound
// Writer, and the fsm.Machine gating its state transitions. The
// registry indexes Sessions rather than bare Connections so mode
// handlers can both read connection state and push outbound frames
// through the one lookup.
type Session struct {
	Conn    *miningtypes.Connection
	NetConn net.Conn
	Writer  *Writer
	Machine *fsm.Machine
	Cancel  func()

	handler Handler
}

// NewSession wraps a freshly accepted connection, bound to the Handler
// its Reader will dispatch decoded messages to.
func NewSession(conn *miningtypes.Connection, netConn net.Conn, writer *Writer, cancel func(), handler Handler) *Session {
	return &Session{
		Conn:    conn,
		NetConn: netConn,
		Writer:  writer,
		Machine: fsm.New(conn),
		Cancel:  cancel,
		handler: handler,
	}
}

// Send enqueues a raw outbound frame for this session's writer.
func (s *Session) Send(frame []byte) { s.Writer.Enqueue(frame) }
