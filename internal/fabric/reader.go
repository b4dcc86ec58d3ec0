package fabric

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sv2d/sv2d/internal/miningtypes"
	"github.com/sv2d/sv2d/internal/protocol/detect"
	"github.com/sv2d/sv2d/internal/protocol/fsm"
	v1 "github.com/sv2d/sv2d/internal/protocol/v1"
	v2binary "github.com/sv2d/sv2d/internal/protocol/v2/binary"
)

// Handler is how a mode (Solo/Pool/Proxy/Client) plugs into the fabric:
// the Reader owns framing and state transitions, and calls out to a
// Handler for every decoded message. No Handler implementation ships in
// this repository apart from the stub in the package's tests.
type Handler interface {
	// OnConnect runs once a session's protocol has been detected and the
	// session is registered, before its first message is read.
	OnConnect(sess *Session)
	// HandleV1 processes one decoded Stratum v1 request and returns the
	// response to send back, or nil if the method expects none.
	HandleV1(sess *Session, req *v1.Request) (*v1.Response, error)
	// HandleV2 processes one decoded Stratum v2 message and returns the
	// reply message type/value to send back, or ok=false if none.
	HandleV2(sess *Session, msgType uint8, msg interface{}) (replyType uint8, reply interface{}, ok bool, err error)
	// OnDisconnect runs once after the session's read loop exits, with
	// reason describing why (io error, protocol error, peer close).
	OnDisconnect(sess *Session, reason string)
}

// DefaultReadTimeout bounds a single read on an idle connection,
// matching the teacher's per-scan 5-second SetReadDeadline.
const DefaultReadTimeout = 5 * time.Second

// Reader owns a session's read half: detect, then a protocol-specific
// decode-dispatch-reply loop, generalising the teacher's handleConnection
// goroutine (bufio.Scanner loop + inline method switch) into a
// version-agnostic shape driven by the fsm.Machine and a Handler.
type Reader struct {
	detector    *detect.Detector
	readTimeout time.Duration
	maxV2Frame  uint32
}

// NewReader builds a Reader using detector for protocol sniffing.
// readTimeout <= 0 uses DefaultReadTimeout; maxV2Frame 0 uses
// v2binary.MaxFrameLength.
func NewReader(detector *detect.Detector, readTimeout time.Duration, maxV2Frame uint32) *Reader {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &Reader{detector: detector, readTimeout: readTimeout, maxV2Frame: maxV2Frame}
}

// Run drives sess's read loop until the peer disconnects, a protocol
// error occurs, or stop is closed. It classifies the protocol on
// sess.Conn, fires the matching fsm events, and always calls
// handler.OnDisconnect exactly once before returning.
func (r *Reader) Run(sess *Session, stop <-chan struct{}) {
	detected, pc, err := r.detector.Detect(sess.NetConn)
	if err != nil {
		sess.Machine.Fire(fsm.EventDetectionTimeout)
		handlerDisconnect(sess, "detection failed: "+err.Error())
		return
	}
	sess.Conn.Protocol = detected
	if _, err := sess.Machine.Fire(fsm.EventProtocolDetected); err != nil {
		handlerDisconnect(sess, err.Error())
		return
	}

	handler := sess.handler
	handler.OnConnect(sess)

	var reason string
	switch detected {
	case miningtypes.ProtocolV1:
		reason = r.runV1(sess, pc, handler, stop)
	case miningtypes.ProtocolV2:
		reason = r.runV2(sess, pc, handler, stop)
	default:
		reason = "undetected protocol"
	}

	if reason == "" {
		sess.Machine.Fire(fsm.EventCloseRequested)
		sess.Machine.Fire(fsm.EventClosed)
	} else {
		sess.Machine.Fire(fsm.EventIOFailure)
		sess.Machine.Fire(fsm.EventClosed)
	}
	handler.OnDisconnect(sess, reason)
}

// handlerDisconnect is a defensive no-op guard for the rare case a
// session's handler field was never set (misconfigured caller); it
// keeps Run from panicking on a nil Handler before OnConnect.
func handlerDisconnect(sess *Session, reason string) {
	if sess.handler != nil {
		sess.handler.OnDisconnect(sess, reason)
	}
}

func (r *Reader) runV1(sess *Session, pc *detect.PeekableConn, handler Handler, stop <-chan struct{}) string {
	codec := v1.NewCodec(pc, sess.NetConn)
	for {
		select {
		case <-stop:
			return ""
		default:
		}
		sess.NetConn.SetReadDeadline(time.Now().Add(r.readTimeout))
		req, err := codec.ReadRequest()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ""
			}
			if isTimeout(err) {
				continue
			}
			return err.Error()
		}
		sess.Conn.Touch()

		resp, err := handler.HandleV1(sess, req)
		if err != nil {
			return err.Error()
		}
		if resp != nil {
			line, err := v1.MarshalLine(resp)
			if err != nil {
				return err.Error()
			}
			sess.Send(line)
		}
	}
}

func (r *Reader) runV2(sess *Session, pc *detect.PeekableConn, handler Handler, stop <-chan struct{}) string {
	for {
		select {
		case <-stop:
			return ""
		default:
		}
		sess.NetConn.SetReadDeadline(time.Now().Add(r.readTimeout))
		header, payload, err := v2binary.ReadFrame(pc, r.maxV2Frame)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ""
			}
			if isTimeout(err) {
				continue
			}
			return err.Error()
		}
		sess.Conn.Touch()

		msg, err := v2binary.DecodeFrame(header.MsgType, payload)
		if err != nil {
			return fmt.Sprintf("decode: %v", err)
		}

		replyType, reply, ok, err := handler.HandleV2(sess, header.MsgType, msg)
		if err != nil {
			return err.Error()
		}
		if ok {
			frame, err := v2binary.EncodeFrame(replyType, reply)
			if err != nil {
				return err.Error()
			}
			sess.Send(frame)
		}
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	var t timeouter
	if errors.As(err, &t) {
		return t.Timeout()
	}
	return false
}
