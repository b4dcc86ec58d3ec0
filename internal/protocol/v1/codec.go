package v1

import (
	"bufio"
	"fmt"
	"io"
)

// DefaultMaxLineBytes bounds a single v1 frame at the exact 1 MiB boundary
// spec.md §8 specifies: a line of exactly this length is accepted, one byte
// longer closes the connection with a Protocol error.
const DefaultMaxLineBytes = 1 << 20

// Codec reads and writes newline-delimited Stratum v1 JSON frames over a
// connection, matching the teacher's bufio.Scanner read-loop idiom
// (internal/stratum/server.go) generalised into a reusable type.
type Codec struct {
	scanner *bufio.Scanner
	w       io.Writer
}

// NewCodec wraps rw for Stratum v1 framing.
func NewCodec(r io.Reader, w io.Writer) *Codec {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), DefaultMaxLineBytes)
	return &Codec{scanner: scanner, w: w}
}

// ReadRequest blocks until the next line arrives and parses it as a
// Request. It returns io.EOF when the peer closed the connection.
func (c *Codec) ReadRequest() (*Request, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return nil, fmt.Errorf("v1: read line: %w", err)
		}
		return nil, io.EOF
	}
	return ParseRequest(c.scanner.Bytes())
}

// WriteResponse writes r as a single JSON line.
func (c *Codec) WriteResponse(r *Response) error {
	line, err := MarshalLine(r)
	if err != nil {
		return err
	}
	_, err = c.w.Write(line)
	return err
}

// WriteNotification writes n as a single JSON line.
func (c *Codec) WriteNotification(n *Notification) error {
	line, err := MarshalLine(n)
	if err != nil {
		return err
	}
	_, err = c.w.Write(line)
	return err
}
