package nrepl

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/kennyjwilli/claude-clojure-tools/core/bencode"
)

// Conn owns one TCP socket to an nREPL server and frames messages with the
// bencode codec. Connections are single-use: a caller dials one, performs a
// bounded sequence of sends and receives, and closes it on every exit path.
type Conn struct {
	sock        net.Conn
	dec         *bencode.Decoder
	readTimeout time.Duration
}

// Dial opens a connection to addr. When readTimeout is positive, every
// Receive fails with ErrTimeout if no frame arrives within the bound.
func Dial(addr string, readTimeout time.Duration) (*Conn, error) {
	sock, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nREPL server at %s: %w", addr, err)
	}
	return &Conn{
		sock:        sock,
		dec:         bencode.NewDecoder(sock),
		readTimeout: readTimeout,
	}, nil
}

const dialTimeout = 10 * time.Second

// Send writes one message to the server.
func (c *Conn) Send(msg Message) error {
	if err := bencode.Encode(c.sock, map[string]any(msg)); err != nil {
		return fmt.Errorf("failed to send %q message: %w", msg["op"], err)
	}
	return nil
}

// Receive reads the next frame from the server. A frame that is not a
// dictionary is a protocol error. When the connection's read deadline
// expires, the returned error wraps ErrTimeout.
func (c *Conn) Receive() (Message, error) {
	if c.readTimeout > 0 {
		if err := c.sock.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return nil, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}

	v, err := c.dec.Decode()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w: no frame within %v", ErrTimeout, c.readTimeout)
		}
		return nil, err
	}

	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: frame is %T, want dictionary", bencode.ErrProtocol, v)
	}
	return Message(m), nil
}

// Close releases the underlying socket.
func (c *Conn) Close() error {
	return c.sock.Close()
}
