// Package nrepltest provides a scripted in-process nREPL server for tests.
// It speaks real bencode over a real TCP socket so client tests exercise the
// full wire path without an external process.
package nrepltest

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kennyjwilli/claude-clojure-tools/core/bencode"
	"github.com/kennyjwilli/claude-clojure-tools/nrepl"
)

// EvalFunc scripts the frames returned for one eval request. Returned frames
// are sent in order; the server injects the request's id and session into
// frames that omit them. Returning nil sends nothing, leaving the client to
// hit its deadline.
type EvalFunc func(req nrepl.Message) []nrepl.Message

// Server is a scripted nREPL server bound to a loopback port.
type Server struct {
	ln       net.Listener
	sessions atomic.Int64

	mu         sync.Mutex
	onEval     EvalFunc
	evals      []nrepl.Message
	interrupts []nrepl.Message
}

// Start binds a Server to an ephemeral loopback port and shuts it down when
// the test ends. The default eval script answers every request with a single
// "done" frame carrying value "nil".
func Start(t *testing.T) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to bind test server: %v", err)
	}

	s := &Server{ln: ln}
	s.onEval = func(req nrepl.Message) []nrepl.Message {
		return []nrepl.Message{
			{"value": "nil"},
			{"status": []any{"done"}},
		}
	}

	go s.acceptLoop()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

// Addr returns the server's host:port address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Port returns the server's bound port.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// OnEval replaces the eval script.
func (s *Server) OnEval(fn EvalFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEval = fn
}

// Evals returns every eval request received so far.
func (s *Server) Evals() []nrepl.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]nrepl.Message, len(s.evals))
	copy(out, s.evals)
	return out
}

// Interrupts returns every interrupt request received so far.
func (s *Server) Interrupts() []nrepl.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]nrepl.Message, len(s.interrupts))
	copy(out, s.interrupts)
	return out
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	dec := bencode.NewDecoder(conn)
	for {
		v, err := dec.Decode()
		if err != nil {
			return
		}
		raw, ok := v.(map[string]any)
		if !ok {
			return
		}
		req := nrepl.Message(raw)

		switch req["op"] {
		case "clone":
			session := fmt.Sprintf("session-%d", s.sessions.Add(1))
			s.send(conn, nrepl.Message{
				"id":          req.ID(),
				"new-session": session,
				"status":      []any{"done"},
			})
		case "eval":
			s.mu.Lock()
			s.evals = append(s.evals, req)
			fn := s.onEval
			s.mu.Unlock()

			for _, frame := range fn(req) {
				out := nrepl.Message{}
				for k, val := range frame {
					out[k] = val
				}
				if _, ok := out["id"]; !ok {
					out["id"] = req.ID()
				}
				if _, ok := out["session"]; !ok {
					out["session"] = req.Session()
				}
				s.send(conn, out)
			}
		case "interrupt":
			s.mu.Lock()
			s.interrupts = append(s.interrupts, req)
			s.mu.Unlock()
		}
	}
}

func (s *Server) send(conn net.Conn, msg nrepl.Message) {
	_ = bencode.Encode(conn, map[string]any(msg))
}
