package agent

import (
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roboime/simlink/internal/config"
	"github.com/roboime/simlink/internal/protocol/frame"
	"github.com/roboime/simlink/internal/protocol/session"
)

const handshakeReply = "(time (now 0.00))(GS (t 0.00) (pm BeforeKickOff))"

type frameHandler func(s *fakeServer, idx int, payload string, c net.Conn)

// fakeServer is a loopback stand-in for the simulator's agent port.
type fakeServer struct {
	t      *testing.T
	ln     net.Listener
	handle frameHandler

	mu       sync.Mutex
	conns    []net.Conn
	received map[int][]string
}

func startFakeServer(t *testing.T, handle frameHandler) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{t: t, ln: ln, handle: handle, received: make(map[int][]string)}
	go s.acceptLoop()
	t.Cleanup(s.close)
	return s
}

func (s *fakeServer) acceptLoop() {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		idx := len(s.conns)
		s.conns = append(s.conns, c)
		s.mu.Unlock()
		go s.serve(idx, c)
	}
}

func (s *fakeServer) serve(idx int, c net.Conn) {
	for {
		payload, err := frame.ReadFrame(c, frame.DefaultLimits())
		if err != nil {
			return
		}
		s.mu.Lock()
		s.received[idx] = append(s.received[idx], string(payload))
		s.mu.Unlock()
		if s.handle != nil {
			s.handle(s, idx, string(payload), c)
		}
	}
}

func (s *fakeServer) close() {
	_ = s.ln.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
}

func (s *fakeServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeServer) addr() string {
	return s.ln.Addr().String()
}

func (s *fakeServer) frames(idx int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received[idx]...)
}

func (s *fakeServer) conn(idx int) net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx >= len(s.conns) {
		return nil
	}
	return s.conns[idx]
}

func (s *fakeServer) player(unum int) config.PlayerConfig {
	return config.PlayerConfig{
		Host:      "127.0.0.1",
		Port:      s.port(),
		Unum:      unum,
		TeamName:  "RoboIME",
		RobotType: config.RobotTypeForUniform(unum),
	}
}

func reply(c net.Conn, payload string) {
	_ = frame.WriteFrame(c, []byte(payload), frame.DefaultLimits())
}

func isHandshake(payload string) bool {
	return strings.HasPrefix(payload, "(scene ") || strings.HasPrefix(payload, "(init ")
}

// replyToAll answers every frame, mimicking a server that ticks on each sync.
func replyToAll(msg string) frameHandler {
	return func(_ *fakeServer, _ int, _ string, c net.Conn) {
		reply(c, msg)
	}
}

func testSessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.ConnectTimeout = time.Second
	cfg.Backoff = session.BackoffConfig{
		InitialDelay: 20 * time.Millisecond,
		Multiplier:   1,
		MaxDelay:     20 * time.Millisecond,
	}
	cfg.ReadTimeout = 3 * time.Second
	cfg.WriteTimeout = time.Second
	cfg.CloseGrace = 10 * time.Millisecond
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
