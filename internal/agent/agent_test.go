package agent

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/roboime/simlink/internal/perception"
	"github.com/roboime/simlink/internal/protocol/session"
	"github.com/roboime/simlink/internal/testutil/testlog"
)

const seeReply = "(time (now 12.30))(See (B (pol 4.10 -2.41 -6.83)) (F1L (pol 12.43 -61.20 -1.30))" +
	" (L (pol 7.51 -50.35 -2.44) (pol 6.22 21.36 -2.94)))"

// simulatorHandler answers handshakes and replies to every cycle with a
// perception frame.
func simulatorHandler(_ *fakeServer, _ int, payload string, c net.Conn) {
	if isHandshake(payload) {
		reply(c, handshakeReply)
		return
	}
	reply(c, seeReply)
}

func newTestAgent(t *testing.T, s *fakeServer, unum int, reg *PeerRegistry) *Agent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a, err := New(ctx, Options{Player: s.player(unum), Session: testSessionConfig(), Registry: reg})
	if err != nil {
		t.Fatalf("new agent %d: %v", unum, err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAgentHandshakeSendsSceneThenInit(t *testing.T) {
	testlog.Start(t)
	s := startFakeServer(t, simulatorHandler)
	reg := NewPeerRegistry()
	a := newTestAgent(t, s, 1, reg)

	got := s.frames(0)
	if len(got) != 2 {
		t.Fatalf("expected 2 handshake frames, got=%q", got)
	}
	if got[0] != "(scene rsg/agent/nao/nao_hetero.rsg 0)" || got[1] != "(init (unum 1) (teamname RoboIME))" {
		t.Fatalf("unexpected handshake: %q", got)
	}
	if a.State() != StateSteady {
		t.Fatalf("state got=%s", a.State())
	}
	if reg.Len() != 1 || reg.Snapshot()[0].ID() != a.Conn().ID() {
		t.Fatalf("agent not registered after handshake")
	}
}

// The second agent's handshake is only acknowledged once the first agent's
// connection has been nudged, as the simulator does while it waits for all
// connected agents to sync.
func TestAgentBarrierNudgesEarlierAgent(t *testing.T) {
	testlog.Start(t)
	firstSynced := make(chan struct{})
	var once sync.Once

	s := startFakeServer(t, func(s *fakeServer, idx int, payload string, c net.Conn) {
		switch {
		case idx == 0 && isHandshake(payload):
			reply(c, handshakeReply)
		case idx == 0 && payload == "(syn)" && s.conn(1) != nil:
			once.Do(func() { close(firstSynced) })
		case idx == 1 && isHandshake(payload):
			select {
			case <-firstSynced:
				reply(c, handshakeReply)
			case <-time.After(3 * time.Second):
			}
		}
	})
	reg := NewPeerRegistry()
	a := newTestAgent(t, s, 1, reg)
	if got := len(s.frames(0)); got != 2 {
		t.Fatalf("first agent should not be nudged before others join, frames=%d", got)
	}

	b := newTestAgent(t, s, 2, reg)
	if a.State() != StateSteady || b.State() != StateSteady {
		t.Fatalf("states a=%s b=%s", a.State(), b.State())
	}
	if reg.Len() != 2 {
		t.Fatalf("registry len got=%d", reg.Len())
	}
	synced := false
	for _, f := range s.frames(0) {
		if f == "(syn)" {
			synced = true
		}
	}
	if !synced {
		t.Fatalf("first agent never received a nudge: %q", s.frames(0))
	}
	if got := s.frames(1)[0]; got != "(scene rsg/agent/nao/nao_hetero.rsg 1)" {
		t.Fatalf("second agent scene got=%q", got)
	}
}

func TestAgentStepFlushesAndParses(t *testing.T) {
	testlog.Start(t)
	s := startFakeServer(t, simulatorHandler)
	a := newTestAgent(t, s, 1, NewPeerRegistry())

	if err := a.CommitBeam(-14, 0, 0); err != nil {
		t.Fatalf("commit beam: %v", err)
	}
	if err := a.Commit([]byte("(he1 0.5)")); err != nil {
		t.Fatalf("commit: %v", err)
	}
	f, err := a.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if got := s.frames(0)[2]; got != "(beam -14 0 0)(he1 0.5)(syn)" {
		t.Fatalf("unexpected batch: %q", got)
	}
	if !f.Visible || len(f.Entities) != 3 {
		t.Fatalf("unexpected frame: %+v", f)
	}
	if f.Entities[0].Kind != perception.KindBall || f.Entities[2].Kind != perception.KindFieldLine {
		t.Fatalf("unexpected kinds: %+v", f.Entities)
	}

	ents := a.Entities()
	ents[0].Label = "mutated"
	if a.Entities()[0].Label != "B" {
		t.Fatalf("Entities must return a copy")
	}
	st := a.Status()
	if st.Unum != 1 || st.State != "steady" || st.Entities != 3 || st.LastBytes != len(seeReply) {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestAgentStepDefersWhileInboundPending(t *testing.T) {
	testlog.Start(t)
	s := startFakeServer(t, simulatorHandler)
	a := newTestAgent(t, s, 1, NewPeerRegistry())

	reply(s.conn(0), "(time (now 0.02))")
	waitFor(t, "inbound frame", a.Conn().Readable)

	if err := a.CommitBeam(1, 2, 90); err != nil {
		t.Fatalf("commit: %v", err)
	}
	f, err := a.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if f.Visible || len(f.Entities) != 0 {
		t.Fatalf("frame without perception block should be empty: %+v", f)
	}
	if a.QueueLen() != 1 || len(s.frames(0)) != 2 {
		t.Fatalf("batch should be deferred: queue=%d frames=%q", a.QueueLen(), s.frames(0))
	}

	if _, err := a.Step(context.Background()); err != nil {
		t.Fatalf("second step: %v", err)
	}
	if got := s.frames(0)[2]; got != "(beam 1 2 90)(syn)" {
		t.Fatalf("deferred batch got=%q", got)
	}
	if a.QueueLen() != 0 {
		t.Fatalf("queue not cleared after flush")
	}
}

func TestAgentRunStopsOnCancel(t *testing.T) {
	testlog.Start(t)
	s := startFakeServer(t, simulatorHandler)
	a := newTestAgent(t, s, 1, NewPeerRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var frames atomic.Int32
	err := a.Run(ctx, func(ctx context.Context, _ *Agent, f perception.Frame) error {
		if !f.Visible {
			t.Errorf("expected perception in steady frames")
		}
		if frames.Add(1) == 3 {
			cancel()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run after cancel should return nil, got=%v", err)
	}
	if frames.Load() != 3 {
		t.Fatalf("handler calls got=%d", frames.Load())
	}
	if a.State() != StateClosed {
		t.Fatalf("state after run got=%s", a.State())
	}
}

func TestAgentRunReturnsConnectionReset(t *testing.T) {
	testlog.Start(t)
	s := startFakeServer(t, func(_ *fakeServer, _ int, payload string, c net.Conn) {
		if isHandshake(payload) {
			reply(c, handshakeReply)
			return
		}
		_ = c.Close()
	})
	a := newTestAgent(t, s, 1, NewPeerRegistry())

	err := a.Run(context.Background(), nil)
	if !errors.Is(err, session.ErrConnectionReset) {
		t.Fatalf("expected ErrConnectionReset, got=%v", err)
	}
	if _, err := a.Step(context.Background()); !errors.Is(err, ErrAgentClosed) {
		t.Fatalf("step after close got=%v", err)
	}
}

func TestAgentNewCancelledDuringHandshake(t *testing.T) {
	testlog.Start(t)
	s := startFakeServer(t, nil)
	reg := NewPeerRegistry()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := New(ctx, Options{Player: s.player(1), Session: testSessionConfig(), Registry: reg})
	if !errors.Is(err, ErrHandshakeFailed) {
		t.Fatalf("expected ErrHandshakeFailed, got=%v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("failed agent must not be registered")
	}
	if got := s.frames(0); len(got) != 1 || !strings.HasPrefix(got[0], "(scene ") {
		t.Fatalf("unexpected frames: %q", got)
	}
}

func TestAgentNewRequiresRegistry(t *testing.T) {
	testlog.Start(t)
	if _, err := New(context.Background(), Options{}); !errors.Is(err, ErrNilRegistry) {
		t.Fatalf("expected ErrNilRegistry, got=%v", err)
	}
}
