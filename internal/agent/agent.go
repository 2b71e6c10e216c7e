// Package agent owns one player's link to the simulator: connection,
// startup handshake, sync barrier and the per-cycle send/receive/parse loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roboime/simlink/internal/config"
	"github.com/roboime/simlink/internal/observability"
	"github.com/roboime/simlink/internal/perception"
	"github.com/roboime/simlink/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Player   config.PlayerConfig
	Session  session.Config
	Registry *PeerRegistry
}

// Handler is called with every parsed frame in steady state. Returning an
// error stops Run.
type Handler func(ctx context.Context, a *Agent, f perception.Frame) error

type Agent struct {
	player  config.PlayerConfig
	cfg     session.Config
	conn    *Conn
	barrier *Barrier
	queue   *session.MessageQueue

	state atomic.Int32

	mu        sync.RWMutex
	lastFrame perception.Frame
	lastBytes int
	cycles    uint64

	closeOnce sync.Once
	closeErr  error
}

// Status is a point-in-time view used by the team status endpoint.
type Status struct {
	Unum      int    `json:"unum"`
	Session   string `json:"session"`
	State     string `json:"state"`
	Entities  int    `json:"entities"`
	Dropped   int    `json:"dropped"`
	Visible   bool   `json:"visible"`
	LastBytes int    `json:"last_frame_bytes"`
	Cycles    uint64 `json:"cycles"`
}

// New connects, runs both handshake commands behind the sync barrier and
// registers the connection as a peer. Registration comes last so no other
// agent nudges a connection that has not joined the scene yet.
func New(ctx context.Context, opts Options) (*Agent, error) {
	if opts.Registry == nil {
		return nil, ErrNilRegistry
	}
	if err := opts.Player.Validate(); err != nil {
		return nil, err
	}
	cfg := opts.Session.WithDefaults()
	a := &Agent{
		player:  opts.Player,
		cfg:     cfg,
		barrier: NewBarrier(opts.Registry, cfg),
		queue:   session.NewMessageQueue(),
	}
	a.setState(StateConnecting)

	label := strconv.Itoa(opts.Player.Unum)
	conn, err := Dial(ctx, opts.Player.Address(), label, cfg)
	if err != nil {
		a.setState(StateDisconnected)
		return nil, err
	}
	a.conn = conn

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	steps := []struct {
		send, wait State
		cmd        []byte
	}{
		{StateHandshakeScene, StateBarrierScene, session.SceneCommand(opts.Player.RobotType)},
		{StateHandshakeInit, StateBarrierInit, session.InitCommand(opts.Player.Unum, opts.Player.TeamName)},
	}
	for _, step := range steps {
		a.setState(step.send)
		if err := conn.Send(step.cmd); err != nil {
			a.abort()
			return nil, fmt.Errorf("%w: unum=%d %s: %v", ErrHandshakeFailed, opts.Player.Unum, step.send, err)
		}
		a.setState(step.wait)
		payload, err := a.barrier.Wait(ctx, conn)
		if err != nil {
			a.abort()
			return nil, fmt.Errorf("%w: unum=%d %s: %v", ErrHandshakeFailed, opts.Player.Unum, step.wait, err)
		}
		a.storeFrame(payload)
	}

	if cfg.WarmupRounds > 0 {
		if err := a.barrier.Warmup(ctx, conn, cfg.WarmupRounds); err != nil {
			a.abort()
			return nil, fmt.Errorf("%w: unum=%d warmup: %v", ErrHandshakeFailed, opts.Player.Unum, err)
		}
	}

	if err := opts.Registry.Add(conn); err != nil {
		a.abort()
		return nil, err
	}
	a.setState(StateSteady)
	log.Info().
		Str("agent", label).
		Str("session", conn.ID()).
		Str("team", opts.Player.TeamName).
		Int("robot_type", opts.Player.RobotType).
		Int("peers", opts.Registry.Len()).
		Msg("agent.New ready")
	return a, nil
}

func (a *Agent) abort() {
	_ = a.conn.Close()
	a.setState(StateClosed)
}

func (a *Agent) Unum() int { return a.player.Unum }
func (a *Agent) Conn() *Conn { return a.conn }
func (a *Agent) State() State { return State(a.state.Load()) }
func (a *Agent) setState(s State) { a.state.Store(int32(s)) }
func (a *Agent) QueueLen() int { return a.queue.Len() }
func (a *Agent) Player() config.PlayerConfig { return a.player }

// Commit queues msg for the next cycle.
func (a *Agent) Commit(msg []byte) error {
	return a.queue.Commit(msg)
}

// CommitBeam queues a (beam x y rot) placement command.
func (a *Agent) CommitBeam(x, y, rotation float64) error {
	return a.queue.Commit(session.BeamCommand(x, y, rotation))
}

// Step runs one cycle: flush the queue, drain the socket, parse the newest
// frame. Only connection loss is returned as an error.
func (a *Agent) Step(ctx context.Context) (perception.Frame, error) {
	if err := ctx.Err(); err != nil {
		return perception.Frame{}, err
	}
	if a.State() == StateClosed {
		return perception.Frame{}, ErrAgentClosed
	}

	label := a.conn.Label()
	switch err := a.queue.Send(a.conn); {
	case err == nil:
	case errors.Is(err, session.ErrSendDeferred):
		observability.RecordSendDeferred(label)
		log.Warn().Str("agent", label).Int("queued", a.queue.Len()).Msg("agent.Agent.Step send deferred")
	case errors.Is(err, session.ErrSendFailed):
		log.Warn().Str("agent", label).Err(err).Msg("agent.Agent.Step send failed")
	default:
		log.Warn().Str("agent", label).Err(err).Msg("agent.Agent.Step send error")
	}

	payload, err := a.conn.Receive()
	if err != nil {
		return perception.Frame{}, err
	}
	return a.storeFrame(payload), nil
}

func (a *Agent) storeFrame(payload []byte) perception.Frame {
	started := time.Now()
	f := perception.Parse(string(payload))
	elapsed := time.Since(started)

	kinds := make(map[string]int, 4)
	for _, e := range f.Entities {
		kinds[e.Kind.String()]++
	}
	observability.RecordPerception(kinds, f.Dropped, elapsed)
	if f.Dropped > 0 {
		log.Debug().
			Str("agent", a.conn.Label()).
			Int("dropped", f.Dropped).
			Msg("agent.Agent.storeFrame malformed entities")
	}

	a.mu.Lock()
	a.lastFrame = f
	a.lastBytes = len(payload)
	a.cycles++
	a.mu.Unlock()
	return f
}

// Run loops Step until ctx ends or the connection is lost, then closes the
// agent. Context cancellation is not reported as an error.
func (a *Agent) Run(ctx context.Context, handler Handler) error {
	stop := context.AfterFunc(ctx, func() { _ = a.Close() })
	defer stop()
	defer a.Close()

	for {
		f, err := a.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Str("agent", a.conn.Label()).Err(err).Msg("agent.Agent.Run fatal")
			return err
		}
		if handler == nil {
			continue
		}
		if err := handler(ctx, a, f); err != nil {
			return err
		}
	}
}

// Close is idempotent.
func (a *Agent) Close() error {
	a.closeOnce.Do(func() {
		a.setState(StateClosed)
		a.queue.Clear()
		a.closeErr = a.conn.Close()
	})
	return a.closeErr
}

// Entities returns a copy of the newest frame's entities.
func (a *Agent) Entities() []perception.Entity {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]perception.Entity, len(a.lastFrame.Entities))
	copy(out, a.lastFrame.Entities)
	return out
}

func (a *Agent) LastFrame() perception.Frame {
	a.mu.RLock()
	defer a.mu.RUnlock()
	f := a.lastFrame
	f.Entities = append([]perception.Entity(nil), f.Entities...)
	return f
}

func (a *Agent) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Status{
		Unum:      a.player.Unum,
		Session:   a.conn.ID(),
		State:     a.State().String(),
		Entities:  len(a.lastFrame.Entities),
		Dropped:   a.lastFrame.Dropped,
		Visible:   a.lastFrame.Visible,
		LastBytes: a.lastBytes,
		Cycles:    a.cycles,
	}
}
