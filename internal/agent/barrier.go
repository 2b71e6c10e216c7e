package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/roboime/simlink/internal/observability"
	"github.com/roboime/simlink/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// SyncConn is the connection a barrier waits on.
type SyncConn interface {
	Peer
	SetBlocking(blocking bool)
}

// Barrier waits for the server's reply to a handshake command. While the
// reply is not there it nudges every registered peer with (syn), since the
// server only advances once all connected agents have synced.
type Barrier struct {
	registry *PeerRegistry
	cfg      session.Config
}

func NewBarrier(registry *PeerRegistry, cfg session.Config) *Barrier {
	return &Barrier{registry: registry, cfg: cfg.WithDefaults()}
}

// Wait returns the first reply received on c.
func (b *Barrier) Wait(ctx context.Context, c SyncConn) ([]byte, error) {
	if b.registry == nil || b.registry.Len() == 0 {
		return c.Receive()
	}

	c.SetBlocking(false)
	defer c.SetBlocking(true)

	attempts := 0
	for {
		payload, err := c.Receive()
		if err == nil {
			log.Debug().
				Str("agent", c.Label()).
				Int("attempts", attempts).
				Msg("agent.Barrier.Wait released")
			return payload, nil
		}
		if !errors.Is(err, session.ErrWouldBlock) {
			return nil, err
		}

		attempts++
		if b.cfg.BarrierMaxAttempts > 0 && attempts >= b.cfg.BarrierMaxAttempts {
			return nil, fmt.Errorf("%w: agent=%s attempts=%d", session.ErrBarrierExhausted, c.Label(), attempts)
		}

		b.nudge(c)
		if err := session.Sleep(ctx, b.cfg.BarrierYield); err != nil {
			return nil, err
		}
	}
}

// Warmup runs rounds of (syn) to self and every peer, draining whoever has
// replied.
func (b *Barrier) Warmup(ctx context.Context, c SyncConn, rounds int) error {
	for i := 0; i < rounds; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.SendSync(); err != nil {
			log.Warn().Str("agent", c.Label()).Int("round", i).Err(err).Msg("agent.Barrier.Warmup self sync failed")
		}
		b.nudge(c)
		if c.Readable() {
			if _, err := c.Receive(); err != nil {
				return err
			}
		}
		if err := session.Sleep(ctx, b.cfg.BarrierYield); err != nil {
			return err
		}
	}
	return nil
}

func (b *Barrier) nudge(self SyncConn) {
	if b.registry == nil {
		return
	}
	for _, p := range b.registry.Snapshot() {
		if p.ID() == self.ID() {
			continue
		}
		if err := p.SendSync(); err != nil {
			log.Warn().
				Str("agent", self.Label()).
				Str("peer", p.Label()).
				Err(err).
				Msg("agent.Barrier.nudge failed")
			continue
		}
		observability.RecordBarrierNudge(p.Label())
		if b.cfg.DrainPeers && p.Readable() {
			if _, err := p.Receive(); err != nil && !errors.Is(err, session.ErrWouldBlock) {
				log.Debug().
					Str("peer", p.Label()).
					Err(err).
					Msg("agent.Barrier.nudge drain failed")
			}
		}
	}
}
