package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/roboime/simlink/internal/observability"
	"github.com/roboime/simlink/internal/protocol/frame"
	"github.com/roboime/simlink/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// peekWindow bounds the deadline-based readability probe.
const peekWindow = time.Millisecond

// Conn is one agent's TCP link to the simulator.
type Conn struct {
	id     string
	label  string
	addr   string
	cfg    session.Config
	limits frame.Limits

	conn   net.Conn
	reader *bufio.Reader

	readMu  sync.Mutex
	writeMu sync.Mutex

	blocking  atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to addr, retrying while the server refuses until cfg allows
// no more attempts or ctx ends. The default config retries forever. Errors
// that retrying cannot fix return ErrDialFailed at once.
func Dial(ctx context.Context, addr, label string, cfg session.Config) (*Conn, error) {
	cfg = cfg.WithDefaults()
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	started := time.Now()

	var attempt int
	for {
		attempt++
		raw, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			observability.RecordConnectAttempt(label, true)
			c := newConn(raw, addr, label, cfg)
			log.Info().
				Str("agent", label).
				Str("session", c.id).
				Str("addr", addr).
				Int("attempts", attempt).
				Msg("agent.Conn.Dial connected")
			return c, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		observability.RecordConnectAttempt(label, false)
		if !retryableDialError(err) {
			log.Error().
				Str("agent", label).
				Str("addr", addr).
				Err(err).
				Msg("agent.Conn.Dial failed")
			return nil, fmt.Errorf("%w: addr=%s: %v", ErrDialFailed, addr, err)
		}
		log.Warn().
			Str("agent", label).
			Str("addr", addr).
			Int("attempt", attempt).
			Err(err).
			Msg("agent.Conn.Dial retry")
		if !cfg.ShouldRetryConnect(attempt, started, time.Now()) {
			return nil, fmt.Errorf("%w: addr=%s attempts=%d: %v", session.ErrConnectGaveUp, addr, attempt, err)
		}
		if err := session.Sleep(ctx, session.NextBackoffDelay(cfg.Backoff, attempt, rng)); err != nil {
			return nil, err
		}
	}
}

// retryableDialError reports whether the simulator is simply not up yet:
// refused, reset or timed-out connects. Bad addresses and name resolution
// failures are not retried.
func retryableDialError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func newConn(raw net.Conn, addr, label string, cfg session.Config) *Conn {
	if tcp, ok := raw.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	c := &Conn{
		id:     uuid.NewString(),
		label:  label,
		addr:   addr,
		cfg:    cfg,
		limits: frame.Limits{MaxPayloadBytes: cfg.MaxFrameBytes},
		conn:   raw,
		reader: bufio.NewReaderSize(raw, cfg.ReceiveBufferSize),
	}
	c.blocking.Store(true)
	return c
}

func (c *Conn) ID() string { return c.id }
func (c *Conn) Label() string { return c.label }
func (c *Conn) Addr() string { return c.addr }
func (c *Conn) Blocking() bool { return c.blocking.Load() }

// SetBlocking switches Receive between waiting for a frame and failing
// fast with session.ErrWouldBlock.
func (c *Conn) SetBlocking(blocking bool) {
	c.blocking.Store(blocking)
}

// Send writes payload as one frame. Failures are reported as
// session.ErrSendFailed; the connection stays usable for the caller to retry.
func (c *Conn) Send(payload []byte) error {
	if c.closed.Load() {
		return fmt.Errorf("%w: connection closed", session.ErrSendFailed)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if err := frame.WriteFrame(c.conn, payload, c.limits); err != nil {
		observability.RecordSendFailure(c.label)
		return fmt.Errorf("%w: %v", session.ErrSendFailed, err)
	}
	observability.RecordFrameSent(c.label)
	return nil
}

// SendSync sends a bare sync marker.
func (c *Conn) SendSync() error {
	return c.Send(session.SyncMarker())
}

// ReceiveOne reads exactly one frame.
func (c *Conn) ReceiveOne() ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	return c.readFrameLocked()
}

// Receive drains every frame already buffered and returns the newest one.
// In non-blocking mode it returns session.ErrWouldBlock when nothing is
// readable. A read failure after at least one good frame returns that frame;
// the failure surfaces on the next call.
func (c *Conn) Receive() ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if !c.blocking.Load() && !c.readableLocked() {
		return nil, session.ErrWouldBlock
	}
	var newest []byte
	for {
		payload, err := c.readFrameLocked()
		if err != nil {
			if newest != nil {
				log.Debug().
					Str("agent", c.label).
					Err(err).
					Msg("agent.Conn.Receive keeping last frame before reset")
				return newest, nil
			}
			return nil, err
		}
		newest = payload
		if !c.readableLocked() {
			return newest, nil
		}
	}
}

// Readable reports whether inbound bytes are waiting, without blocking.
// It reports false while another goroutine is mid-receive.
func (c *Conn) Readable() bool {
	if !c.readMu.TryLock() {
		return false
	}
	defer c.readMu.Unlock()
	return c.readableLocked()
}

func (c *Conn) readableLocked() bool {
	if c.reader.Buffered() > 0 {
		return true
	}
	return c.pollReadable()
}

func (c *Conn) readFrameLocked() ([]byte, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("%w: connection closed", session.ErrConnectionReset)
	}
	deadline := time.Time{}
	if c.cfg.ReadTimeout > 0 {
		deadline = time.Now().Add(c.cfg.ReadTimeout)
	}
	_ = c.conn.SetReadDeadline(deadline)

	payload, err := frame.ReadFrame(c.reader, c.limits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrConnectionReset, err)
	}
	observability.RecordFrameReceived(c.label)
	return payload, nil
}

// peekReadable probes readability with a short read deadline.
func (c *Conn) peekReadable() bool {
	_ = c.conn.SetReadDeadline(time.Now().Add(peekWindow))
	_, err := c.reader.Peek(1)
	_ = c.conn.SetReadDeadline(time.Time{})
	if err == nil {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return false
	}
	// EOF or a broken socket: let the next read surface the reset.
	return true
}

// Close shuts the connection down. With no receive in flight it half-closes,
// drains residual inbound bytes for CloseGrace and then closes; otherwise it
// closes at once so the pending receive fails with ErrConnectionReset.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.readMu.TryLock() {
			c.drainForClose()
			c.readMu.Unlock()
		}
		c.closeErr = c.conn.Close()
		log.Debug().
			Str("agent", c.label).
			Str("session", c.id).
			Msg("agent.Conn.Close")
	})
	return c.closeErr
}

func (c *Conn) drainForClose() {
	if cw, ok := c.conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
	if c.cfg.CloseGrace <= 0 {
		return
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.CloseGrace))
	_, _ = io.Copy(io.Discard, c.reader)
}
