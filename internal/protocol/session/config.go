package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines connection/barrier tunables for one agent session.
type Config struct {
	// ConnectTimeout bounds a single dial attempt.
	ConnectTimeout time.Duration
	// MaxConnectAttempts and ConnectGiveUpAfter are unbounded when zero.
	MaxConnectAttempts int
	ConnectGiveUpAfter time.Duration
	Backoff            BackoffConfig

	// ReadTimeout applies to blocking receives; zero blocks until the server replies.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	ReceiveBufferSize int
	MaxFrameBytes     uint32

	BarrierYield       time.Duration
	BarrierMaxAttempts int
	DrainPeers         bool
	WarmupRounds       int

	CloseGrace time.Duration
}

// DefaultConfig mirrors the simulator's reference agent: retry every second
// forever, 64KiB receive buffer, 1ms barrier yield.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 2 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: time.Second,
			Multiplier:   1.0,
			MaxDelay:     time.Second,
			Jitter:       false,
		},
		ReceiveBufferSize: 64 * 1024,
		MaxFrameBytes:     1 << 20,
		BarrierYield:      time.Millisecond,
		DrainPeers:        true,
		CloseGrace:        50 * time.Millisecond,
	}
}

// WithDefaults fills zero-valued fields that must be positive.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	if c.ReceiveBufferSize <= 0 {
		c.ReceiveBufferSize = def.ReceiveBufferSize
	}
	if c.MaxFrameBytes == 0 {
		c.MaxFrameBytes = def.MaxFrameBytes
	}
	if c.BarrierYield <= 0 {
		c.BarrierYield = def.BarrierYield
	}
	if c.WarmupRounds < 0 {
		c.WarmupRounds = 0
	}
	if c.CloseGrace < 0 {
		c.CloseGrace = 0
	}
	return c
}

// ShouldRetryConnect reports whether another dial attempt is allowed after
// attempt failures that started at startedAt.
func (c Config) ShouldRetryConnect(attempt int, startedAt, now time.Time) bool {
	if c.MaxConnectAttempts > 0 && attempt >= c.MaxConnectAttempts {
		return false
	}
	if c.ConnectGiveUpAfter > 0 && now.Sub(startedAt) >= c.ConnectGiveUpAfter {
		return false
	}
	return true
}
