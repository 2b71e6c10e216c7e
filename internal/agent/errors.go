package agent

import "errors"

var (
	ErrPeerExists      = errors.New("agent: peer already registered")
	ErrNilRegistry     = errors.New("agent: registry is required")
	ErrAgentClosed     = errors.New("agent: closed")
	ErrHandshakeFailed = errors.New("agent: handshake failed")
	ErrDialFailed      = errors.New("agent: dial failed")
)
