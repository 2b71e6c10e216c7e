package session

import "errors"

var (
	ErrInvalidPayload   = errors.New("session: invalid payload")
	ErrSendDeferred     = errors.New("session: send deferred, inbound data pending")
	ErrSendFailed       = errors.New("session: send failed")
	ErrConnectionReset  = errors.New("session: connection reset")
	ErrWouldBlock       = errors.New("session: receive would block")
	ErrConnectGaveUp    = errors.New("session: connect gave up")
	ErrBarrierExhausted = errors.New("session: barrier attempts exhausted")
)
