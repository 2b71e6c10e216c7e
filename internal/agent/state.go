package agent

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshakeScene
	StateBarrierScene
	StateHandshakeInit
	StateBarrierInit
	StateSteady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshakeScene:
		return "handshaking(1)"
	case StateBarrierScene:
		return "barrier_wait(1)"
	case StateHandshakeInit:
		return "handshaking(2)"
	case StateBarrierInit:
		return "barrier_wait(2)"
	case StateSteady:
		return "steady"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
