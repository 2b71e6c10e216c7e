package agent

import (
	"fmt"
	"sync"
)

// Peer is the view other agents' barriers have of a registered connection.
type Peer interface {
	ID() string
	Label() string
	SendSync() error
	Readable() bool
	Receive() ([]byte, error)
}

// PeerRegistry is the append-only set of connections that finished their
// handshake. It is shared by every agent of one process.
type PeerRegistry struct {
	mu    sync.RWMutex
	peers []Peer
	ids   map[string]struct{}
}

func NewPeerRegistry() *PeerRegistry {
	return &PeerRegistry{ids: make(map[string]struct{})}
}

func (r *PeerRegistry) Add(p Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[p.ID()]; ok {
		return fmt.Errorf("%w: %s (%s)", ErrPeerExists, p.Label(), p.ID())
	}
	r.ids[p.ID()] = struct{}{}
	r.peers = append(r.peers, p)
	return nil
}

// Snapshot returns the peers registered so far, in registration order.
func (r *PeerRegistry) Snapshot() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Peer, len(r.peers))
	copy(out, r.peers)
	return out
}

func (r *PeerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
