package session

import (
	"bytes"
	"fmt"
	"sync"
)

// Transport is the connection surface MessageQueue flushes into.
type Transport interface {
	Readable() bool
	Send(payload []byte) error
}

// MessageQueue accumulates commands for one simulation cycle.
type MessageQueue struct {
	mu    sync.Mutex
	items [][]byte
}

func NewMessageQueue() *MessageQueue {
	return &MessageQueue{}
}

// Commit appends a copy of msg to the pending batch.
func (q *MessageQueue) Commit(msg []byte) error {
	if err := ValidatePayload(msg); err != nil {
		return fmt.Errorf("%w: %q", err, truncate(msg, 64))
	}
	item := make([]byte, len(msg))
	copy(item, msg)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

// Send flushes the batch plus a trailing sync marker as one frame. It skips
// the flush with ErrSendDeferred while unread inbound data is pending, and
// keeps the batch for the next cycle. Once handed to the transport the batch
// is cleared whether or not the write succeeds.
func (q *MessageQueue) Send(t Transport) error {
	q.mu.Lock()
	if t.Readable() {
		q.mu.Unlock()
		return ErrSendDeferred
	}
	items := append(q.items, SyncMarker())
	payload := bytes.Join(items, nil)
	q.items = nil
	q.mu.Unlock()

	return t.Send(payload)
}

func (q *MessageQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

func (q *MessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns a copy of the queued messages in commit order.
func (q *MessageQueue) Pending() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([][]byte, len(q.items))
	for i, item := range q.items {
		out[i] = append([]byte(nil), item...)
	}
	return out
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
