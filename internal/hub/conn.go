package hub

import (
	"sync"

	"github.com/meetlingo/meetlingo/internal/protocol"
)

// Conn is one participant's live link to a session, owned by the hub for
// its lifetime. Consumers drain Messages until Done closes; buffered
// messages queued before the close (the session_ended signal included)
// are still readable afterwards.
type Conn struct {
	room *room
	ch   chan protocol.ServerMessage
	done chan struct{}

	closeOnce sync.Once

	// lastSeq is the high-water mark of delivered sequence numbers,
	// written only under the room lock.
	lastSeq int64
}

func (c *Conn) Messages() <-chan protocol.ServerMessage { return c.ch }

func (c *Conn) Done() <-chan struct{} { return c.done }

// SessionCode is the session this connection belongs to.
func (c *Conn) SessionCode() string { return c.room.code }

// LastDelivered reports the high-water mark of queued sequence numbers.
// Only meaningful once the connection is closed or while the caller
// serializes against the hub.
func (c *Conn) LastDelivered() int64 {
	c.room.mu.Lock()
	defer c.room.mu.Unlock()
	return c.lastSeq
}

func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
