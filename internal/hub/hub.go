// Package hub is the per-session ordering and broadcast authority. Each
// session gets one room; sequence assignment, log append, and broadcast
// dispatch happen under a single room mutex so every connection observes
// transcripts in the same total order. Different sessions share nothing.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meetlingo/meetlingo/internal/protocol"
	"github.com/meetlingo/meetlingo/internal/utils"
	"github.com/sirupsen/logrus"
)

// connBuffer is the live-broadcast headroom per connection. A connection
// whose buffer fills is dropped, never allowed to stall the room.
const connBuffer = 64

// Sink receives every sequenced transcript for durable persistence.
// Delivery is best-effort; the in-memory log stays authoritative for the
// session's lifetime.
type Sink interface {
	Enqueue(ctx context.Context, t *protocol.Transcript) error
}

type Hub struct {
	log  *logrus.Logger
	sink Sink // may be nil

	mu    sync.RWMutex
	rooms map[string]*room
}

type room struct {
	code string

	mu      sync.Mutex
	closed  bool
	seq     int64
	lastTS  time.Time
	history []*protocol.Transcript
	conns   map[*Conn]struct{}
}

func New(log *logrus.Logger, sink Sink) *Hub {
	if log == nil {
		log = logrus.New()
	}
	return &Hub{
		log:   log,
		sink:  sink,
		rooms: make(map[string]*room),
	}
}

// roomFor creates the room lazily for codes the hub has never seen (a
// process restart empties the map; callers validate the code against the
// session registry first). An ended session's tombstone is returned
// as-is so its closed flag keeps rejecting appends and joins.
func (h *Hub) roomFor(code string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[code]
	if !ok {
		r = &room{code: code, conns: make(map[*Conn]struct{})}
		h.rooms[code] = r
	}
	return r
}

// Join admits a connection to a session and replays the full transcript
// log in ascending sequence order before live broadcasts resume. The
// replay is queued while holding the room lock, so a concurrent Publish
// lands either in the replay or as a later live message, never both.
func (h *Hub) Join(code string) (*Conn, error) {
	const op = "Hub.Join"

	r := h.roomFor(code)
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, utils.E(utils.CodeSessionEnded, op, "session has ended", nil)
	}

	c := &Conn{
		room: r,
		ch:   make(chan protocol.ServerMessage, len(r.history)+connBuffer),
		done: make(chan struct{}),
	}
	for _, t := range r.history {
		c.ch <- protocol.TranscriptMessage(t)
		c.lastSeq = t.Sequence
	}
	r.conns[c] = struct{}{}
	return c, nil
}

// Publish assigns the next sequence number, appends to the session log,
// and fans the transcript out to every admitted connection, including the
// submitter's own. Exactly one Publish per session is in flight at a time.
func (h *Hub) Publish(ctx context.Context, code string, draft *protocol.Transcript) (*protocol.Transcript, error) {
	const op = "Hub.Publish"

	r := h.roomFor(code)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, utils.E(utils.CodeSessionEnded, op, "session has ended", nil)
	}

	r.seq++
	t := *draft
	t.SessionCode = code
	t.Sequence = r.seq
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	// timestamps are non-decreasing with sequence
	now := time.Now().UTC()
	if now.Before(r.lastTS) {
		now = r.lastTS
	}
	r.lastTS = now
	t.Timestamp = now

	r.history = append(r.history, &t)
	r.broadcastLocked(protocol.TranscriptMessage(&t))
	r.mu.Unlock()

	// Durable copy, outside the serialized region. Rows are keyed by
	// (session_code, sequence) so stream order does not matter.
	if h.sink != nil {
		if err := h.sink.Enqueue(ctx, &t); err != nil {
			h.log.WithError(err).WithFields(logrus.Fields{
				"session_code": code,
				"sequence":     t.Sequence,
			}).Warn("transcript sink enqueue failed")
		}
	}

	return &t, nil
}

// Leave removes a connection; remaining connections are unaffected.
func (h *Hub) Leave(c *Conn) {
	if c == nil {
		return
	}
	r := c.room
	r.mu.Lock()
	if _, ok := r.conns[c]; ok {
		delete(r.conns, c)
		r.broadcastLocked(protocol.ServerMessage{
			Type:    protocol.TypeUserDisconnected,
			Message: "a participant disconnected",
		})
	}
	r.mu.Unlock()
	c.close()
}

// Open installs a fresh room for a newly created session, replacing any
// tombstone a previous session left on the same code. Called when the
// registry mints the code, before any participant can join.
func (h *Hub) Open(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rooms[code] = &room{code: code, conns: make(map[*Conn]struct{})}
}

// End broadcasts the terminal session_ended signal, force-closes every
// connection, and leaves the room behind as a closed tombstone: a
// straggler Publish (an utterance still in translation when the host
// ended) or a late Join fails with SESSION_ENDED instead of silently
// reviving the session. Idempotent.
func (h *Hub) End(code, reason string) {
	h.mu.Lock()
	r, ok := h.rooms[code]
	if !ok {
		// no activity yet; the tombstone still has to exist so nothing
		// appends after the end
		h.rooms[code] = &room{code: code, closed: true, conns: make(map[*Conn]struct{})}
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.broadcastLocked(protocol.EndedMessage(reason))
	conns := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[*Conn]struct{})
	// durable rows serve ended-session reads; the in-memory log is done
	r.history = nil
	r.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

// History returns a snapshot of the in-memory log for an active session.
// ok is false when the hub holds no live room for the code.
func (h *Hub) History(code string) ([]*protocol.Transcript, bool) {
	h.mu.RLock()
	r, ok := h.rooms[code]
	h.mu.RUnlock()
	if !ok {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false
	}
	out := make([]*protocol.Transcript, len(r.history))
	copy(out, r.history)
	return out, true
}

// broadcastLocked fans a message out without ever blocking: a connection
// that cannot keep up is dropped and must rejoin for a full replay.
// Callers hold r.mu.
func (r *room) broadcastLocked(m protocol.ServerMessage) {
	var victims []*Conn
	for c := range r.conns {
		select {
		case c.ch <- m:
			if m.Type == protocol.TypeTranscript {
				c.lastSeq = m.Sequence
			}
		default:
			victims = append(victims, c)
		}
	}
	for _, c := range victims {
		delete(r.conns, c)
		c.close()
	}
}
