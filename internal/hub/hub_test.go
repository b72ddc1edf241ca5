package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/meetlingo/meetlingo/internal/protocol"
	"github.com/meetlingo/meetlingo/internal/utils"
)

func drain(t *testing.T, c *Conn, n int) []protocol.ServerMessage {
	t.Helper()
	out := make([]protocol.ServerMessage, 0, n)
	for len(out) < n {
		select {
		case m := <-c.Messages():
			out = append(out, m)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d messages", len(out), n)
		}
	}
	return out
}

func TestPublishAssignsGaplessSequence(t *testing.T) {
	t.Parallel()

	h := New(nil, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		got, err := h.Publish(ctx, "111111", &protocol.Transcript{OriginalText: "hi"})
		if err != nil {
			t.Fatalf("Publish: %v", err)
		}
		if got.Sequence != int64(i+1) {
			t.Errorf("sequence = %d, want %d", got.Sequence, i+1)
		}
		if got.ID == "" {
			t.Error("transcript ID not assigned")
		}
	}
}

func TestConcurrentPublishTotalOrder(t *testing.T) {
	t.Parallel()

	h := New(nil, nil)
	ctx := context.Background()

	c, err := h.Join("222222")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.Publish(ctx, "222222", &protocol.Transcript{OriginalText: "x"}); err != nil {
				t.Errorf("Publish: %v", err)
			}
		}()
	}
	wg.Wait()

	msgs := drain(t, c, n)
	for i, m := range msgs {
		if m.Type != protocol.TypeTranscript {
			t.Fatalf("message %d type = %q", i, m.Type)
		}
		if m.Sequence != int64(i+1) {
			t.Errorf("delivery %d has sequence %d, want %d", i, m.Sequence, i+1)
		}
	}

	history, ok := h.History("222222")
	if !ok {
		t.Fatal("History returned ok=false")
	}
	if len(history) != n {
		t.Fatalf("history length = %d, want %d", len(history), n)
	}
	for i := 1; i < n; i++ {
		if history[i].Sequence != history[i-1].Sequence+1 {
			t.Errorf("gap between %d and %d", history[i-1].Sequence, history[i].Sequence)
		}
		if history[i].Timestamp.Before(history[i-1].Timestamp) {
			t.Errorf("timestamp decreased at sequence %d", history[i].Sequence)
		}
	}
}

func TestJoinReplaysHistoryBeforeLive(t *testing.T) {
	t.Parallel()

	h := New(nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := h.Publish(ctx, "333333", &protocol.Transcript{OriginalText: "old"}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	c, err := h.Join("333333")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := h.Publish(ctx, "333333", &protocol.Transcript{OriginalText: "live"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msgs := drain(t, c, 4)
	for i, m := range msgs {
		if m.Sequence != int64(i+1) {
			t.Errorf("delivery %d has sequence %d, want %d", i, m.Sequence, i+1)
		}
	}
	if msgs[3].OriginalText != "live" {
		t.Errorf("last message text = %q, want live", msgs[3].OriginalText)
	}
}

func TestEndBroadcastsAndRejectsLatecomers(t *testing.T) {
	t.Parallel()

	h := New(nil, nil)
	ctx := context.Background()

	c, err := h.Join("444444")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	h.End("444444", "host ended the meeting")

	msgs := drain(t, c, 1)
	if msgs[0].Type != protocol.TypeSessionEnded {
		t.Fatalf("type = %q, want session_ended", msgs[0].Type)
	}
	if msgs[0].Reason != "host ended the meeting" {
		t.Errorf("reason = %q", msgs[0].Reason)
	}

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("connection not closed after End")
	}

	// the tombstone keeps rejecting appends and joins
	if _, err := h.Publish(ctx, "444444", &protocol.Transcript{OriginalText: "too late"}); !utils.IsCode(err, utils.CodeSessionEnded) {
		t.Fatalf("Publish after End: err = %v, want SESSION_ENDED", err)
	}
	if _, err := h.Join("444444"); !utils.IsCode(err, utils.CodeSessionEnded) {
		t.Fatalf("Join after End: err = %v, want SESSION_ENDED", err)
	}

	// a new session on the reused code opens a fresh room and the log
	// restarts at 1
	h.Open("444444")
	got, err := h.Publish(ctx, "444444", &protocol.Transcript{OriginalText: "new era"})
	if err != nil {
		t.Fatalf("Publish after Open: %v", err)
	}
	if got.Sequence != 1 {
		t.Errorf("sequence after Open = %d, want 1", got.Sequence)
	}
}

func TestEndPreventsStragglerAppends(t *testing.T) {
	t.Parallel()

	h := New(nil, nil)
	ctx := context.Background()

	c, err := h.Join("999999")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := h.Publish(ctx, "999999", &protocol.Transcript{OriginalText: "before"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	drain(t, c, 1)

	h.End("999999", "host ended the meeting")

	// an utterance that was still in translation when the host ended must
	// not mint a ghost transcript
	if _, err := h.Publish(ctx, "999999", &protocol.Transcript{OriginalText: "straggler"}); !utils.IsCode(err, utils.CodeSessionEnded) {
		t.Fatalf("straggler Publish: err = %v, want SESSION_ENDED", err)
	}
	if _, ok := h.History("999999"); ok {
		t.Error("History reports a live room for an ended session")
	}

	// the next session on this code starts clean: no inherited log
	h.Open("999999")
	fresh, err := h.Join("999999")
	if err != nil {
		t.Fatalf("Join after Open: %v", err)
	}
	select {
	case m := <-fresh.Messages():
		t.Fatalf("fresh room replayed %q from the ended session", m.OriginalText)
	default:
	}

	got, err := h.Publish(ctx, "999999", &protocol.Transcript{OriginalText: "first"})
	if err != nil {
		t.Fatalf("Publish after Open: %v", err)
	}
	if got.Sequence != 1 {
		t.Errorf("sequence = %d, want 1", got.Sequence)
	}
}

func TestEndBeforeAnyActivityStillBlocksAppends(t *testing.T) {
	t.Parallel()

	h := New(nil, nil)

	h.End("121212", "ended before anyone joined")

	if _, err := h.Publish(context.Background(), "121212", &protocol.Transcript{OriginalText: "x"}); !utils.IsCode(err, utils.CodeSessionEnded) {
		t.Fatalf("Publish: err = %v, want SESSION_ENDED", err)
	}
	if _, err := h.Join("121212"); !utils.IsCode(err, utils.CodeSessionEnded) {
		t.Fatalf("Join: err = %v, want SESSION_ENDED", err)
	}
}

func TestSlowConnectionDroppedNotBlocking(t *testing.T) {
	t.Parallel()

	h := New(nil, nil)
	ctx := context.Background()

	slow, err := h.Join("555555")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	// never read from slow; the room must keep accepting publishes and
	// eventually evict it
	for i := 0; i < connBuffer+10; i++ {
		if _, err := h.Publish(ctx, "555555", &protocol.Transcript{OriginalText: "x"}); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}

	select {
	case <-slow.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("slow connection was not dropped")
	}
}

func TestLeaveBroadcastsUserDisconnected(t *testing.T) {
	t.Parallel()

	h := New(nil, nil)

	a, err := h.Join("666666")
	if err != nil {
		t.Fatalf("Join a: %v", err)
	}
	b, err := h.Join("666666")
	if err != nil {
		t.Fatalf("Join b: %v", err)
	}

	h.Leave(a)

	msgs := drain(t, b, 1)
	if msgs[0].Type != protocol.TypeUserDisconnected {
		t.Errorf("type = %q, want user_disconnected", msgs[0].Type)
	}

	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("left connection not closed")
	}
}

type captureSink struct {
	mu   sync.Mutex
	seen []*protocol.Transcript
}

func (s *captureSink) Enqueue(_ context.Context, t *protocol.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, t)
	return nil
}

func TestPublishForwardsToSink(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	h := New(nil, sink)

	if _, err := h.Publish(context.Background(), "777777", &protocol.Transcript{OriginalText: "persist me"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.seen) != 1 {
		t.Fatalf("sink received %d transcripts, want 1", len(sink.seen))
	}
	if sink.seen[0].Sequence != 1 || sink.seen[0].SessionCode != "777777" {
		t.Errorf("sink got seq=%d code=%q", sink.seen[0].Sequence, sink.seen[0].SessionCode)
	}
}

func TestPublishOnClosedRoom(t *testing.T) {
	t.Parallel()

	h := New(nil, nil)

	r := h.roomFor("888888")
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	if _, err := h.Publish(context.Background(), "888888", &protocol.Transcript{OriginalText: "x"}); !utils.IsCode(err, utils.CodeSessionEnded) {
		t.Fatalf("Publish on closed room: err = %v, want SESSION_ENDED", err)
	}
	if _, err := h.Join("888888"); !utils.IsCode(err, utils.CodeSessionEnded) {
		t.Fatalf("Join on closed room: err = %v, want SESSION_ENDED", err)
	}
}
