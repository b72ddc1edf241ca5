package workers

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/meetlingo/meetlingo/internal/protocol"
	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream carrying sequenced transcripts from
// the hub to the persistence workers.
const DefaultStream = "transcripts:stream"

// TranscriptStream is the hub's sink: every sequenced transcript goes
// onto a Redis stream and is persisted out of band. Inline audio bytes
// are stripped before enqueue; only object-storage URLs survive.
type TranscriptStream struct {
	Redis  *redis.Client
	Stream string
}

func (s *TranscriptStream) Enqueue(ctx context.Context, t *protocol.Transcript) error {
	stream := s.Stream
	if stream == "" {
		stream = DefaultStream
	}

	slim := *t
	slim.Audio = nil
	payload, err := json.Marshal(&slim)
	if err != nil {
		return err
	}

	return s.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"session_code": t.SessionCode,
			"sequence":     strconv.FormatInt(t.Sequence, 10),
			"payload":      string(payload),
		},
	}).Err()
}
