package workers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/meetlingo/meetlingo/internal/models"
	"github.com/meetlingo/meetlingo/internal/protocol"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type fakeTranscriptRepo struct {
	inserted  []*models.Transcript
	insertErr error
}

func (f *fakeTranscriptRepo) Insert(_ context.Context, t *models.Transcript) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, t)
	return nil
}

func (f *fakeTranscriptRepo) ListBySession(context.Context, string) ([]models.Transcript, error) {
	return nil, nil
}

func (f *fakeTranscriptRepo) Search(context.Context, string, int) ([]models.Transcript, error) {
	return nil, nil
}

func poolWith(repo *fakeTranscriptRepo) *PersistWorkerPool {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &PersistWorkerPool{Transcripts: repo, Logger: log}
}

func streamMsg(t *testing.T, tr *protocol.Transcript) redis.XMessage {
	t.Helper()
	payload, err := json.Marshal(tr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return redis.XMessage{ID: "1-0", Values: map[string]any{"payload": string(payload)}}
}

func TestHandleMsgInsertsAndAcks(t *testing.T) {
	t.Parallel()

	repo := &fakeTranscriptRepo{}
	p := poolWith(repo)

	msg := streamMsg(t, &protocol.Transcript{
		ID:           "t-1",
		SessionCode:  "123456",
		Sequence:     7,
		SpeakerName:  "amina",
		OriginalText: "hello",
		Translations: map[string]string{"ko": "annyeong"},
	})

	if !p.handleMsg(context.Background(), msg) {
		t.Fatal("handleMsg returned false for a valid message")
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("inserted %d rows, want 1", len(repo.inserted))
	}
	row := repo.inserted[0]
	if row.SessionCode != "123456" || row.Sequence != 7 {
		t.Errorf("row = code %q seq %d", row.SessionCode, row.Sequence)
	}
}

func TestHandleMsgLeavesFailedInsertForRedelivery(t *testing.T) {
	t.Parallel()

	repo := &fakeTranscriptRepo{insertErr: errors.New("db down")}
	p := poolWith(repo)

	msg := streamMsg(t, &protocol.Transcript{SessionCode: "123456", Sequence: 1, OriginalText: "x"})
	if p.handleMsg(context.Background(), msg) {
		t.Fatal("handleMsg acked a failed insert")
	}
}

func TestHandleMsgDropsMalformedPayload(t *testing.T) {
	t.Parallel()

	repo := &fakeTranscriptRepo{}
	p := poolWith(repo)

	for _, msg := range []redis.XMessage{
		{ID: "1-0", Values: map[string]any{}},
		{ID: "2-0", Values: map[string]any{"payload": "{not json"}},
	} {
		if !p.handleMsg(context.Background(), msg) {
			t.Errorf("malformed message %s must be acked and dropped", msg.ID)
		}
	}
	if len(repo.inserted) != 0 {
		t.Errorf("inserted %d rows from garbage", len(repo.inserted))
	}
}
