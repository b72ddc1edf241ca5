package workers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/meetlingo/meetlingo/internal/models"
	"github.com/meetlingo/meetlingo/internal/protocol"
	pgrepo "github.com/meetlingo/meetlingo/internal/repositories/postgres"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// PersistWorkerPool drains the transcript stream into Postgres. The
// insert is idempotent on (session_code, sequence), so unacked messages
// can be redelivered safely.
type PersistWorkerPool struct {
	Redis       *redis.Client
	Transcripts pgrepo.TranscriptRepo
	NumWorkers  int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *PersistWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Transcripts == nil {
		return errors.New("PersistWorkerPool missing dependency: Redis/Transcripts must be set")
	}
	if p.Stream == "" {
		p.Stream = DefaultStream
	}
	if p.Group == "" {
		p.Group = "transcript-writers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "w"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 3
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *PersistWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				continue
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				// ack only on success; the idempotent insert makes
				// redelivery harmless
				if p.handleMsg(ctx, msg) {
					_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
				}
			}
		}
	}
}

func (p *PersistWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) bool {
	raw, _ := msg.Values["payload"].(string)
	if raw == "" {
		p.Logger.WithField("redis_id", msg.ID).Warn("stream message without payload, dropping")
		return true
	}

	var t protocol.Transcript
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		p.Logger.WithError(err).WithField("redis_id", msg.ID).Warn("malformed transcript payload, dropping")
		return true
	}

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":     msg.ID,
		"session_code": t.SessionCode,
		"sequence":     t.Sequence,
	})

	rec, err := models.NewTranscriptRecord(&t)
	if err != nil {
		log.WithError(err).Warn("transcript record conversion failed, dropping")
		return true
	}

	if err := p.Transcripts.Insert(ctx, rec); err != nil {
		log.WithError(err).Error("transcript insert failed, leaving for redelivery")
		return false
	}
	return true
}
