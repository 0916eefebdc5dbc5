package workers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	mongorepo "github.com/yoockh/yooproctor/internal/repositories/mongo"
	"github.com/yoockh/yooproctor/internal/services"
)

// ChunkWorkerPool drains the recording chunk stream into mongo.
type ChunkWorkerPool struct {
	Redis      redis.Cmdable
	Chunks     mongorepo.ChunkRepository
	NumWorkers int
	TTL        time.Duration

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string

	// Entries left pending longer than ReclaimIdle (a failed write or a
	// consumer that died) are claimed again every ReclaimInterval.
	ReclaimIdle     time.Duration
	ReclaimInterval time.Duration
}

func (p *ChunkWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Chunks == nil {
		return errors.New("ChunkWorkerPool missing dependency: Redis/Chunks must be set")
	}
	if p.Stream == "" {
		p.Stream = services.ChunkStream
	}
	if p.Group == "" {
		p.Group = "chunk-archivers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}
	if p.ReclaimIdle <= 0 {
		p.ReclaimIdle = 30 * time.Second
	}
	if p.ReclaimInterval <= 0 {
		p.ReclaimInterval = 30 * time.Second
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	go p.runReclaimer(ctx, p.ConsumerPrefix+"-reclaim")
	p.Logger.WithFields(logrus.Fields{"stream": p.Stream, "workers": p.NumWorkers}).Info("chunk archive workers started")
	return nil
}

func (p *ChunkWorkerPool) runConsumer(ctx context.Context, consumer string) {
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
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			p.Logger.WithError(err).WithField("consumer", consumer).Warn("chunk stream read failed")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				// failed writes stay pending until runReclaimer claims them
				if p.handleMsg(ctx, msg) {
					_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
				}
			}
		}
	}
}

func (p *ChunkWorkerPool) runReclaimer(ctx context.Context, consumer string) {
	t := time.NewTicker(p.ReclaimInterval)
	defer t.Stop()
	// first pass picks up whatever a previous process left pending
	for {
		if n, err := p.reclaim(ctx, consumer); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.Logger.WithError(err).Warn("chunk reclaim failed")
		} else if n > 0 {
			p.Logger.WithField("count", n).Info("reclaimed pending chunk entries")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// reclaim walks the pending entries list once, retrying entries idle for at
// least ReclaimIdle. It returns how many entries were acknowledged.
func (p *ChunkWorkerPool) reclaim(ctx context.Context, consumer string) (int, error) {
	acked := 0
	start := "0-0"
	for {
		msgs, next, err := p.Redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   p.Stream,
			Group:    p.Group,
			Consumer: consumer,
			MinIdle:  p.ReclaimIdle,
			Start:    start,
			Count:    10,
		}).Result()
		if err != nil {
			return acked, err
		}
		for _, msg := range msgs {
			if p.handleMsg(ctx, msg) {
				if err := p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err(); err == nil {
					acked++
				}
			}
		}
		if next == "" || next == "0-0" {
			return acked, nil
		}
		start = next
	}
}

// handleMsg reports whether the entry can be acknowledged. Malformed entries
// are acknowledged and dropped.
func (p *ChunkWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) bool {
	log := p.Logger.WithField("redis_id", msg.ID)

	chunk, err := services.DecodeChunk(msg.Values, p.TTL)
	if err != nil {
		log.WithError(err).Warn("dropping malformed chunk entry")
		return true
	}
	log = log.WithFields(logrus.Fields{
		"interview_id": chunk.InterviewID,
		"seq":          chunk.Seq,
	})

	if err := p.Chunks.Upsert(ctx, chunk); err != nil {
		log.WithError(err).Error("chunk archive write failed")
		return false
	}
	log.WithField("size_bytes", chunk.Size).Debug("chunk archived")
	return true
}
