package ingest

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

const queueKey = "ingest:events"

// Queue decouples webhook acknowledgement from event processing. With a
// Redis client, Enqueue pushes the event onto a list and a background
// worker drains it; without one, Enqueue processes inline so single-node
// deployments need no extra infrastructure.
type Queue struct {
	redis *redis.Client
	proc  *Processor

	cancel context.CancelFunc
	done   chan struct{}
}

// NewQueue creates the event queue. redisClient may be nil.
func NewQueue(redisClient *redis.Client, proc *Processor) *Queue {
	return &Queue{redis: redisClient, proc: proc}
}

// Enqueue accepts one event for processing. With Redis this returns as
// soon as the event is durably queued.
func (q *Queue) Enqueue(ctx context.Context, ev *Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if q.redis == nil {
		return q.proc.Process(ctx, ev)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return q.redis.LPush(ctx, queueKey, data).Err()
}

// Start launches the background drain worker. No-op without Redis.
func (q *Queue) Start() {
	if q.redis == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.done = make(chan struct{})

	go func() {
		defer close(q.done)
		log.Printf("[Ingest] Queue worker started")
		for ctx.Err() == nil {
			q.drainOne(ctx)
		}
	}()
}

func (q *Queue) drainOne(ctx context.Context) {
	res, err := q.redis.BRPop(ctx, 5*time.Second, queueKey).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			logger.Warn("ingest: queue pop failed", "error", err)
			time.Sleep(time.Second)
		}
		return
	}
	// BRPop returns [key, value].
	if len(res) != 2 {
		return
	}

	var ev Event
	if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
		logger.Warn("ingest: malformed queued event dropped", "error", err)
		return
	}
	if err := q.proc.Process(ctx, &ev); err != nil {
		logger.Error("ingest: event processing failed", "type", ev.Type, "error", err)
	}
}

// Stop halts the drain worker.
func (q *Queue) Stop() {
	if q.cancel == nil {
		return
	}
	q.cancel()
	<-q.done
	log.Printf("[Ingest] Queue worker stopped")
}
