package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueuePushesToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	_, _, _, proc := fixture(true)
	q := NewQueue(client, proc)

	err := q.Enqueue(context.Background(), &Event{
		Type:             EventOpened,
		RecipientAddress: "ann@example.com",
		Timestamp:        openedAt,
	})
	require.NoError(t, err)

	n, err := client.LLen(context.Background(), queueKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDrainProcessesQueuedEvent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	dists, _, canceller, proc := fixture(true)
	q := NewQueue(client, proc)

	require.NoError(t, q.Enqueue(context.Background(), &Event{
		Type:             EventOpened,
		RecipientAddress: "ann@example.com",
		Timestamp:        openedAt,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.drainOne(ctx)

	require.Len(t, dists.advanced, 1)
	assert.Equal(t, 1, canceller.cancelled)
}

func TestDrainDropsMalformedPayload(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	dists, _, _, proc := fixture(true)
	q := NewQueue(client, proc)

	require.NoError(t, client.LPush(context.Background(), queueKey, "{not json").Err())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.drainOne(ctx)

	assert.Empty(t, dists.advanced)
	n, _ := client.LLen(context.Background(), queueKey).Result()
	assert.Zero(t, n, "malformed payloads are consumed, not requeued")
}

func TestEnqueueWithoutRedisProcessesInline(t *testing.T) {
	dists, _, _, proc := fixture(true)
	q := NewQueue(nil, proc)

	err := q.Enqueue(context.Background(), &Event{
		Type:             EventOpened,
		RecipientAddress: "ann@example.com",
		Timestamp:        openedAt,
	})
	require.NoError(t, err)
	require.Len(t, dists.advanced, 1)
}

func TestEnqueueRejectsInvalidEvent(t *testing.T) {
	_, _, _, proc := fixture(true)
	q := NewQueue(nil, proc)

	err := q.Enqueue(context.Background(), &Event{Type: "nonsense"})
	assert.Error(t, err)
}
