package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sarthi/gateway/internal/queue"
)

func newProducer(t *testing.T) (*queue.Producer, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return queue.NewProducer(client, "offline:lifecycle"), client
}

func TestEnqueueInstall(t *testing.T) {
	ctx := context.Background()
	producer, client := newProducer(t)
	s := NewScheduler(producer, "sarthi-smart-offline-v5.0", "0 0 */1 * * *", zerolog.Nop())

	s.EnqueueInstall(ctx)
	s.enqueueSweep()

	entries, err := client.XRange(ctx, "offline:lifecycle", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, queue.TaskInstall, entries[0].Values["type"])
	assert.Equal(t, queue.TaskActivate, entries[1].Values["type"])
	for _, e := range entries {
		assert.Equal(t, "sarthi-smart-offline-v5.0", e.Values["tag"])
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	producer, _ := newProducer(t)
	s := NewScheduler(producer, "sarthi-smart-offline-v5.0", "every hour", zerolog.Nop())
	assert.Error(t, s.Start())
}

func TestStartAndStop(t *testing.T) {
	producer, _ := newProducer(t)
	s := NewScheduler(producer, "sarthi-smart-offline-v5.0", "0 0 */1 * * *", zerolog.Nop())
	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.NoError(t, ctx.Err())
}
