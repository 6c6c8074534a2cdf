package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"sarthi/gateway/internal/ids"
)

const (
	TaskInstall  = "install"
	TaskActivate = "activate"
	TaskPurge    = "purge"
)

// Producer appends lifecycle tasks to the stream the worker consumes.
type Producer struct {
	client *redis.Client
	stream string
}

func NewProducer(client *redis.Client, stream string) *Producer {
	return &Producer{client: client, stream: stream}
}

// Task is one lifecycle message. Tag is the cache tag of the enqueuing
// process; workers only act on tasks for their own tag. Target names the
// generation a purge removes.
type Task struct {
	Type   string
	Tag    string
	Target string
}

// Enqueue adds task and returns its task id.
func (p *Producer) Enqueue(ctx context.Context, task Task) (string, error) {
	taskID := ids.New()
	values := map[string]any{
		"type":   task.Type,
		"taskId": taskID,
		"tag":    task.Tag,
	}
	if task.Target != "" {
		values["target"] = task.Target
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Err(); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", task.Type, err)
	}
	return taskID, nil
}
