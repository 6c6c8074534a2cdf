package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"sarthi/gateway/internal/offline"
	"sarthi/gateway/internal/queue"
)

// Processor runs offline lifecycle tasks against the shared generation
// store.
type Processor struct {
	manager *offline.Manager
	logger  zerolog.Logger
}

// ErrForeignGeneration leaves a task pending for a worker that serves the
// task's cache tag.
var ErrForeignGeneration = errors.New("task belongs to another cache generation")

type TaskPayload struct {
	Type   string `json:"type"`
	TaskID string `json:"taskId"`
	Tag    string `json:"tag"`
	Target string `json:"target"`
}

func NewProcessor(manager *offline.Manager, logger zerolog.Logger) *Processor {
	return &Processor{
		manager: manager,
		logger:  logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	log := p.logger.With().Str("type", payload.Type).Str("task_id", payload.TaskID).Str("task_tag", payload.Tag).Logger()

	if payload.Tag != p.manager.Tag() {
		return p.foreign(ctx, log, payload)
	}

	switch payload.Type {
	case queue.TaskInstall:
		return p.handleInstall(ctx, log)
	case queue.TaskActivate:
		return p.handleSweep(ctx, log)
	case queue.TaskPurge:
		return p.handlePurge(ctx, log, payload)
	default:
		log.Warn().Msg("unknown task type")
		return nil
	}
}

// foreign handles a task enqueued for a different cache tag. While that
// generation still exists another worker may serve it, so the task stays
// pending; once it is gone the task is stale and is acked.
func (p *Processor) foreign(ctx context.Context, log zerolog.Logger, payload TaskPayload) error {
	if payload.Tag == "" {
		log.Warn().Msg("task without cache tag dropped")
		return nil
	}
	known, err := p.manager.Known(ctx, payload.Tag)
	if err != nil {
		return err
	}
	if !known {
		log.Info().Msg("task for a retired generation dropped")
		return nil
	}
	return fmt.Errorf("%w: %s", ErrForeignGeneration, payload.Tag)
}

func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

func (p *Processor) handleInstall(ctx context.Context, log zerolog.Logger) error {
	if err := p.manager.Install(ctx); err != nil {
		return err
	}
	log.Info().Str("cache_tag", p.manager.Tag()).Msg("generation pre-warmed")
	return nil
}

func (p *Processor) handleSweep(ctx context.Context, log zerolog.Logger) error {
	deleted, err := p.manager.Sweep(ctx)
	if err != nil {
		return err
	}
	log.Info().Strs("deleted", deleted).Msg("stale generations swept")
	return nil
}

func (p *Processor) handlePurge(ctx context.Context, log zerolog.Logger, payload TaskPayload) error {
	if payload.Target == "" {
		log.Warn().Msg("purge without target dropped")
		return nil
	}
	removed, err := p.manager.Purge(ctx, payload.Target)
	if errors.Is(err, offline.ErrCurrentGeneration) || errors.Is(err, offline.ErrNewerGeneration) {
		log.Warn().Err(err).Str("stale_tag", payload.Target).Msg("refusing to purge generation")
		return nil
	}
	if err != nil {
		return err
	}
	log.Info().Str("stale_tag", payload.Target).Bool("removed", removed).Msg("generation purged")
	return nil
}
