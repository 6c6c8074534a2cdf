package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"sarthi/gateway/internal/queue"
)

// Scheduler enqueues periodic generation sweeps for the lifecycle worker.
type Scheduler struct {
	cron      *cron.Cron
	producer  *queue.Producer
	tag       string
	sweepSpec string
	log       zerolog.Logger
}

// NewScheduler stamps every task with tag, the cache tag this process serves.
func NewScheduler(producer *queue.Producer, tag, sweepSpec string, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:      c,
		producer:  producer,
		tag:       tag,
		sweepSpec: sweepSpec,
		log:       log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start() error {
	if s.producer == nil || s.sweepSpec == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.sweepSpec, s.enqueueSweep); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for a running job to finish or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// EnqueueInstall asks the worker to pre-warm the current generation.
func (s *Scheduler) EnqueueInstall(ctx context.Context) {
	s.enqueue(ctx, queue.TaskInstall)
}

func (s *Scheduler) enqueueSweep() {
	s.enqueue(context.Background(), queue.TaskActivate)
}

func (s *Scheduler) enqueue(ctx context.Context, taskType string) {
	if s.producer == nil {
		return
	}
	taskID, err := s.producer.Enqueue(ctx, queue.Task{Type: taskType, Tag: s.tag})
	if err != nil {
		s.log.Error().Err(err).Str("type", taskType).Msg("enqueue task failed")
		return
	}
	s.log.Debug().Str("type", taskType).Str("task_id", taskID).Msg("task enqueued")
}
