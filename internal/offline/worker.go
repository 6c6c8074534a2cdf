package offline

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"sarthi/gateway/internal/cachestore"
)

type EventKind string

const (
	EventInstall  EventKind = "install"
	EventActivate EventKind = "activate"
	EventFetch    EventKind = "fetch"
)

type Event struct {
	Kind    EventKind
	Ctx     context.Context
	Request *Request
	reply   chan Result
}

type Result struct {
	Response *cachestore.Snapshot
	Err      error
}

// Worker is the message-driven face of a Manager. Install and activate are
// handled one at a time in arrival order; every fetch runs on its own.
type Worker struct {
	manager   *Manager
	log       zerolog.Logger
	mailbox   chan Event
	lifecycle chan Event
	done      chan struct{}
	inflight  sync.WaitGroup
}

func NewWorker(manager *Manager, log zerolog.Logger) *Worker {
	return &Worker{
		manager:   manager,
		log:       log.With().Str("component", "offline_worker").Logger(),
		mailbox:   make(chan Event),
		lifecycle: make(chan Event, 16),
		done:      make(chan struct{}),
	}
}

func (w *Worker) Manager() *Manager {
	return w.manager
}

// Run dispatches events until ctx is cancelled, then waits for in-flight
// work and pending background writes.
func (w *Worker) Run(ctx context.Context) error {
	var lifecycleDone sync.WaitGroup
	lifecycleDone.Add(1)
	go func() {
		defer lifecycleDone.Done()
		for ev := range w.lifecycle {
			w.handle(ev)
		}
	}()

	defer func() {
		close(w.done)
		close(w.lifecycle)
		lifecycleDone.Wait()
		w.inflight.Wait()
		w.manager.Drain()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-w.mailbox:
			switch ev.Kind {
			case EventInstall, EventActivate:
				select {
				case w.lifecycle <- ev:
				case <-ctx.Done():
					ev.reply <- Result{Err: ErrWorkerStopped}
					return ctx.Err()
				}
			case EventFetch:
				w.inflight.Add(1)
				go func() {
					defer w.inflight.Done()
					w.handle(ev)
				}()
			default:
				w.log.Warn().Str("kind", string(ev.Kind)).Msg("unknown event kind")
				ev.reply <- Result{Err: fmt.Errorf("unknown event kind %q", ev.Kind)}
			}
		}
	}
}

func (w *Worker) handle(ev Event) {
	var res Result
	switch ev.Kind {
	case EventInstall:
		res.Err = w.manager.Install(ev.Ctx)
	case EventActivate:
		res.Err = w.manager.Activate(ev.Ctx)
	case EventFetch:
		res.Response, res.Err = w.manager.Fetch(ev.Ctx, ev.Request)
	}
	ev.reply <- res
}

// Dispatch posts ev and waits for its result.
func (w *Worker) Dispatch(ev Event) Result {
	if ev.Ctx == nil {
		ev.Ctx = context.Background()
	}
	ev.reply = make(chan Result, 1)

	select {
	case w.mailbox <- ev:
	case <-w.done:
		return Result{Err: ErrWorkerStopped}
	case <-ev.Ctx.Done():
		return Result{Err: ev.Ctx.Err()}
	}

	select {
	case res := <-ev.reply:
		return res
	case <-ev.Ctx.Done():
		return Result{Err: ev.Ctx.Err()}
	}
}

func (w *Worker) Install(ctx context.Context) error {
	return w.Dispatch(Event{Kind: EventInstall, Ctx: ctx}).Err
}

func (w *Worker) Activate(ctx context.Context) error {
	return w.Dispatch(Event{Kind: EventActivate, Ctx: ctx}).Err
}

func (w *Worker) Fetch(ctx context.Context, req *Request) (*cachestore.Snapshot, error) {
	res := w.Dispatch(Event{Kind: EventFetch, Ctx: ctx, Request: req})
	return res.Response, res.Err
}
