// Package session decides which top-level screen a browser context shows and
// who, if anyone, is logged in.
//
// The controller starts at website, resumes a persisted user straight into
// dashboard, and otherwise moves website → portal → setup/dashboard on user
// actions. Logout returns to website from anywhere.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"sarthi/gateway/internal/models"
)

type Outcome string

const (
	OutcomeResumed   Outcome = "resumed"
	OutcomeNoSession Outcome = "no_session"
	OutcomeDiscarded Outcome = "discarded"
)

// Resumption reports what Start found in the session slot. Recovered is set
// when a corrupt slot was discarded.
type Resumption struct {
	Outcome   Outcome
	Recovered *Error
}

type Controller struct {
	storage Storage
	key     string
	log     zerolog.Logger

	mu         sync.Mutex
	state      State
	user       *models.User
	service    string
	started    bool
	resumption Resumption

	subs    map[int]func(Snapshot)
	nextSub int
}

func NewController(storage Storage, key string, log zerolog.Logger) *Controller {
	if key == "" {
		key = DefaultKey
	}
	return &Controller{
		storage: storage,
		key:     key,
		log:     log.With().Str("component", "session").Logger(),
		state:   StateWebsite,
		service: models.ServiceOverview,
		subs:    make(map[int]func(Snapshot)),
	}
}

// Start reads the session slot once. Later calls return the first result.
// A storage failure leaves the controller unauthenticated and unstarted so
// the caller may retry.
func (c *Controller) Start(ctx context.Context) (Resumption, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return c.resumption, nil
	}

	raw, err := c.storage.Get(ctx, c.key)
	switch {
	case errors.Is(err, ErrSlotNotFound):
		c.resumption = Resumption{Outcome: OutcomeNoSession}
	case err != nil:
		return Resumption{}, fmt.Errorf("read session slot: %w", err)
	default:
		user, decodeErr := decodeUser(raw)
		if decodeErr != nil {
			recovered := &Error{Kind: KindCorruptSession, Err: decodeErr}
			if err := c.storage.Remove(ctx, c.key); err != nil {
				c.log.Warn().Err(err).Msg("discard corrupt session failed")
			}
			c.log.Debug().Err(recovered).Msg("discarded corrupt session")
			c.resumption = Resumption{Outcome: OutcomeDiscarded, Recovered: recovered}
		} else {
			c.user = &user
			c.state = StateDashboard
			c.resumption = Resumption{Outcome: OutcomeResumed}
		}
	}

	c.started = true
	c.notify()
	return c.resumption, nil
}

func decodeUser(raw string) (models.User, error) {
	var user *models.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return models.User{}, err
	}
	if user == nil {
		return models.User{}, errors.New("session slot holds null")
	}
	if user.ID == "" {
		return models.User{}, errors.New("session user has no id")
	}
	return *user, nil
}

func (c *Controller) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentSession returns a copy of the logged in user, or nil.
func (c *Controller) CurrentSession() *models.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyUser(c.user)
}

func (c *Controller) ActiveService() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.service
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() Snapshot {
	return Snapshot{
		State:         c.state,
		User:          copyUser(c.user),
		ActiveService: c.service,
	}
}

// Subscribe registers fn to receive the snapshot after every change. fn runs
// while the controller is locked and must not call back into it.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Controller) notify() {
	snap := c.snapshot()
	for _, fn := range c.subs {
		fn(snap)
	}
}

// Transition applies ev atomically. An event that does not apply to the
// current state returns ErrInvalidTransition and changes nothing.
func (c *Controller) Transition(ctx context.Context, ev Event) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.apply(ctx, ev); err != nil {
		return c.snapshot(), err
	}
	c.notify()
	return c.snapshot(), nil
}

func (c *Controller) apply(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case EventOpenPortal:
		if c.state != StateWebsite {
			return transitionError(c.state, ev.Kind)
		}
		c.state = StatePortal

	case EventBack:
		if c.state != StatePortal {
			return transitionError(c.state, ev.Kind)
		}
		c.state = StateWebsite

	case EventLoginSucceeded:
		if c.state != StatePortal {
			return transitionError(c.state, ev.Kind)
		}
		if ev.User == nil {
			return ErrMissingUser
		}
		if !ev.User.Role.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownRole, ev.User.Role)
		}
		encoded, err := json.Marshal(ev.User)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		if err := c.storage.Set(ctx, c.key, string(encoded)); err != nil {
			return fmt.Errorf("persist session: %w", err)
		}
		c.user = copyUser(ev.User)
		if ev.User.Role.NeedsSetup() {
			c.state = StateSetup
		} else {
			c.state = StateDashboard
		}
		c.log.Info().Str("user_id", ev.User.ID).Str("role", string(ev.User.Role)).Str("state", string(c.state)).Msg("login")

	case EventSetupCompleted:
		if c.state != StateSetup {
			return transitionError(c.state, ev.Kind)
		}
		c.state = StateDashboard

	case EventLogout:
		if err := c.storage.Remove(ctx, c.key); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
		if c.user != nil {
			c.log.Info().Str("user_id", c.user.ID).Msg("logout")
		}
		c.state = StateWebsite
		c.user = nil
		c.service = models.ServiceOverview

	case EventSelectService:
		if c.state != StateDashboard {
			return transitionError(c.state, ev.Kind)
		}
		if ev.Service == "" {
			return ErrEmptyService
		}
		c.service = ev.Service

	default:
		return fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev.Kind)
	}
	return nil
}

func copyUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	out := *u
	return &out
}
