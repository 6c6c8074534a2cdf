package session

import "sarthi/gateway/internal/models"

// State is the top-level screen of a browser context.
type State string

const (
	StateWebsite   State = "website"
	StatePortal    State = "portal"
	StateSetup     State = "setup"
	StateDashboard State = "dashboard"
)

// Authenticated reports whether the state requires a current user.
func (s State) Authenticated() bool {
	return s == StateSetup || s == StateDashboard
}

type EventKind string

const (
	EventOpenPortal     EventKind = "open_portal"
	EventBack           EventKind = "back"
	EventLoginSucceeded EventKind = "login_succeeded"
	EventSetupCompleted EventKind = "setup_completed"
	EventLogout         EventKind = "logout"
	EventSelectService  EventKind = "select_service"
)

type Event struct {
	Kind    EventKind
	User    *models.User
	Service string
}

func OpenPortal() Event { return Event{Kind: EventOpenPortal} }

func Back() Event { return Event{Kind: EventBack} }

func LoginSucceeded(user models.User) Event {
	return Event{Kind: EventLoginSucceeded, User: &user}
}

func SetupCompleted() Event { return Event{Kind: EventSetupCompleted} }

func Logout() Event { return Event{Kind: EventLogout} }

func SelectService(name string) Event {
	return Event{Kind: EventSelectService, Service: name}
}

// Snapshot is what subscribers and the HTTP surface see.
type Snapshot struct {
	State         State        `json:"state"`
	User          *models.User `json:"currentUser"`
	ActiveService string       `json:"activeService"`
}
