package session

import (
	"time"

	"github.com/jrsteele09/go-auth-session/credentials"
)

// Status is where a login attempt stands.
type Status string

const (
	StatusAnonymous     Status = "anonymous"
	StatusAwaitingCode  Status = "awaiting_code"
	StatusAuthenticated Status = "authenticated"
)

func (s Status) String() string {
	return string(s)
}

// State is a snapshot of the session as seen by the UI.
type State struct {
	Status       Status
	PendingEmail string                   // Set only when AwaitingCode
	Profile      *credentials.UserProfile // Set only when Authenticated
	Expiry       time.Time                // Access token exp hint; zero when unknown
}

// Authenticated reports whether the state holds a full session.
func (s State) Authenticated() bool {
	return s.Status == StatusAuthenticated
}

func deriveState(pendingEmail string, creds credentials.Credentials) State {
	switch {
	case pendingEmail != "":
		return State{Status: StatusAwaitingCode, PendingEmail: pendingEmail}
	case creds.Complete():
		return State{
			Status:  StatusAuthenticated,
			Profile: creds.Profile,
			Expiry:  creds.Token().Expiry,
		}
	default:
		return State{Status: StatusAnonymous}
	}
}
