package session

import "github.com/jrsteele09/go-task-client/users"

// Status is the lifecycle state of the session.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of the session. User must not be mutated by
// the receiver.
type Snapshot struct {
	Status Status
	User   *users.Profile
}

// IsAuthenticated requires both the authenticated status and a profile.
func (s Snapshot) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

func (s Snapshot) IsLoading() bool {
	return s.Status == StatusLoading
}

func (s Snapshot) DisplayName() string {
	if s.User == nil {
		return ""
	}
	return s.User.Name()
}

func (s Snapshot) Initials() string {
	if s.User == nil {
		return ""
	}
	return s.User.Initials()
}
