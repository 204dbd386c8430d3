package credentials

import "github.com/jrsteele09/go-task-client/users"

// Persisted keys.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyCurrentUser  = "currentUser"
)

// Store is the process-wide persistent home of the credential and the cached
// profile. Absence is reported as nil, nil; errors are reserved for storage
// failures. Clear removes everything in one step so no partial state is
// visible to the next read.
type Store interface {
	Put(cred Credential) error
	Get() (*Credential, error)
	PutProfile(profile users.Profile) error
	GetProfile() (*users.Profile, error)
	// Save writes the credential and, when non-nil, the profile together.
	Save(cred Credential, profile *users.Profile) error
	Clear() error
}
