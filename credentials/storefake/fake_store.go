package storefake

import (
	"sync"

	"github.com/jrsteele09/go-task-client/credentials"
	"github.com/jrsteele09/go-task-client/users"
)

var _ credentials.Store = (*FakeStore)(nil)

// FakeStore is an in-memory credentials.Store. It does not survive restarts.
type FakeStore struct {
	mu      sync.RWMutex
	cred    *credentials.Credential
	profile *users.Profile
}

func New() *FakeStore {
	return &FakeStore{}
}

func (s *FakeStore) Put(cred credentials.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external modifications
	c := credentials.New(cred.AccessToken, cred.RefreshToken)
	s.cred = &c
	return nil
}

func (s *FakeStore) Get() (*credentials.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cred == nil {
		return nil, nil
	}
	c := *s.cred
	return &c, nil
}

func (s *FakeStore) PutProfile(profile users.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profile = &profile
	return nil
}

func (s *FakeStore) GetProfile() (*users.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.profile == nil {
		return nil, nil
	}
	p := *s.profile
	return &p, nil
}

func (s *FakeStore) Save(cred credentials.Credential, profile *users.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := credentials.New(cred.AccessToken, cred.RefreshToken)
	s.cred = &c
	if profile != nil {
		p := *profile
		s.profile = &p
	}
	return nil
}

func (s *FakeStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cred = nil
	s.profile = nil
	return nil
}

// Empty reports whether neither a credential nor a profile is held.
func (s *FakeStore) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred == nil && s.profile == nil
}
