// Package session owns the signed-in state of the client: the status machine,
// the cached profile, the refresh coordinator and the realtime lifecycle that
// follows authentication.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-task-client/api"
	"github.com/jrsteele09/go-task-client/credentials"
	"github.com/jrsteele09/go-task-client/internal/metrics"
	"github.com/jrsteele09/go-task-client/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AuthAPI is the subset of api.Client the session drives.
type AuthAPI interface {
	Login(ctx context.Context, req api.LoginRequest) (*api.AuthResult, error)
	Register(ctx context.Context, req api.RegisterRequest) (*api.AuthResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (*api.AuthResult, error)
	Logout(ctx context.Context) error
	GetProfile(ctx context.Context) (*users.Profile, error)
	UpdateProfile(ctx context.Context, req api.UpdateProfileRequest) (*users.Profile, error)
	ChangePassword(ctx context.Context, req api.ChangePasswordRequest) error
}

// Realtime is the part of the realtime bridge the session controls.
// Connect must not block on the network.
type Realtime interface {
	Connect(accessToken, userID string)
	Disconnect()
	IsConnected() bool
}

var _ AuthAPI = (*api.Client)(nil)

type observer struct {
	id int
	fn func(Snapshot)
}

// Service is the session state machine. Construct one per process with New.
type Service struct {
	api      AuthAPI
	store    credentials.Store
	realtime Realtime
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	nowTime  func() time.Time

	mu        sync.RWMutex
	snapshot  Snapshot
	observers []observer
	nextObsID int

	initOnce sync.Once
	initErr  error

	// sessionMu guards generation, which changes whenever a session ends or a
	// new one begins.
	sessionMu  sync.Mutex
	generation uint64

	coord refreshCoordinator
}

// Option configures a Service.
type Option func(*Service)

// WithNowFunc sets the clock used for expiry checks (primarily for testing).
func WithNowFunc(nowFunc func() time.Time) Option {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New builds a Service in the idle state. rt may be nil when realtime is disabled.
func New(authAPI AuthAPI, store credentials.Store, rt Realtime, options ...Option) (*Service, error) {
	if authAPI == nil {
		return nil, errors.New("[session.New] auth api is required")
	}
	if store == nil {
		return nil, errors.New("[session.New] credential store is required")
	}

	s := &Service{
		api:      authAPI,
		store:    store,
		realtime: rt,
		logger:   log.Logger,
		nowTime:  time.Now,
		snapshot: Snapshot{Status: StatusIdle},
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func (s *Service) Status() Status {
	return s.Snapshot().Status
}

func (s *Service) CurrentUser() *users.Profile {
	return s.Snapshot().User
}

func (s *Service) IsAuthenticated() bool {
	return s.Snapshot().IsAuthenticated()
}

func (s *Service) IsLoading() bool {
	return s.Snapshot().IsLoading()
}

func (s *Service) DisplayName() string {
	return s.Snapshot().DisplayName()
}

func (s *Service) Initials() string {
	return s.Snapshot().Initials()
}

// Subscribe registers fn for every subsequent state change. Observers run on
// the goroutine that caused the change, in registration order, and must not
// block or call back into the Service's lifecycle methods. The returned func
// removes the observer.
func (s *Service) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextObsID++
	id := s.nextObsID
	s.observers = append(s.observers, observer{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *Service) setState(status Status, user *users.Profile) {
	if user != nil {
		u := *user
		user = &u
	}
	next := Snapshot{Status: status, User: user}

	s.mu.Lock()
	s.snapshot = next
	observers := make([]observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	s.metrics.Transition(status.String())
	s.logger.Debug().Str("status", status.String()).Bool("hasUser", user != nil).Msg("session state changed")
	for _, o := range observers {
		o.fn(next)
	}
}

// Initialize restores a previous session from the store. Only the first call
// does any work; later calls return the first result.
func (s *Service) Initialize(ctx context.Context) error {
	s.initOnce.Do(func() {
		s.initErr = s.initialize(ctx)
	})
	return s.initErr
}

func (s *Service) initialize(_ context.Context) error {
	cred, err := s.store.Get()
	if err != nil {
		s.logger.Err(err).Msg("failed to read stored credential")
	}
	profile, err := s.store.GetProfile()
	if err != nil {
		s.logger.Err(err).Msg("failed to read cached profile")
	}

	if cred != nil && !cred.Expired(s.nowTime()) && profile != nil {
		s.setState(StatusAuthenticated, profile)
		s.connectRealtime(cred.AccessToken, profile.ID)
		return nil
	}

	if cred != nil {
		s.logger.Info().Time("expiresAt", cred.ExpiresAt).Msg("stored session is no longer valid, clearing")
	}
	if err := s.clearLocal(); err != nil {
		s.setState(StatusUnauthenticated, nil)
		return errors.Wrap(err, "[Service.Initialize] clear stored session")
	}
	s.setState(StatusUnauthenticated, nil)
	return nil
}

func (s *Service) Login(ctx context.Context, req api.LoginRequest) error {
	s.endGeneration()
	s.setState(StatusLoading, nil)
	res, err := s.api.Login(ctx, req)
	if err != nil {
		s.expire()
		return errors.Wrap(err, "[Service.Login]")
	}
	return errors.Wrap(s.establish(ctx, res), "[Service.Login]")
}

func (s *Service) Register(ctx context.Context, req api.RegisterRequest) error {
	s.endGeneration()
	s.setState(StatusLoading, nil)
	res, err := s.api.Register(ctx, req)
	if err != nil {
		s.expire()
		return errors.Wrap(err, "[Service.Register]")
	}
	return errors.Wrap(s.establish(ctx, res), "[Service.Register]")
}

// establish stores a fresh auth result and moves to authenticated.
func (s *Service) establish(ctx context.Context, res *api.AuthResult) error {
	cred := credentials.New(res.Tokens.AccessToken, res.Tokens.RefreshToken)
	s.sessionMu.Lock()
	s.generation++
	err := s.store.Save(cred, res.User)
	s.sessionMu.Unlock()
	if err != nil {
		s.expire()
		return errors.Wrap(err, "store credential")
	}

	profile := res.User
	if profile == nil {
		p, err := s.api.GetProfile(ctx)
		if err != nil {
			s.expire()
			return fmt.Errorf("%w: %w", ErrMissingProfile, err)
		}
		if err := s.store.PutProfile(*p); err != nil {
			s.expire()
			return errors.Wrap(err, "store profile")
		}
		profile = p
	}

	s.setState(StatusAuthenticated, profile)
	s.connectRealtime(cred.AccessToken, profile.ID)
	return nil
}

// Logout always ends unauthenticated with an empty store. The server call is
// best-effort and its failure is only logged.
func (s *Service) Logout(ctx context.Context) error {
	s.endGeneration()
	s.setState(StatusLoading, s.CurrentUser())

	cred, err := s.store.Get()
	if err != nil {
		s.logger.Err(err).Msg("failed to read credential before logout")
	}
	if cred != nil {
		if err := s.api.Logout(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("server logout failed, clearing local session anyway")
		}
	}

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	return errors.Wrap(s.expireLocked(), "[Service.Logout] clear stored session")
}

// LoadProfile fetches the profile and refreshes the cached copy.
func (s *Service) LoadProfile(ctx context.Context) (*users.Profile, error) {
	p, err := s.api.GetProfile(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.LoadProfile]")
	}
	if err := s.store.PutProfile(*p); err != nil {
		return nil, errors.Wrap(err, "[Service.LoadProfile] store profile")
	}

	cred, err := s.store.Get()
	if err != nil {
		return nil, errors.Wrap(err, "[Service.LoadProfile] read credential")
	}
	if cred != nil {
		s.setState(StatusAuthenticated, p)
	}
	return p, nil
}

func (s *Service) UpdateProfile(ctx context.Context, req api.UpdateProfileRequest) (*users.Profile, error) {
	if !s.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	p, err := s.api.UpdateProfile(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.UpdateProfile]")
	}
	if err := s.store.PutProfile(*p); err != nil {
		return nil, errors.Wrap(err, "[Service.UpdateProfile] store profile")
	}

	snap := s.Snapshot()
	s.setState(snap.Status, p)
	return p, nil
}

func (s *Service) ChangePassword(ctx context.Context, req api.ChangePasswordRequest) error {
	if !s.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	return errors.Wrap(s.api.ChangePassword(ctx, req), "[Service.ChangePassword]")
}

// clearLocal wipes the store and disconnects realtime without touching the
// server.
func (s *Service) clearLocal() error {
	if s.realtime != nil {
		s.realtime.Disconnect()
	}
	return s.store.Clear()
}

func (s *Service) connectRealtime(accessToken, userID string) {
	if s.realtime == nil {
		return
	}
	s.realtime.Connect(accessToken, userID)
}
