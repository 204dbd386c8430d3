package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-task-client/credentials"
	apperrors "github.com/jrsteele09/go-task-client/internal/errors"
	"github.com/pkg/errors"
)

type refreshOutcome struct {
	cred credentials.Credential
	err  error
}

// refreshCoordinator allows at most one refresh call in flight. Callers that
// arrive during a cycle queue up and are released in arrival order with the
// cycle's outcome.
type refreshCoordinator struct {
	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshOutcome
}

// Refresh runs a refresh cycle, or joins the one already in flight.
// On failure the session is cleared locally and the error wraps
// ErrCredentialRejected.
func (s *Service) Refresh(ctx context.Context) error {
	_, err := s.obtain(ctx, "", false)
	return err
}

// RefreshCredential returns a credential to use in place of
// rejectedAccessToken. When the store already holds a different access token
// another cycle has rotated it and that token is returned without a new
// refresh call.
func (s *Service) RefreshCredential(ctx context.Context, rejectedAccessToken string) (credentials.Credential, error) {
	return s.obtain(ctx, rejectedAccessToken, true)
}

func (s *Service) obtain(ctx context.Context, rejected string, acceptRotated bool) (credentials.Credential, error) {
	s.coord.mu.Lock()
	if s.coord.refreshing {
		ch := make(chan refreshOutcome, 1)
		s.coord.waiters = append(s.coord.waiters, ch)
		s.coord.mu.Unlock()

		s.metrics.RefreshCoalesced()
		select {
		case out := <-ch:
			return out.cred, out.err
		case <-ctx.Done():
			return credentials.Credential{}, ctx.Err()
		}
	}

	gen := s.currentGeneration()
	current, err := s.store.Get()
	if err != nil {
		s.coord.mu.Unlock()
		return credentials.Credential{}, errors.Wrap(err, "[Service.RefreshCredential] read credential")
	}
	if acceptRotated && current != nil && current.AccessToken != rejected {
		s.coord.mu.Unlock()
		return *current, nil
	}
	if (current == nil || !current.HasRefreshToken()) && s.Status() != StatusAuthenticated {
		// Nothing to refresh and no session to end.
		s.coord.mu.Unlock()
		return credentials.Credential{}, apperrors.ErrNoRefreshToken
	}
	s.coord.refreshing = true
	s.coord.mu.Unlock()

	// The cycle outlives the caller's cancellation; queued callers depend on it.
	out := s.runRefresh(context.WithoutCancel(ctx), current, gen)

	s.coord.mu.Lock()
	waiters := s.coord.waiters
	s.coord.waiters = nil
	s.coord.refreshing = false
	s.coord.mu.Unlock()

	for _, w := range waiters {
		w <- out
	}
	return out.cred, out.err
}

// runRefresh performs one refresh cycle for the session generation gen. If the
// session ends while the cycle is running the result is discarded.
func (s *Service) runRefresh(ctx context.Context, current *credentials.Credential, gen uint64) refreshOutcome {
	prev := s.CurrentUser()
	if !s.commit(gen, func() { s.setState(StatusLoading, prev) }) {
		return s.superseded()
	}

	if current == nil || !current.HasRefreshToken() {
		s.metrics.RefreshOutcome("no_refresh_token")
		s.logger.Info().Msg("no refresh token stored, ending session")
		if !s.commit(gen, s.endLocked) {
			return s.superseded()
		}
		return refreshOutcome{err: apperrors.ErrNoRefreshToken}
	}

	res, err := s.api.RefreshToken(ctx, current.RefreshToken)
	if err != nil {
		s.metrics.RefreshOutcome("failure")
		s.logger.Warn().Err(err).Msg("token refresh failed, ending session")
		if !s.commit(gen, s.endLocked) {
			return s.superseded()
		}
		return refreshOutcome{err: fmt.Errorf("%w: %w", apperrors.ErrCredentialRejected, err)}
	}

	refreshToken := res.Tokens.RefreshToken
	if refreshToken == "" {
		refreshToken = current.RefreshToken
	}
	cred := credentials.New(res.Tokens.AccessToken, refreshToken)

	var out refreshOutcome
	committed := s.commit(gen, func() {
		if err := s.store.Save(cred, res.User); err != nil {
			s.metrics.RefreshOutcome("store_error")
			s.logger.Err(err).Msg("failed to store refreshed credential, ending session")
			s.endLocked()
			out.err = fmt.Errorf("%w: %w", apperrors.ErrCredentialRejected, err)
			return
		}

		profile := res.User
		if profile == nil {
			profile = prev
		}
		if profile == nil {
			var err error
			if profile, err = s.store.GetProfile(); err != nil {
				s.logger.Err(err).Msg("failed to read cached profile after refresh")
			}
		}

		s.setState(StatusAuthenticated, profile)
		if s.realtime != nil && profile != nil && !s.realtime.IsConnected() {
			s.realtime.Connect(cred.AccessToken, profile.ID)
		}
		out.cred = cred
	})
	if !committed {
		return s.superseded()
	}
	if out.err == nil {
		s.metrics.RefreshOutcome("success")
		s.logger.Debug().Time("expiresAt", cred.ExpiresAt).Msg("credential refreshed")
	}
	return out
}

func (s *Service) superseded() refreshOutcome {
	s.metrics.RefreshOutcome("superseded")
	s.logger.Info().Msg("session ended during token refresh, discarding result")
	return refreshOutcome{err: fmt.Errorf("%w: session ended during refresh", apperrors.ErrCredentialRejected)}
}

// currentGeneration identifies the session a refresh cycle starts in.
func (s *Service) currentGeneration() uint64 {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	return s.generation
}

// endGeneration invalidates refresh cycles started before the call.
func (s *Service) endGeneration() {
	s.sessionMu.Lock()
	s.generation++
	s.sessionMu.Unlock()
}

// commit runs fn only if the session is still generation gen. No session can
// end while fn runs.
func (s *Service) commit(gen uint64, fn func()) bool {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if s.generation != gen {
		return false
	}
	fn()
	return true
}

// expire ends the session locally after a failed login, register or refresh.
// Unlike Logout it does not notify the server.
func (s *Service) expire() {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if err := s.expireLocked(); err != nil {
		s.logger.Err(err).Msg("failed to clear stored session")
	}
}

// expireLocked clears the store and moves to unauthenticated. The caller
// holds sessionMu.
func (s *Service) expireLocked() error {
	s.generation++
	err := s.clearLocal()
	s.setState(StatusUnauthenticated, nil)
	return err
}

func (s *Service) endLocked() {
	if err := s.expireLocked(); err != nil {
		s.logger.Err(err).Msg("failed to clear stored session")
	}
}
