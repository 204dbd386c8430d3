// Package transport provides the request authenticator: an http.RoundTripper
// decorator that attaches the stored bearer credential and, on a 401, asks the
// session's refresh coordinator for a fresh credential and replays the request once.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-task-client/credentials"
	apperrors "github.com/jrsteele09/go-task-client/internal/errors"
	"github.com/jrsteele09/go-task-client/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const HeaderRequestID = "X-Request-ID"

// Refresher hands out a fresh credential after rejectedAccessToken was refused.
// Concurrent callers share a single refresh cycle.
type Refresher interface {
	RefreshCredential(ctx context.Context, rejectedAccessToken string) (credentials.Credential, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context, rejectedAccessToken string) (credentials.Credential, error)

func (f RefresherFunc) RefreshCredential(ctx context.Context, rejectedAccessToken string) (credentials.Credential, error) {
	return f(ctx, rejectedAccessToken)
}

// CredentialSource is the read side of credentials.Store.
type CredentialSource interface {
	Get() (*credentials.Credential, error)
}

type endpointKind int

const (
	protectedEndpoint endpointKind = iota // bearer attached, refreshed on 401
	anonymousEndpoint                     // no bearer, never refreshed
	bestEffortEndpoint                    // bearer attached, never refreshed
)

var endpointKinds = []struct {
	suffix string
	kind   endpointKind
}{
	{"/auth/login", anonymousEndpoint},
	{"/auth/register", anonymousEndpoint},
	{"/auth/refresh-token", anonymousEndpoint},
	{"/auth/logout", bestEffortEndpoint},
}

func classify(path string) endpointKind {
	path = strings.TrimRight(path, "/")
	for _, e := range endpointKinds {
		if strings.HasSuffix(path, e.suffix) {
			return e.kind
		}
	}
	return protectedEndpoint
}

// Authenticator is the credential-attaching RoundTripper.
type Authenticator struct {
	next      http.RoundTripper
	creds     CredentialSource
	refresher Refresher
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

var _ http.RoundTripper = (*Authenticator)(nil)

type Option func(*Authenticator)

func WithLogger(logger zerolog.Logger) Option {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Authenticator) {
		a.metrics = m
	}
}

func NewAuthenticator(next http.RoundTripper, creds CredentialSource, refresher Refresher, options ...Option) *Authenticator {
	if next == nil {
		next = http.DefaultTransport
	}
	a := &Authenticator{
		next:      next,
		creds:     creds,
		refresher: refresher,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// NewClient composes an http.Client around an Authenticator.
func NewClient(next http.RoundTripper, creds CredentialSource, refresher Refresher, timeout time.Duration, options ...Option) *http.Client {
	return &http.Client{
		Transport: NewAuthenticator(next, creds, refresher, options...),
		Timeout:   timeout,
	}
}

func (a *Authenticator) RoundTrip(req *http.Request) (*http.Response, error) {
	kind := classify(req.URL.Path)

	out := req.Clone(req.Context())
	if out.Header.Get(HeaderRequestID) == "" {
		out.Header.Set(HeaderRequestID, uuid.New().String())
	}

	var sentToken string
	if kind != anonymousEndpoint {
		sentToken = a.attachStored(out)
	}

	resp, err := a.next.RoundTrip(out)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || kind != protectedEndpoint {
		return resp, err
	}

	original, err := bufferResponse(resp)
	if err != nil {
		return nil, err
	}

	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		a.logger.Warn().Str("path", req.URL.Path).Msg("401 on request with non-rewindable body, not replaying")
		a.metrics.Replay("not_replayable")
		return original, nil
	}

	cred, err := a.refresher.RefreshCredential(req.Context(), sentToken)
	if err != nil && req.Context().Err() != nil {
		_ = original.Body.Close()
		a.metrics.Replay("cancelled")
		return nil, fmt.Errorf("%w: refresh abandoned: %w", apperrors.ErrCredentialExpired, req.Context().Err())
	}
	if err != nil {
		a.logger.Debug().Err(err).Str("path", req.URL.Path).Msg("credential refresh failed, returning original rejection")
		a.metrics.Replay("refresh_failed")
		return original, nil
	}
	_ = original.Body.Close()

	replay, err := rewind(req, out.Header.Get(HeaderRequestID))
	if err != nil {
		a.metrics.Replay("not_replayable")
		return nil, err
	}
	cred.OAuth2Token().SetAuthHeader(replay)

	resp, err = a.next.RoundTrip(replay)
	switch {
	case err != nil:
		a.metrics.Replay("error")
	case resp.StatusCode == http.StatusUnauthorized:
		a.metrics.Replay("rejected")
	default:
		a.metrics.Replay("ok")
	}
	return resp, err
}

func (a *Authenticator) attachStored(req *http.Request) string {
	cred, err := a.creds.Get()
	if err != nil {
		a.logger.Err(err).Msg("failed to read stored credential, sending unauthenticated")
		return ""
	}
	if cred == nil || cred.AccessToken == "" {
		return ""
	}
	cred.OAuth2Token().SetAuthHeader(req)
	return cred.AccessToken
}

func rewind(req *http.Request, requestID string) (*http.Request, error) {
	replay := req.Clone(req.Context())
	replay.Header.Set(HeaderRequestID, requestID)
	if req.Body == nil || req.Body == http.NoBody {
		return replay, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, apperrors.Wrapf(fmt.Errorf("%w: %w", apperrors.ErrNotReplayable, err), "[Authenticator.rewind]")
	}
	replay.Body = body
	return replay, nil
}

func bufferResponse(resp *http.Response) (*http.Response, error) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read rejected response: %w", apperrors.ErrNetworkFailure, err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	resp.ContentLength = int64(len(raw))
	return resp, nil
}
