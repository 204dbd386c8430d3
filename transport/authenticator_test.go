package transport_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-task-client/credentials"
	"github.com/jrsteele09/go-task-client/credentials/storefake"
	"github.com/jrsteele09/go-task-client/credentials/storetest"
	apperrors "github.com/jrsteele09/go-task-client/internal/errors"
	"github.com/jrsteele09/go-task-client/internal/metrics"
	"github.com/jrsteele09/go-task-client/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type seenRequest struct {
	path      string
	auth      string
	requestID string
	body      string
}

// apiServer accepts only the bearer token held in valid.
type apiServer struct {
	*httptest.Server
	valid atomic.Value

	mu   sync.Mutex
	seen []seenRequest
}

func newAPIServer(t *testing.T, validToken string) *apiServer {
	t.Helper()
	s := &apiServer{}
	s.valid.Store(validToken)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.seen = append(s.seen, seenRequest{
			path:      r.URL.Path,
			auth:      r.Header.Get("Authorization"),
			requestID: r.Header.Get(transport.HeaderRequestID),
			body:      string(body),
		})
		s.mu.Unlock()

		if strings.HasPrefix(r.URL.Path, "/api/auth/login") {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"success":false,"message":"Invalid credentials"}`)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.valid.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"success":false,"message":"Token expired"}`)
			return
		}
		_, _ = io.WriteString(w, `{"success":true,"data":{"echo":`+quote(string(body))+`}}`)
	}))
	t.Cleanup(s.Close)
	return s
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func (s *apiServer) requests() []seenRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]seenRequest(nil), s.seen...)
}

type testFixture struct {
	server    *apiServer
	store     *storefake.FakeStore
	metrics   *metrics.Metrics
	client    *http.Client
	refreshes atomic.Int32
	rejected  atomic.Value
}

// setupTestFixture stores at1, has the server accept only at2 and a
// refresher that hands out at2 (or refreshErr).
func setupTestFixture(t *testing.T, refreshErr error) (*testFixture, string, string) {
	t.Helper()
	at1 := storetest.AccessToken(t, "at1", time.Now().Add(time.Minute))
	at2 := storetest.AccessToken(t, "at2", time.Now().Add(time.Hour))

	f := &testFixture{
		server:  newAPIServer(t, at2),
		store:   storefake.New(),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	require.NoError(t, f.store.Put(credentials.New(at1, "rt1")))

	refresher := transport.RefresherFunc(func(_ context.Context, rejected string) (credentials.Credential, error) {
		f.refreshes.Add(1)
		f.rejected.Store(rejected)
		if refreshErr != nil {
			return credentials.Credential{}, refreshErr
		}
		cred := credentials.New(at2, "rt2")
		return cred, f.store.Put(cred)
	})
	f.client = transport.NewClient(nil, f.store, refresher, 5*time.Second, transport.WithMetrics(f.metrics))
	return f, at1, at2
}

func TestAuthenticator_AttachesCredential(t *testing.T) {
	f, _, at2 := setupTestFixture(t, nil)
	require.NoError(t, f.store.Put(credentials.New(at2, "rt2")))

	resp, err := f.client.Get(f.server.URL + "/api/tasks")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	reqs := f.server.requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "Bearer "+at2, reqs[0].auth)
	require.NotEmpty(t, reqs[0].requestID)
	require.Zero(t, f.refreshes.Load())
}

func TestAuthenticator_ReplaysAfterRefresh(t *testing.T) {
	f, at1, at2 := setupTestFixture(t, nil)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/tasks", strings.NewReader(`{"title":"write tests"}`))
	require.NoError(t, err)
	req.Header.Set(transport.HeaderRequestID, "req-1")

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "write tests")

	require.Equal(t, int32(1), f.refreshes.Load())
	require.Equal(t, at1, f.rejected.Load())

	reqs := f.server.requests()
	require.Len(t, reqs, 2)
	require.Equal(t, "Bearer "+at1, reqs[0].auth)
	require.Equal(t, "Bearer "+at2, reqs[1].auth)
	require.Equal(t, reqs[0].body, reqs[1].body)
	require.Equal(t, "req-1", reqs[1].requestID)
	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ReplayCounter().WithLabelValues("ok")))
}

func TestAuthenticator_RefreshFailureReturnsOriginal(t *testing.T) {
	f, _, _ := setupTestFixture(t, apperrors.ErrCredentialRejected)

	resp, err := f.client.Get(f.server.URL + "/api/tasks")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "Token expired")
	require.Len(t, f.server.requests(), 1)
	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ReplayCounter().WithLabelValues("refresh_failed")))
}

func TestAuthenticator_CancelledDuringRefresh(t *testing.T) {
	f, _, _ := setupTestFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	refresher := transport.RefresherFunc(func(ctx context.Context, _ string) (credentials.Credential, error) {
		cancel()
		<-ctx.Done()
		return credentials.Credential{}, ctx.Err()
	})
	client := transport.NewClient(nil, f.store, refresher, 5*time.Second, transport.WithMetrics(f.metrics))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+"/api/tasks", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	require.ErrorIs(t, err, apperrors.ErrCredentialExpired)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, f.server.requests(), 1)
	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ReplayCounter().WithLabelValues("cancelled")))
}

func TestAuthenticator_AuthEndpoints(t *testing.T) {
	t.Run("login carries no token and is not refreshed", func(t *testing.T) {
		f, _, _ := setupTestFixture(t, nil)

		resp, err := f.client.Post(f.server.URL+"/api/auth/login", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Empty(t, f.server.requests()[0].auth)
		require.Zero(t, f.refreshes.Load())
	})

	t.Run("refresh-token is never refreshed", func(t *testing.T) {
		f, _, _ := setupTestFixture(t, nil)

		resp, err := f.client.Post(f.server.URL+"/api/auth/refresh-token", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Empty(t, f.server.requests()[0].auth)
		require.Zero(t, f.refreshes.Load())
	})

	t.Run("logout carries the token but is not refreshed", func(t *testing.T) {
		f, at1, _ := setupTestFixture(t, nil)

		resp, err := f.client.Post(f.server.URL+"/api/auth/logout", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "Bearer "+at1, f.server.requests()[0].auth)
		require.Zero(t, f.refreshes.Load())
	})
}

func TestAuthenticator_NonReplayableBody(t *testing.T) {
	f, _, _ := setupTestFixture(t, nil)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/tasks", io.NopCloser(strings.NewReader(`{"title":"x"}`)))
	require.NoError(t, err)
	require.Nil(t, req.GetBody)

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Zero(t, f.refreshes.Load())
	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ReplayCounter().WithLabelValues("not_replayable")))
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestAuthenticator_TransportError(t *testing.T) {
	var refreshed bool
	client := transport.NewClient(failingTransport{}, storefake.New(),
		transport.RefresherFunc(func(context.Context, string) (credentials.Credential, error) {
			refreshed = true
			return credentials.Credential{}, nil
		}), time.Second)

	_, err := client.Get("http://example.invalid/api/tasks")
	require.Error(t, err)
	require.False(t, refreshed)
}
