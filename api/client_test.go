package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/jrsteele09/go-task-client/api"
	apperrors "github.com/jrsteele09/go-task-client/internal/errors"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *api.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return api.New(srv.URL+"/api/", srv.Client())
}

func TestClient_Login(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/auth/login", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body api.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "a@b.com", body.Email)
		require.Equal(t, "secret1", body.Password)

		_, _ = w.Write([]byte(`{"success":true,"message":"ok","data":{"user":{"_id":"u-1","username":"ab"},"tokens":{"accessToken":"at1","refreshToken":"rt1","expiresIn":"15m"}}}`))
	})

	res, err := c.Login(context.Background(), api.LoginRequest{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	require.Equal(t, "at1", res.Tokens.AccessToken)
	require.Equal(t, "rt1", res.Tokens.RefreshToken)
	require.NotNil(t, res.User)
	require.Equal(t, "u-1", res.User.ID)
}

func TestClient_Errors(t *testing.T) {
	t.Run("non-2xx with envelope message", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"message":"Invalid email or password"}`))
		})
		_, err := c.Login(context.Background(), api.LoginRequest{Email: "a@b.com", Password: "bad"})
		require.Error(t, err)

		var apiErr *api.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		require.Equal(t, "Invalid email or password", apiErr.Message)
		require.ErrorIs(t, err, apperrors.ErrCredentialRejected)
	})

	t.Run("nested error detail wins", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"success":false,"message":"Validation failed","error":{"message":"email is taken","code":"DUPLICATE"}}`))
		})
		_, err := c.Register(context.Background(), api.RegisterRequest{Email: "a@b.com"})
		var apiErr *api.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "email is taken", apiErr.Message)
		require.Equal(t, "DUPLICATE", apiErr.Code)
		require.ErrorIs(t, err, apperrors.ErrRequestFailed)
	})

	t.Run("plain text body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream down", http.StatusBadGateway)
		})
		err := c.Logout(context.Background())
		var apiErr *api.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "upstream down", apiErr.Message)
	})

	t.Run("success false on 200", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":false,"message":"nope"}`))
		})
		_, err := c.GetProfile(context.Background())
		require.ErrorIs(t, err, apperrors.ErrRequestFailed)
	})

	t.Run("missing access token", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":true,"data":{"tokens":{}}}`))
		})
		_, err := c.RefreshToken(context.Background(), "rt1")
		require.ErrorIs(t, err, apperrors.ErrInvalidResponse)
	})

	t.Run("network failure", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		c := api.New(srv.URL, srv.Client())
		_, err := c.Login(context.Background(), api.LoginRequest{})
		require.ErrorIs(t, err, apperrors.ErrNetworkFailure)
	})
}

func TestClient_DoKeepsPaginationAndQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "pending,completed", r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`{"success":true,"data":[{"id":1}],"pagination":{"total":1}}`))
	})

	env, err := c.Do(context.Background(), http.MethodGet, "/tasks", url.Values{"status": {"pending,completed"}}, nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"total":1}`, string(env.Pagination))

	var items []map[string]int
	require.NoError(t, api.DecodeData(env, &items))
	require.Len(t, items, 1)
}

func TestClient_NoContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.Logout(context.Background()))
}
