package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/jrsteele09/go-task-client/internal/errors"
	"github.com/jrsteele09/go-task-client/users"
	"github.com/pkg/errors"
)

// Auth endpoint paths, relative to the API base URL.
const (
	PathLogin          = "/auth/login"
	PathRegister       = "/auth/register"
	PathLogout         = "/auth/logout"
	PathRefreshToken   = "/auth/refresh-token"
	PathProfile        = "/auth/profile"
	PathChangePassword = "/auth/change-password"
)

const maxErrorBody = 64 << 10

// Client performs JSON calls against the REST API. Credential handling is the
// job of the http.Client's transport, not of this type.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Do sends body as JSON and decodes the response envelope. Transport failures
// wrap ErrNetworkFailure; non-2xx statuses and unsuccessful envelopes are *Error.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (*Envelope, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "[Client.Do] marshal body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Do] new request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Wrapf(fmt.Errorf("%w: %w", apperrors.ErrNetworkFailure, err), "[Client.Do] %s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}

	var env Envelope
	if resp.StatusCode == http.StatusNoContent {
		env.Success = true
		return &env, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if errors.Is(err, io.EOF) {
			env.Success = true
			return &env, nil
		}
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidResponse, err)
	}
	if !env.Success {
		return nil, envelopeError(resp.StatusCode, &env)
	}
	return &env, nil
}

// Call is Do followed by decoding the envelope data into out (when non-nil).
func (c *Client) Call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	env, err := c.Do(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	return DecodeData(env, out)
}

// DecodeData unmarshals the envelope data into out.
func DecodeData(env *Envelope, out any) error {
	if out == nil || env == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidResponse, err)
	}
	return nil
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	return c.authCall(ctx, PathLogin, req)
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	return c.authCall(ctx, PathRegister, req)
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*AuthResult, error) {
	return c.authCall(ctx, PathRefreshToken, RefreshRequest{RefreshToken: refreshToken})
}

func (c *Client) Logout(ctx context.Context) error {
	_, err := c.Do(ctx, http.MethodPost, PathLogout, nil, struct{}{})
	return err
}

func (c *Client) GetProfile(ctx context.Context) (*users.Profile, error) {
	var p users.Profile
	if err := c.Call(ctx, http.MethodGet, PathProfile, nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*users.Profile, error) {
	var p users.Profile
	if err := c.Call(ctx, http.MethodPut, PathProfile, nil, req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	return c.Call(ctx, http.MethodPut, PathChangePassword, nil, req, nil)
}

func (c *Client) authCall(ctx context.Context, path string, body any) (*AuthResult, error) {
	var res AuthResult
	if err := c.Call(ctx, http.MethodPost, path, nil, body, &res); err != nil {
		return nil, err
	}
	if strings.TrimSpace(res.Tokens.AccessToken) == "" {
		return nil, fmt.Errorf("%w: %s returned no access token", apperrors.ErrInvalidResponse, path)
	}
	return &res, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var env Envelope
	if len(raw) > 0 && json.Unmarshal(raw, &env) == nil {
		return envelopeError(resp.StatusCode, &env)
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	return apiErr
}

func envelopeError(status int, env *Envelope) *Error {
	apiErr := &Error{StatusCode: status, Message: env.Message}
	if env.Error != nil {
		if env.Error.Message != "" {
			apiErr.Message = env.Error.Message
		}
		apiErr.Code = env.Error.Code
	}
	return apiErr
}
