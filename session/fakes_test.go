package session_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jrsteele09/go-task-client/api"
	"github.com/jrsteele09/go-task-client/users"
)

type fakeAPI struct {
	mu        sync.Mutex
	lastLogin api.LoginRequest

	loginRes    *api.AuthResult
	loginErr    error
	registerRes *api.AuthResult
	registerErr error

	refreshRes     *api.AuthResult
	refreshErr     error
	refreshCalls   atomic.Int32
	refreshStarted chan struct{} // receives once per RefreshToken call when non-nil
	refreshGate    chan struct{} // RefreshToken blocks until closed when non-nil

	logoutCalls atomic.Int32
	logoutErr   error

	profile    *users.Profile
	profileErr error
}

func (f *fakeAPI) Login(_ context.Context, req api.LoginRequest) (*api.AuthResult, error) {
	f.mu.Lock()
	f.lastLogin = req
	f.mu.Unlock()
	return f.loginRes, f.loginErr
}

func (f *fakeAPI) Register(_ context.Context, _ api.RegisterRequest) (*api.AuthResult, error) {
	return f.registerRes, f.registerErr
}

func (f *fakeAPI) RefreshToken(_ context.Context, _ string) (*api.AuthResult, error) {
	f.refreshCalls.Add(1)
	if f.refreshStarted != nil {
		f.refreshStarted <- struct{}{}
	}
	if f.refreshGate != nil {
		<-f.refreshGate
	}
	return f.refreshRes, f.refreshErr
}

func (f *fakeAPI) Logout(_ context.Context) error {
	f.logoutCalls.Add(1)
	return f.logoutErr
}

func (f *fakeAPI) GetProfile(_ context.Context) (*users.Profile, error) {
	return f.profile, f.profileErr
}

func (f *fakeAPI) UpdateProfile(_ context.Context, req api.UpdateProfileRequest) (*users.Profile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	p := *f.profile
	if req.FullName != nil {
		p.DisplayName = *req.FullName
	}
	return &p, nil
}

func (f *fakeAPI) ChangePassword(_ context.Context, _ api.ChangePasswordRequest) error {
	return nil
}

type connectCall struct {
	token  string
	userID string
}

type fakeRealtime struct {
	mu          sync.Mutex
	connects    []connectCall
	disconnects int
	connected   bool
}

func (f *fakeRealtime) Connect(accessToken, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, connectCall{token: accessToken, userID: userID})
	f.connected = true
}

func (f *fakeRealtime) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
}

func (f *fakeRealtime) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeRealtime) Connects() []connectCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]connectCall(nil), f.connects...)
}

func (f *fakeRealtime) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}
