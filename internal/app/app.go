// Package app wires the client together: credential store, authenticated
// transport, REST clients, realtime bridge and session.
package app

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-task-client/api"
	"github.com/jrsteele09/go-task-client/credentials"
	"github.com/jrsteele09/go-task-client/credentials/sqlitestore"
	"github.com/jrsteele09/go-task-client/internal/config"
	"github.com/jrsteele09/go-task-client/internal/metrics"
	"github.com/jrsteele09/go-task-client/realtime"
	"github.com/jrsteele09/go-task-client/session"
	"github.com/jrsteele09/go-task-client/tasks"
	"github.com/jrsteele09/go-task-client/transport"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var _ session.Realtime = (*realtime.Bridge)(nil)

type App struct {
	Config   config.Config
	Store    credentials.Store
	HTTP     *http.Client
	API      *api.Client
	Session  *session.Service
	Realtime *realtime.Bridge
	Tasks    *tasks.Repository
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	closers []func() error
}

type options struct {
	store     credentials.Store
	transport http.RoundTripper
	logger    zerolog.Logger
	registry  *prometheus.Registry
}

type Option func(*options)

// WithStore replaces the on-disk credential store.
func WithStore(store credentials.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithTransport sets the round tripper beneath the authenticator.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// New builds the object graph. The session is returned idle; call
// Session.Initialize to restore a stored session.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}

	a := &App{
		Config:   cfg,
		Registry: o.registry,
		Metrics:  metrics.New(o.registry),
	}

	a.Store = o.store
	if a.Store == nil {
		s, err := sqlitestore.Open(ctx, cfg.GetCredentialDBPath())
		if err != nil {
			return nil, errors.Wrap(err, "[app.New] open credential store")
		}
		a.Store = s
		a.closers = append(a.closers, s.Close)
	}

	a.Realtime = realtime.NewBridge(cfg.GetRealtimeURL(),
		realtime.WithEnabled(cfg.GetRealtimeEnabled()),
		realtime.WithConnectTimeout(cfg.GetRealtimeConnectTimeout()),
		realtime.WithLogger(o.logger),
		realtime.WithMetrics(a.Metrics),
	)

	// The authenticator needs the session's refresh coordinator and the
	// session needs the authenticated client, so the refresher resolves the
	// session lazily.
	refresher := transport.RefresherFunc(func(ctx context.Context, rejected string) (credentials.Credential, error) {
		return a.Session.RefreshCredential(ctx, rejected)
	})
	a.HTTP = transport.NewClient(transport.Chain(o.transport, transport.Logging(o.logger)), a.Store, refresher, cfg.GetHTTPTimeout(),
		transport.WithLogger(o.logger),
		transport.WithMetrics(a.Metrics),
	)
	a.API = api.New(cfg.GetAPIURL(), a.HTTP)
	a.Tasks = tasks.NewRepository(a.API)

	svc, err := session.New(a.API, a.Store, a.Realtime,
		session.WithLogger(o.logger),
		session.WithMetrics(a.Metrics),
	)
	if err != nil {
		_ = a.Close()
		return nil, errors.Wrap(err, "[app.New] create session")
	}
	a.Session = svc
	return a, nil
}

// Close disconnects realtime and releases the store.
func (a *App) Close() error {
	a.Realtime.Disconnect()
	a.Realtime.Events().Close()

	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
