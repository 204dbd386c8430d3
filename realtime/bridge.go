// Package realtime keeps the optional websocket channel that pushes task and
// user events to the signed-in client. Failures here never affect the
// session: they are logged and the client carries on without live updates.
package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	apperrors "github.com/jrsteele09/go-task-client/internal/errors"
	"github.com/jrsteele09/go-task-client/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultWriteTimeout   = 5 * time.Second
	maxReadBytes          = 1 << 20
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Bridge holds at most one live websocket connection. It never reconnects on
// its own; the session calls Connect again after login or refresh.
type Bridge struct {
	url            string
	enabled        bool
	connectTimeout time.Duration
	writeTimeout   time.Duration
	httpClient     *http.Client
	broker         *Broker
	logger         zerolog.Logger
	metrics        *metrics.Metrics
	nowTime        func() time.Time

	// lifecycle serializes Connect and Disconnect.
	lifecycle sync.Mutex

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	cancel    context.CancelFunc
	done      chan struct{}
	observers map[int]func(State)
	nextObsID int
}

type BridgeOption func(*Bridge)

func WithLogger(logger zerolog.Logger) BridgeOption {
	return func(b *Bridge) {
		b.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) BridgeOption {
	return func(b *Bridge) {
		b.metrics = m
	}
}

func WithConnectTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) {
		if d > 0 {
			b.connectTimeout = d
		}
	}
}

// WithEnabled turns the bridge into a no-op when false.
func WithEnabled(enabled bool) BridgeOption {
	return func(b *Bridge) {
		b.enabled = enabled
	}
}

// WithHTTPClient sets the client used for the websocket handshake.
func WithHTTPClient(c *http.Client) BridgeOption {
	return func(b *Bridge) {
		b.httpClient = c
	}
}

func WithBroker(broker *Broker) BridgeOption {
	return func(b *Bridge) {
		b.broker = broker
	}
}

func WithNowFunc(nowFunc func() time.Time) BridgeOption {
	return func(b *Bridge) {
		b.nowTime = nowFunc
	}
}

func NewBridge(url string, options ...BridgeOption) *Bridge {
	b := &Bridge{
		url:            url,
		enabled:        true,
		connectTimeout: defaultConnectTimeout,
		writeTimeout:   defaultWriteTimeout,
		logger:         log.Logger,
		nowTime:        time.Now,
		observers:      make(map[int]func(State)),
	}
	for _, opt := range options {
		opt(b)
	}
	if b.broker == nil {
		b.broker = NewBroker()
	}
	return b
}

// Events returns the broker inbound events are published to.
func (b *Bridge) Events() *Broker {
	return b.broker
}

// Subscribe is shorthand for Events().Subscribe.
func (b *Bridge) Subscribe(kinds ...Kind) *Subscription {
	return b.broker.Subscribe(kinds...)
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) IsConnected() bool {
	return b.State() == StateConnected
}

// OnStateChange registers fn for state transitions. fn runs on the bridge's
// goroutine and must not call Connect or Disconnect.
func (b *Bridge) OnStateChange(fn func(State)) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextObsID++
	id := b.nextObsID
	b.observers[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.observers, id)
	}
}

// Connect replaces any existing connection with a new one for userID. The
// previous connection is fully torn down before the new dial starts. Dialing
// happens in the background; failures are logged and leave the bridge
// disconnected.
func (b *Bridge) Connect(accessToken, userID string) {
	if !b.enabled {
		b.logger.Debug().Msg("realtime disabled, not connecting")
		return
	}
	if accessToken == "" {
		b.logger.Warn().Msg("no access token for realtime connection")
		return
	}

	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	b.teardown()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	b.mu.Lock()
	b.cancel = cancel
	b.done = done
	b.mu.Unlock()

	b.setState(StateConnecting)
	go b.run(ctx, done, accessToken, userID)
}

// Disconnect closes the current connection, if any, and waits for it to stop.
func (b *Bridge) Disconnect() {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()
	b.teardown()
}

// Emit sends an event to the server. It fails with ErrRealtimeUnavailable
// when there is no live connection.
func (b *Bridge) Emit(ctx context.Context, event string, data any) error {
	b.mu.Lock()
	conn, state := b.conn, b.state
	b.mu.Unlock()

	if conn == nil || state != StateConnected {
		b.logger.Warn().Str("event", event).Msg("realtime not connected, dropping event")
		return fmt.Errorf("%w: emit %s", apperrors.ErrRealtimeUnavailable, event)
	}
	return b.write(ctx, conn, event, data)
}

func (b *Bridge) JoinRoom(ctx context.Context, roomID string) error {
	return b.Emit(ctx, eventJoinRoom, roomID)
}

func (b *Bridge) LeaveRoom(ctx context.Context, roomID string) error {
	return b.Emit(ctx, eventLeaveRoom, roomID)
}

func (b *Bridge) teardown() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (b *Bridge) run(ctx context.Context, done chan struct{}, accessToken, userID string) {
	defer close(done)
	defer b.setState(StateDisconnected)

	conn, err := b.dial(ctx, accessToken)
	if err != nil {
		if ctx.Err() != nil {
			b.metrics.RealtimeConnect("cancelled")
			return
		}
		b.logger.Warn().Err(err).Str("url", b.url).Msg("realtime connection failed, continuing without live updates")
		return
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.conn = nil
		b.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	b.metrics.RealtimeConnect("connected")
	b.setState(StateConnected)
	b.logger.Info().Str("userId", userID).Msg("realtime connected")

	if userID != "" {
		if err := b.write(ctx, conn, eventJoinUserRoom, userID); err != nil {
			b.logger.Warn().Err(err).Msg("failed to join user room")
			return
		}
	}

	b.readLoop(ctx, conn)
}

func (b *Bridge) dial(ctx context.Context, accessToken string) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, b.connectTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+accessToken)

	conn, resp, err := websocket.Dial(dialCtx, b.url, &websocket.DialOptions{
		HTTPClient: b.httpClient,
		HTTPHeader: header,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() == nil {
			outcome := "failed"
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				outcome = "rejected"
			}
			b.metrics.RealtimeConnect(outcome)
		}
		return nil, fmt.Errorf("%w: %w", apperrors.ErrRealtimeUnavailable, err)
	}
	conn.SetReadLimit(maxReadBytes)
	return conn, nil
}

func (b *Bridge) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				b.logger.Info().Err(err).Int("closeStatus", int(websocket.CloseStatus(err))).Msg("realtime connection closed")
			}
			return
		}

		ev, err := decodeFrame(data, b.nowTime())
		if err != nil {
			b.logger.Debug().Err(err).Msg("dropping realtime frame")
			continue
		}
		b.metrics.RealtimeEvent(string(ev.Kind))
		b.broker.Publish(ev)
	}
}

func (b *Bridge) write(ctx context.Context, conn *websocket.Conn, event string, data any) error {
	payload, err := encodeFrame(event, data)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, b.writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}

func (b *Bridge) setState(s State) {
	b.mu.Lock()
	if b.state == s {
		b.mu.Unlock()
		return
	}
	b.state = s
	observers := make([]func(State), 0, len(b.observers))
	for _, fn := range b.observers {
		observers = append(observers, fn)
	}
	b.mu.Unlock()

	for _, fn := range observers {
		fn(s)
	}
}
