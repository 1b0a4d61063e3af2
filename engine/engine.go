// Package engine implements the connection substrate shared by every stream
// adapter in atstream: a TLS+HTTP+WebSocket state machine that handles
// upgrade timeouts, remote close, transport drop, and reconnection with
// exponential backoff and jitter.
//
// An Adapter supplies the adapter-specific behavior (path construction,
// frame decoding); the Engine owns the socket and the retry loop, so the
// firehose, jetstream, and tap adapters share one dial/read loop instead of
// each growing a copy.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is a connection's position in the four-state machine described by
// the connection engine design: Disconnected, ConnectingHTTP, ConnectingWS,
// Connected.
type State int

const (
	Disconnected State = iota
	ConnectingHTTP
	ConnectingWS
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case ConnectingHTTP:
		return "connecting_http"
	case ConnectingWS:
		return "connecting_ws"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// ErrInitialization is wrapped by errors returned from Run when the adapter's
// Init hook fails or a transport dial fails outright (DNS failure, TLS
// handshake failure, connection refused), on the first connection attempt or
// on any later reconnect attempt. These are not retried: per the
// connection engine contract, only connect_timeout expiry routes to
// reconnect while in ConnectingHTTP; any other dial error is fatal.
var ErrInitialization = errors.New("engine: initialization error")

// FrameKind discriminates the frame variants the engine hands to an
// Adapter's HandleFrame. The engine performs no payload parsing of its own.
type FrameKind int

const (
	FrameBinary FrameKind = iota
	FrameText
	FrameClose
	FrameCloseWithCode
)

// Frame is a single inbound WebSocket message, or a close notification.
type Frame struct {
	Kind    FrameKind
	Payload []byte // set for FrameBinary and FrameText
	Code    int    // set for FrameCloseWithCode
	Reason  string // set for FrameCloseWithCode
}

// Adapter is the engine↔adapter contract. Firehose, Jetstream, and Tap are
// three variants of this same capability set; the engine is generic over
// which one it drives.
type Adapter interface {
	// Init performs one-time setup before the first connection attempt. An
	// error aborts startup entirely (wrapped in ErrInitialization).
	Init(ctx context.Context) error

	// BuildPath returns the HTTP upgrade path (with query string) to dial.
	// Called on every connect and reconnect attempt so an adapter can embed
	// its current cursor.
	BuildPath() string

	// OnConnected is invoked once the WebSocket upgrade succeeds.
	OnConnected(ctx context.Context, send func(FrameKind, []byte) error)

	// OnDisconnected is invoked whenever the engine leaves the Connected
	// state, with the reason that triggered it.
	OnDisconnected(reason error)

	// HandleFrame processes one inbound frame. Returning an error only logs
	// and drops the frame (per §4.2/§4.3/§4.4, decode errors never tear down
	// the connection); the connection is only lost through transport errors
	// the engine itself observes.
	HandleFrame(ctx context.Context, frame Frame) error
}

// Strategy computes the reconnect delay for a given zero-based attempt
// number. Exponential is the default; Custom lets a caller supply any pure
// function of the attempt index (e.g. decorrelated jitter) without engine
// changes, per the design notes.
type Strategy func(attempt int) time.Duration

// Exponential returns the default reconnect strategy: delay =
// min(base·2^attempt, maxBackoff) + uniform(0, 0.1·delay), base = 1s.
func Exponential(maxBackoff time.Duration) Strategy {
	if maxBackoff <= 0 {
		maxBackoff = 60 * time.Second
	}
	return func(attempt int) time.Duration {
		base := time.Second
		// guard against overflow for large attempt counts; the shift
		// saturates at maxBackoff well before this matters.
		shift := attempt
		if shift > 32 {
			shift = 32
		}
		delay := base * time.Duration(1<<uint(shift))
		if delay > maxBackoff || delay <= 0 {
			delay = maxBackoff
		}
		jitter := time.Duration(rand.Float64() * 0.1 * float64(delay))
		return delay + jitter
	}
}

// Config holds the engine-level options common to every adapter.
type Config struct {
	// Host is the scheme+host+port the engine dials; the adapter supplies
	// the path via BuildPath.
	Host string

	// Timeout bounds both the TCP+TLS dial (connect_timeout) and the
	// WebSocket upgrade (upgrade_timeout). Default 5s.
	Timeout time.Duration

	// FlowCredit is the number of inbound frames the engine admits per
	// grant cycle before waiting on the adapter to keep up. Default 10.
	FlowCredit int

	// PingInterval governs how often the engine sends a WS ping while
	// connected, independent of inbound traffic, so a silently stalled TCP
	// connection doesn't look identical to a quiet stream. 0 means the
	// default of 30s; a negative value disables pings.
	PingInterval time.Duration

	// Reconnect computes the backoff delay for attempt N. Defaults to
	// Exponential(60 * time.Second).
	Reconnect Strategy

	// TLSClientConfig overrides the dialer's TLS options; nil uses Go's
	// default verification (system CA bundle + hostname match).
	TLSClientConfig *tlsConfigHolder

	// Header is sent on the WebSocket upgrade request, e.g. Tap's Basic
	// auth admin credential.
	Header http.Header

	Logger *slog.Logger
}

// tlsConfigHolder indirects tls.Config so this file doesn't need to import
// crypto/tls just to declare the field; the dialer in dial.go constructs the
// real *tls.Config from it.
type tlsConfigHolder struct {
	InsecureSkipVerify bool
}

func (c *Config) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.FlowCredit <= 0 {
		c.FlowCredit = 10
	}
	if c.PingInterval == 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.Reconnect == nil {
		c.Reconnect = Exponential(60 * time.Second)
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// Engine drives one Adapter through the connection state machine. It is not
// safe for concurrent use beyond the Send method, which is safe to call
// from any goroutine while Run is active.
type Engine struct {
	cfg     Config
	adapter Adapter

	mu    sync.Mutex
	state State
	conn  *websocket.Conn
	// generation increments every time a new transport is opened, so a
	// stale-transport notification from a superseded dial can be told
	// apart from the current one.
	generation int

	metrics *metricSet
}

// New constructs an Engine bound to adapter, applying defaults to any unset
// Config fields.
func New(cfg Config, adapter Adapter) *Engine {
	cfg.setDefaults()
	return &Engine{
		cfg:     cfg,
		adapter: adapter,
		state:   Disconnected,
		metrics: metrics,
	}
}

// State returns the engine's current connection state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Send transmits a control frame (Jetstream options_update, Tap ack) on the
// current WebSocket connection. It is a no-op error if the engine is not
// currently connected.
func (e *Engine) Send(kind FrameKind, payload []byte) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("engine: not connected")
	}

	wireType := websocket.BinaryMessage
	if kind == FrameText {
		wireType = websocket.TextMessage
	}
	if err := conn.WriteMessage(wireType, payload); err != nil {
		return fmt.Errorf("engine: send failed: %w", err)
	}
	return nil
}

// Run drives the connection state machine until ctx is canceled or an
// initialization error occurs. It never returns a transient error: transport
// drops, upgrade failures, and non-101 responses are handled internally via
// the reconnect path, per the error-handling design (§7) which keeps those
// invisible to the caller.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.adapter.Init(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		e.setState(ConnectingHTTP)
		conn, resp, err := e.dial(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
				return nil
			}

			var httpErr *httpDialError
			if errors.As(err, &httpErr) {
				// non-101 response while upgrading: reconnect, not fatal.
				e.cfg.Logger.Warn("websocket upgrade rejected", "status", httpErr.status, "err", err)
				if waitErr := e.waitBackoff(ctx, &attempts); waitErr != nil {
					return nil
				}
				continue
			}

			var timeoutErr *dialTimeoutError
			if errors.As(err, &timeoutErr) {
				e.cfg.Logger.Warn("connect timeout", "err", err)
				if waitErr := e.waitBackoff(ctx, &attempts); waitErr != nil {
					return nil
				}
				continue
			}

			// any other dial error (DNS failure, TLS handshake failure,
			// connection refused) is fatal initialization failure, not
			// retried: the caller/supervisor decides what to do next.
			return fmt.Errorf("%w: %w", ErrInitialization, err)
		}
		if resp != nil {
			resp.Body.Close()
		}

		e.mu.Lock()
		e.conn = conn
		e.generation++
		gen := e.generation
		e.mu.Unlock()

		e.setState(Connected)
		attempts = 0

		reason := e.runConnected(ctx, conn, gen)

		e.mu.Lock()
		if e.generation == gen {
			e.conn = nil
		}
		e.mu.Unlock()
		e.setState(Disconnected)
		e.adapter.OnDisconnected(reason)
		e.metrics.reconnects.Inc()

		if ctx.Err() != nil {
			return nil
		}

		if waitErr := e.waitBackoff(ctx, &attempts); waitErr != nil {
			return nil
		}
	}
}

func (e *Engine) waitBackoff(ctx context.Context, attempts *int) error {
	delay := e.cfg.Reconnect(*attempts)
	*attempts++
	e.cfg.Logger.Debug("scheduling reconnect", "delay", delay, "attempt", *attempts)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// runConnected owns one live connection: it starts the ping loop, notifies
// the adapter, and pumps inbound frames until the transport drops or ctx is
// canceled. It returns the reason the connection ended.
func (e *Engine) runConnected(ctx context.Context, conn *websocket.Conn, gen int) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Install our own close handler so a remote close frame reaches the
	// adapter as a Frame before gorilla's default handling takes over.
	// Without this, ReadMessage just returns a *websocket.CloseError and
	// the close frame's code/reason are lost to the generic transport-error
	// path below.
	conn.SetCloseHandler(func(code int, text string) error {
		frame := Frame{Kind: FrameClose, Code: code, Reason: text}
		if text != "" || code != websocket.CloseNoStatusReceived {
			frame.Kind = FrameCloseWithCode
		}
		if err := e.adapter.HandleFrame(connCtx, frame); err != nil {
			e.cfg.Logger.Warn("adapter dropped close frame", "err", err)
		}
		message := websocket.FormatCloseMessage(code, "")
		conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(e.cfg.Timeout))
		return nil
	})

	credit := make(chan struct{}, e.cfg.FlowCredit)
	for i := 0; i < e.cfg.FlowCredit; i++ {
		credit <- struct{}{}
	}

	send := func(kind FrameKind, payload []byte) error {
		return e.sendOn(conn, kind, payload)
	}

	e.adapter.OnConnected(connCtx, send)

	if e.cfg.PingInterval > 0 {
		go e.pingLoop(connCtx, conn, gen)
	}

	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	for {
		<-credit

		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("transport read error: %w", err)
		}

		e.metrics.framesReceived.Inc()
		e.metrics.bytesReceived.Add(float64(len(payload)))

		var frame Frame
		switch msgType {
		case websocket.BinaryMessage:
			frame = Frame{Kind: FrameBinary, Payload: payload}
		case websocket.TextMessage:
			frame = Frame{Kind: FrameText, Payload: payload}
		default:
			// ping/pong frames are handled by gorilla internally and never
			// reach ReadMessage as a distinct type here.
			credit <- struct{}{}
			continue
		}

		if err := e.adapter.HandleFrame(connCtx, frame); err != nil {
			e.cfg.Logger.Warn("adapter dropped frame", "err", err)
		}

		credit <- struct{}{}
	}
}

func (e *Engine) sendOn(conn *websocket.Conn, kind FrameKind, payload []byte) error {
	wireType := websocket.BinaryMessage
	if kind == FrameText {
		wireType = websocket.TextMessage
	}
	if err := conn.WriteMessage(wireType, payload); err != nil {
		return fmt.Errorf("engine: send failed: %w", err)
	}
	return nil
}

func (e *Engine) pingLoop(ctx context.Context, conn *websocket.Conn, gen int) {
	ticker := time.NewTicker(e.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			stale := e.generation != gen
			e.mu.Unlock()
			if stale {
				// stale transport filter: a ping loop outliving its
				// connection's generation is a no-op, not an error.
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(e.cfg.Timeout)); err != nil {
				e.cfg.Logger.Debug("ping failed", "err", err)
				return
			}
		}
	}
}
