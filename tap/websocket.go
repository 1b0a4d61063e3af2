package tap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cometsh/atstream/dispatch"
	"github.com/cometsh/atstream/engine"
)

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

const channelPath = "/channel"

// Websocket is a Tap client: an engine.Engine driving this adapter over
// the `/channel` WebSocket, plus per-event ack emission.
type Websocket struct {
	addr          string
	logger        *slog.Logger
	timeout       time.Duration
	flowCredit    int
	reconnect     engine.Strategy
	disableAcks   bool
	adminPassword *string
	handler       WebsocketHandlerFunc

	dispatcher *dispatch.Dispatcher
	eng        *engine.Engine
}

// WebsocketOption configures a Websocket.
type WebsocketOption func(*Websocket)

// WithConnectTimeout sets the connect/upgrade timeout passed to the
// connection engine.
func WithConnectTimeout(timeout time.Duration) WebsocketOption {
	return func(ws *Websocket) { ws.timeout = timeout }
}

// WithLogger sets the logger used for connection and handler diagnostics.
// A nil logger discards output.
func WithLogger(logger *slog.Logger) WebsocketOption {
	return func(ws *Websocket) {
		if logger == nil {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		ws.logger = logger
	}
}

// WithReconnectStrategy overrides the engine's default exponential backoff.
func WithReconnectStrategy(strategy engine.Strategy) WebsocketOption {
	return func(ws *Websocket) { ws.reconnect = strategy }
}

// WithFlowCredit overrides the WS ingress credit per grant cycle (default 10).
func WithFlowCredit(n int) WebsocketOption {
	return func(ws *Websocket) { ws.flowCredit = n }
}

// WithDisableAcks suppresses all ack emission regardless of handler outcome,
// matching the `disable_acks` configuration field.
func WithDisableAcks() WebsocketOption {
	return func(ws *Websocket) { ws.disableAcks = true }
}

// WithAdminPassword sends HTTP Basic admin:<password> on the `/channel`
// upgrade request, per §4.4. Unrelated to the separate AdminClient, which
// sends the same credential on its own HTTP requests.
func WithAdminPassword(password string) WebsocketOption {
	return func(ws *Websocket) { ws.adminPassword = &password }
}

// WebsocketHandlerFunc processes one decoded Tap event. Its return value
// decides whether an ack is sent: nil acks, a returned error logs and
// withholds the ack (the Tap server retries after its own timeout), and a
// panic is recovered, logged with its stack, and also withholds the ack.
// Wrap a permanent failure with NewNonRetryableError to distinguish it in
// logs from one the server's retry might fix.
type WebsocketHandlerFunc func(context.Context, *Event) error

// NewWebsocket constructs a Websocket targeting addr (a ws:// or wss://
// base URL; `/channel` is appended to it as given, after any trailing '/'
// is trimmed) and dispatching decoded events to handler.
func NewWebsocket(addr string, handler WebsocketHandlerFunc, opts ...WebsocketOption) (*Websocket, error) {
	if handler == nil {
		return nil, fmt.Errorf("a websocket message handler func is required")
	}

	ws := &Websocket{
		addr:    addr,
		logger:  slog.Default().WithGroup("tap"),
		timeout: 15 * time.Second,
		handler: handler,
	}

	for _, opt := range opts {
		opt(ws)
	}

	var header http.Header
	if ws.adminPassword != nil {
		header = http.Header{}
		header.Set("Authorization", "Basic "+basicAuth("admin", *ws.adminPassword))
	}

	ws.dispatcher = dispatch.New(ws.logger)
	ws.eng = engine.New(engine.Config{
		Host:       ws.addr,
		Timeout:    ws.timeout,
		FlowCredit: ws.flowCredit,
		Reconnect:  ws.reconnect,
		Logger:     ws.logger,
		Header:     header,
	}, ws)

	return ws, nil
}

// Run drives the connection until ctx is canceled, reconnecting
// indefinitely on transient failure (there is no give-up threshold: a
// channel outage is expected to resolve on the operator's side).
func (ws *Websocket) Run(ctx context.Context) error {
	return ws.eng.Run(ctx)
}

// Init satisfies engine.Adapter; Tap needs no per-connection setup.
func (ws *Websocket) Init(ctx context.Context) error { return nil }

// BuildPath satisfies engine.Adapter.
func (ws *Websocket) BuildPath() string { return channelPath }

func (ws *Websocket) OnConnected(ctx context.Context, send func(engine.FrameKind, []byte) error) {
	ws.logger.Debug("tap connected")
}

func (ws *Websocket) OnDisconnected(reason error) {
	ws.logger.Warn("tap disconnected", "reason", reason)
}

// HandleFrame satisfies engine.Adapter. Tap is text-frame-only; any other
// frame kind is ignored.
func (ws *Websocket) HandleFrame(ctx context.Context, frame engine.Frame) error {
	if frame.Kind != engine.FrameText {
		return nil
	}

	var event Event
	if err := json.Unmarshal(frame.Payload, &event); err != nil {
		metrics.framesDropped.WithLabelValues(dropReasonDecode).Inc()
		ws.logger.Warn("failed to unmarshal tap event", "err", err)
		return nil
	}

	metrics.eventsDispatched.Inc()
	id := event.ID
	ws.dispatcher.Go(func() {
		err := ws.handler(ctx, &event)
		if err != nil {
			if isNonRetryable(err) {
				ws.logger.Error("tap event handler failed permanently", "id", id, "err", err)
			} else {
				ws.logger.Error("tap event handler returned an error", "id", id, "err", err)
			}
			return
		}
		if ws.disableAcks {
			return
		}
		if sendErr := ws.sendAck(id); sendErr != nil {
			ws.logger.Error("failed to send tap ack", "id", id, "err", sendErr)
		}
	})

	return nil
}

func (ws *Websocket) sendAck(id uint64) error {
	buf, err := json.Marshal(newACKPayload(id))
	if err != nil {
		return fmt.Errorf("marshaling ack payload: %w", err)
	}
	if err := ws.eng.Send(engine.FrameText, buf); err != nil {
		return err
	}
	metrics.acksSent.Inc()
	return nil
}
