// Package firehose implements the Firehose stream adapter: the raw,
// whole-network CAR/DagCBOR-framed com.atproto.sync.subscribeRepos stream,
// with monotonic sequence tracking and no server-side filtering.
package firehose

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cometsh/atstream/dispatch"
	"github.com/cometsh/atstream/engine"
)

const subscribeReposPath = "/xrpc/com.atproto.sync.subscribeRepos"

// Option configures a Stream.
type Option func(*Stream)

// WithLogger sets the logger used for decode errors, dropped frames, and
// reconnects. A nil logger silences the adapter.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stream) {
		if logger == nil {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		s.logger = logger
	}
}

// WithCursor sets the starting seq to resume from on first connect.
func WithCursor(seq int64) Option {
	return func(s *Stream) { s.cursor = &seq }
}

// WithReconnectStrategy overrides the default exponential backoff.
func WithReconnectStrategy(strategy engine.Strategy) Option {
	return func(s *Stream) { s.reconnect = strategy }
}

// WithTimeout overrides the connect/upgrade timeout (default 5s).
func WithTimeout(d time.Duration) Option {
	return func(s *Stream) { s.timeout = d }
}

// WithFlowCredit overrides the WS ingress credit per grant cycle (default 10).
func WithFlowCredit(n int) Option {
	return func(s *Stream) { s.flowCredit = n }
}

// Stream is a Firehose client: an engine.Engine driving this adapter.
type Stream struct {
	host       string
	callbacks  Callbacks
	logger     *slog.Logger
	timeout    time.Duration
	flowCredit int
	reconnect  engine.Strategy

	dispatcher *dispatch.Dispatcher
	eng        *engine.Engine

	mu     sync.Mutex
	cursor *int64
}

// New constructs a Firehose Stream targeting host (scheme+host+port, e.g.
// "wss://bsky.network") and dispatching decoded events to callbacks.
func New(host string, callbacks Callbacks, opts ...Option) *Stream {
	s := &Stream{
		host:      host,
		callbacks: callbacks,
		logger:    slog.Default().WithGroup("firehose"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dispatcher = dispatch.New(s.logger)
	s.eng = engine.New(engine.Config{
		Host:       s.host,
		Timeout:    s.timeout,
		FlowCredit: s.flowCredit,
		Reconnect:  s.reconnect,
		Logger:     s.logger,
	}, s)
	return s
}

// Run drives the connection until ctx is canceled. It returns nil on clean
// shutdown or a wrapped engine.ErrInitialization on fatal setup failure.
func (s *Stream) Run(ctx context.Context) error {
	return s.eng.Run(ctx)
}

// Cursor returns the last accepted seq, or the starting seq set by
// WithCursor if no event with a seq has been accepted yet, or nil if
// neither exists.
func (s *Stream) Cursor() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == nil {
		return nil
	}
	c := *s.cursor
	return &c
}

// Init satisfies engine.Adapter; the Firehose adapter has no one-time setup
// beyond what New already did.
func (s *Stream) Init(ctx context.Context) error { return nil }

// BuildPath satisfies engine.Adapter, embedding the current cursor on every
// (re)connect so the relay resumes from the last accepted seq.
func (s *Stream) BuildPath() string {
	s.mu.Lock()
	cursor := s.cursor
	s.mu.Unlock()

	if cursor == nil {
		return subscribeReposPath
	}
	q := url.Values{}
	q.Set("cursor", strconv.FormatInt(*cursor, 10))
	return subscribeReposPath + "?" + q.Encode()
}

// OnConnected satisfies engine.Adapter; Firehose has no outbound control
// frames to send on connect.
func (s *Stream) OnConnected(ctx context.Context, send func(engine.FrameKind, []byte) error) {
	s.logger.Debug("firehose connected", "cursor", s.Cursor())
}

// OnDisconnected satisfies engine.Adapter.
func (s *Stream) OnDisconnected(reason error) {
	s.logger.Warn("firehose disconnected", "reason", reason)
}

// HandleFrame satisfies engine.Adapter. Only binary frames carry events;
// decode failures and protocol violations are logged and the frame is
// dropped without tearing down the connection, per §4.2/§7.
func (s *Stream) HandleFrame(ctx context.Context, frame engine.Frame) error {
	if frame.Kind != engine.FrameBinary {
		metrics.framesDropped.WithLabelValues(dropReasonNonBinary).Inc()
		return fmt.Errorf("unexpected non-binary frame from firehose")
	}

	h, payload, err := splitFrame(frame.Payload)
	if err != nil {
		metrics.framesDropped.WithLabelValues(dropReasonDecode).Inc()
		return fmt.Errorf("decoding frame: %w", err)
	}

	if h.Op == opError {
		metrics.framesDropped.WithLabelValues(dropReasonErrorOp).Inc()
		s.logger.Warn("firehose error frame", "tag", h.T, "payload", payload)
		return nil
	}

	ev, err := parseEvent(h.T, payload)
	if err != nil {
		metrics.framesDropped.WithLabelValues(dropReasonUnknownTag).Inc()
		return fmt.Errorf("parsing event %q: %w", h.T, err)
	}

	if seq, ok := ev.Seq(); ok {
		s.mu.Lock()
		valid := validSeq(s.cursor, &seq)
		if valid {
			s.cursor = &seq
		}
		s.mu.Unlock()

		if !valid {
			metrics.framesDropped.WithLabelValues(dropReasonOutOfOrder).Inc()
			s.logger.Warn("dropping out-of-sequence firehose event", "seq", seq)
			return nil
		}
	}

	metrics.eventsDispatched.Inc()
	s.dispatcher.Go(func() {
		if err := s.callbacks.dispatch(ev); err != nil {
			s.logger.Error("firehose event handler returned an error", "err", err)
		}
	})

	return nil
}

// validSeq implements the monotonicity rule from §4.2/§8: accept when last
// is unset and next is present, accept when next is unset, accept when both
// are set and next > last; reject otherwise.
func validSeq(last *int64, next *int64) bool {
	if next == nil {
		return true
	}
	if last == nil {
		return true
	}
	return *next > *last
}
