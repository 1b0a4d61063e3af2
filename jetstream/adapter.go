// Package jetstream implements the Jetstream stream adapter: a filtered,
// zstd-with-dictionary-compressed JSON event stream with dynamic
// server-side filter updates and a microsecond cursor.
package jetstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/cometsh/atstream/dispatch"
	"github.com/cometsh/atstream/engine"
)

const subscribePath = "/subscribe"

// Option configures a Stream.
type Option func(*Stream)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Stream) {
		if logger == nil {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		s.logger = logger
	}
}

// WithCursor sets the starting time_us to resume from on first connect.
func WithCursor(timeUS int64) Option {
	return func(s *Stream) { s.cursor = &timeUS }
}

// WithWantedCollections sets the initial collection filter (≤100 entries).
func WithWantedCollections(collections []string) Option {
	return func(s *Stream) { s.wantedCollections = collections }
}

// WithWantedDids sets the initial DID filter (≤10,000 entries).
func WithWantedDids(dids []string) Option {
	return func(s *Stream) { s.wantedDids = dids }
}

// WithMaxMessageSizeBytes caps the ingress message size the server will send.
func WithMaxMessageSizeBytes(n int) Option {
	return func(s *Stream) { s.maxMessageSizeBytes = &n }
}

// WithRequireHello pauses the stream until the first options_update is sent.
func WithRequireHello() Option {
	return func(s *Stream) { s.requireHello = true }
}

// WithDictionary supplies the zstd dictionary bytes Jetstream compresses
// frames against. Required for compress=true ingress to decode; obtain it
// from the operator of the target Jetstream instance (it is a stable,
// versioned binary asset published alongside the service, not embedded in
// this module).
func WithDictionary(dictionary []byte) Option {
	return func(s *Stream) { s.dictionary = dictionary }
}

func WithReconnectStrategy(strategy engine.Strategy) Option {
	return func(s *Stream) { s.reconnect = strategy }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Stream) { s.timeout = d }
}

// WithFlowCredit overrides the WS ingress credit per grant cycle (default 10).
func WithFlowCredit(n int) Option {
	return func(s *Stream) { s.flowCredit = n }
}

// Stream is a Jetstream client: an engine.Engine driving this adapter.
type Stream struct {
	host       string
	callbacks  Callbacks
	logger     *slog.Logger
	timeout    time.Duration
	flowCredit int
	reconnect  engine.Strategy

	wantedCollections   []string
	wantedDids          []string
	maxMessageSizeBytes *int
	requireHello        bool
	dictionary          []byte

	dispatcher *dispatch.Dispatcher
	eng        *engine.Engine
	decoder    *zstd.Decoder

	mu     sync.Mutex
	cursor *int64
}

// New constructs a Jetstream Stream targeting host and dispatching decoded
// events to callbacks.
func New(host string, callbacks Callbacks, opts ...Option) *Stream {
	s := &Stream{
		host:      host,
		callbacks: callbacks,
		logger:    slog.Default().WithGroup("jetstream"),
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

func (s *Stream) Run(ctx context.Context) error {
	return s.eng.Run(ctx)
}

// Cursor returns the last time_us handed to dispatch, or the starting
// time_us set by WithCursor before the first event, or nil if neither
// exists.
func (s *Stream) Cursor() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == nil {
		return nil
	}
	c := *s.cursor
	return &c
}

// Init satisfies engine.Adapter: builds the shared zstd decoder for this
// stream's dictionary.
func (s *Stream) Init(ctx context.Context) error {
	dec, err := sharedDecoder(s.dictionary)
	if err != nil {
		return fmt.Errorf("initializing jetstream decoder: %w", err)
	}
	s.decoder = dec
	return nil
}

// BuildPath satisfies engine.Adapter.
func (s *Stream) BuildPath() string {
	q := url.Values{}
	q.Set("compress", "true")
	for _, c := range s.wantedCollections {
		q.Add("wantedCollections", c)
	}
	for _, d := range s.wantedDids {
		q.Add("wantedDids", d)
	}

	s.mu.Lock()
	cursor := s.cursor
	s.mu.Unlock()
	if cursor != nil {
		q.Set("cursor", strconv.FormatInt(*cursor, 10))
	}
	if s.maxMessageSizeBytes != nil {
		q.Set("maxMessageSizeBytes", strconv.Itoa(*s.maxMessageSizeBytes))
	}
	if s.requireHello {
		q.Set("requireHello", "true")
	}

	return subscribePath + "?" + q.Encode()
}

func (s *Stream) OnConnected(ctx context.Context, send func(engine.FrameKind, []byte) error) {
	s.logger.Debug("jetstream connected", "cursor", s.Cursor())
}

func (s *Stream) OnDisconnected(reason error) {
	s.logger.Warn("jetstream disconnected", "reason", reason)
}

// HandleFrame satisfies engine.Adapter. Binary frames are zstd-decompressed
// then parsed as JSON; text frames (unexpected under compress=true) are
// parsed as plain JSON directly, per the accept-and-parse decision recorded
// in SPEC_FULL.md §13.
func (s *Stream) HandleFrame(ctx context.Context, frame engine.Frame) error {
	var jsonBytes []byte

	switch frame.Kind {
	case engine.FrameBinary:
		out, err := decompress(s.decoder, frame.Payload)
		if err != nil {
			metrics.framesDropped.WithLabelValues(dropReasonDecompress).Inc()
			return fmt.Errorf("decompressing frame: %w", err)
		}
		jsonBytes = out
	case engine.FrameText:
		jsonBytes = frame.Payload
	default:
		return nil
	}

	ev, err := parseEvent(jsonBytes)
	if err != nil {
		metrics.framesDropped.WithLabelValues(dropReasonParse).Inc()
		return fmt.Errorf("parsing event: %w", err)
	}

	timeUS := ev.TimeUS()

	metrics.eventsDispatched.Inc()
	s.dispatcher.Go(func() {
		if err := s.callbacks.dispatch(ev); err != nil {
			s.logger.Error("jetstream event handler returned an error", "err", err)
		}
	})

	// Cursor advances immediately after the event is handed to dispatch,
	// not after the (concurrent, unordered) callback returns — a reconnect
	// must resume at or after the last event handed out, per §5.
	s.mu.Lock()
	s.cursor = &timeUS
	s.mu.Unlock()

	return nil
}

// UpdateOptions sends an options_update control frame, mutating the
// server's live filter. Only non-nil fields are included in the payload;
// an empty (non-nil) slice clears that filter entirely.
func (s *Stream) UpdateOptions(wantedCollections, wantedDids []string, maxMessageSizeBytes *int) error {
	payload := struct {
		Type    string `json:"type"`
		Payload struct {
			WantedCollections *[]string `json:"wantedCollections,omitempty"`
			WantedDids        *[]string `json:"wantedDids,omitempty"`
			MaxMessageSize    *int      `json:"maxMessageSizeBytes,omitempty"`
		} `json:"payload"`
	}{Type: "options_update"}

	if wantedCollections != nil {
		payload.Payload.WantedCollections = &wantedCollections
	}
	if wantedDids != nil {
		payload.Payload.WantedDids = &wantedDids
	}
	payload.Payload.MaxMessageSize = maxMessageSizeBytes

	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling options_update: %w", err)
	}

	s.mu.Lock()
	if wantedCollections != nil {
		s.wantedCollections = wantedCollections
	}
	if wantedDids != nil {
		s.wantedDids = wantedDids
	}
	if maxMessageSizeBytes != nil {
		s.maxMessageSizeBytes = maxMessageSizeBytes
	}
	s.mu.Unlock()

	return s.eng.Send(engine.FrameText, buf)
}
