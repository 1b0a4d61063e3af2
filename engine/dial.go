package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/cometsh/atstream/internal/util"
)

// httpDialError wraps a non-101 upgrade response. Per the connection engine
// design this always routes to the reconnect path, never a fatal error.
type httpDialError struct {
	status int
	err    error
}

func (e *httpDialError) Error() string {
	return fmt.Sprintf("websocket upgrade rejected with status %d: %v", e.status, e.err)
}

func (e *httpDialError) Unwrap() error { return e.err }

// dialTimeoutError marks a connect_timeout or upgrade_timeout expiry. Since
// both timeout classes route to reconnect regardless of which phase of the
// dial they occurred in, the engine does not need to tell them apart.
type dialTimeoutError struct {
	err error
}

func (e *dialTimeoutError) Error() string { return fmt.Sprintf("dial timed out: %v", e.err) }
func (e *dialTimeoutError) Unwrap() error { return e.err }

// dial opens the transport and performs the WebSocket upgrade in one round
// trip. gorilla's Dialer folds the TCP+TLS connect and the HTTP upgrade
// into a single call; the engine tells them apart after the fact by
// inspecting the returned response: a non-nil resp with a bad status means
// the transport was open and the upgrade itself was rejected (ConnectingWS);
// a nil resp means the transport never opened, in which case a timed-out
// dial context reconnects but any other error is a fatal initialization
// failure, matching the ConnectingHTTP entry action.
func (e *Engine) dial(ctx context.Context) (*websocket.Conn, *http.Response, error) {
	dialCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	dialer := websocket.Dialer{
		HandshakeTimeout: e.cfg.Timeout,
	}
	if e.cfg.TLSClientConfig != nil {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: e.cfg.TLSClientConfig.InsecureSkipVerify,
		}
	}

	host := util.WebsocketUrlForHost(strings.TrimRight(e.cfg.Host, "/"))
	target := host + e.adapter.BuildPath()

	conn, resp, err := dialer.DialContext(dialCtx, target, e.cfg.Header)
	if err == nil {
		return conn, resp, nil
	}

	if resp != nil {
		return nil, nil, &httpDialError{status: resp.StatusCode, err: err}
	}

	if dialCtx.Err() != nil && ctx.Err() == nil {
		return nil, nil, &dialTimeoutError{err: err}
	}

	return nil, nil, err
}
