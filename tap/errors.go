package tap

import (
	"errors"
	"fmt"
)

// ErrAdminHTTP is wrapped by every error the admin client returns for a
// non-2xx response, so callers can errors.Is against it without needing the
// concrete *AdminError type.
var ErrAdminHTTP = errors.New("tap: admin API error")

// AdminError is returned by AdminClient methods when the admin API responds
// with a non-2xx status, mirroring xrpc.Error's {StatusCode, body} shape.
type AdminError struct {
	StatusCode int
	Body       []byte
}

func (e *AdminError) Error() string {
	return fmt.Sprintf("tap admin API returned status %d: %s", e.StatusCode, string(e.Body))
}

func (e *AdminError) Unwrap() error { return ErrAdminHTTP }

// nonRetryableError marks a handler error that should not be treated as
// something the server's own ack-timeout retry could fix. Tap has no
// client-side nack, so wrapping an error with NewNonRetryableError doesn't
// change whether an ack is sent (never, on any error) — it only changes how
// the failure is logged, so operators can tell "will be retried by the
// server" apart from "would fail again".
type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string { return e.err.Error() }
func (e *nonRetryableError) Unwrap() error { return e.err }

// NewNonRetryableError wraps err to signal a permanent handler failure, as
// promised by this package's doc comment.
func NewNonRetryableError(err error) error {
	return &nonRetryableError{err: err}
}

func isNonRetryable(err error) bool {
	var nre *nonRetryableError
	return errors.As(err, &nre)
}
