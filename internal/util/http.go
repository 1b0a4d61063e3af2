package util

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// leveledSlog adapts a *slog.Logger to retryablehttp's LeveledLogger
// interface, folding ERROR down to WARN since retryablehttp logs an ERROR
// on every attempt that will still be retried.
type leveledSlog struct {
	inner *slog.Logger
}

func (l leveledSlog) Error(msg string, kv ...interface{}) { l.inner.Warn(msg, kv...) }
func (l leveledSlog) Warn(msg string, kv ...interface{})  { l.inner.Warn(msg, kv...) }
func (l leveledSlog) Info(msg string, kv ...interface{})  { l.inner.Info(msg, kv...) }
func (l leveledSlog) Debug(msg string, kv ...interface{}) { l.inner.Debug(msg, kv...) }

// RobustHTTPClient returns an *http.Client with retryablehttp underneath,
// retrying on connection errors, 5xx (except 501), and 429 responses
// (respecting Retry-After). Intermediate failures log at WARN via logger.
// When the retries run out on a retryable status, the last response is
// returned as is, so callers still see its status code and body.
//
// This does not start from http.DefaultClient.
func RobustHTTPClient(logger *slog.Logger) *http.Client {
	if logger == nil {
		logger = slog.Default()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(leveledSlog{logger})
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client := retryClient.StandardClient()
	client.Timeout = 20 * time.Second
	return client
}
