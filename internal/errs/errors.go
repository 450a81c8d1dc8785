// Package errs defines the error taxonomy shared by the server and the client.
package errs

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means an id or query resolved to nothing where one item was required
	ErrNotFound = errors.New("not found")
	// ErrTransport is a network or connection failure while streaming
	ErrTransport = errors.New("transport failure")
	// ErrCanceled means the caller canceled the request
	ErrCanceled = errors.New("request canceled")
	// ErrUpstream is a catalog or LLM backend failure
	ErrUpstream = errors.New("upstream failure")
	// ErrMalformedInput is a request missing a required field
	ErrMalformedInput = errors.New("malformed input")
)

// Retryable reports whether err should be retried by the streaming client.
// Only transport failures are, and never once the caller has canceled.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransport)
}
