// Package domain defines shared domain types and the error taxonomy.
package domain

import "errors"

// Request-level failure classes. Every handler error is mapped onto one of
// these at the trust boundary; callers only ever see a generic message while
// the wrapped detail goes to the logs.
var (
	// ErrUnauthorized marks a missing or wrong webhook secret (403).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMalformedInput marks an unparsable request body or a payload with
	// no usable sender (500, generic body).
	ErrMalformedInput = errors.New("malformed input")
	// ErrCorruptData marks an on-disk document that exists but does not
	// parse (500, maintenance message, no recovery attempted).
	ErrCorruptData = errors.New("corrupt data")
	// ErrPersistenceFailure marks a failed write or rename; the request's
	// mutations are discarded, never retried (500).
	ErrPersistenceFailure = errors.New("persistence failure")
)
