package route

import "errors"

// Failure kinds shared by providers and external clients. All of them are
// recovered locally; callers match them with errors.Is.
var (
	// ErrNetworkFailure covers rejected requests and non-2xx responses.
	ErrNetworkFailure = errors.New("network failure")
	// ErrMalformedResponse means a response was missing expected fields.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrEmptySequence means fewer than two points were available.
	ErrEmptySequence = errors.New("empty sequence")
)
