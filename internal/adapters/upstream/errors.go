package upstream

import "errors"

// Sentinel kinds for upstream errors.
var (
	ErrTransport      = errors.New("upstream request failed")
	ErrHTTPStatus     = errors.New("upstream returned non-2xx status")
	ErrDecode         = errors.New("upstream response could not be decoded")
	ErrUpstreamStatus = errors.New("upstream reported failure")
	ErrInvalidTier    = errors.New("unsupported mastery tier")
)
