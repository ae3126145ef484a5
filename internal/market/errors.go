package market

import "errors"

var (
	// ErrUnknownSymbol means the exchange does not list the requested pair.
	ErrUnknownSymbol = errors.New("unknown symbol")
	// ErrUpstreamUnavailable means retries against the provider were exhausted.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrRateLimited is returned when the provider answers 429/418.
	ErrRateLimited = errors.New("rate limited")
)
