package domain

import "errors"

var (
	// ErrNotFound is returned by single-market lookups and metadata reads for
	// unknown tickers. It is a valid outcome, not a failure.
	ErrNotFound = errors.New("not found")

	// ErrAuthRejected marks a 401/403 from the exchange. The scanner reacts by
	// invalidating the token cache and abandoning the current cycle.
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrInvalidConfig is fatal at startup; the loop is never entered.
	ErrInvalidConfig = errors.New("invalid configuration")
)
