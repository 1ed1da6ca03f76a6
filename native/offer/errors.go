package offer

import "errors"

// Error taxonomy surfaced by the engine. ErrVersionConflict is the only class
// callers are expected to retry automatically; all others are final outcomes
// for the attempt. Every failed operation leaves the store and the escrow
// vault unchanged.
var (
	// ErrNotFound is returned when no offer exists for the supplied id.
	ErrNotFound = errors.New("offer: not found")
	// ErrVersionConflict is returned when a compare-and-set write loses an
	// optimistic-concurrency race. Retryable: re-read, recompute, re-submit.
	ErrVersionConflict = errors.New("offer: version conflict")
	// ErrOfferNotActive is returned when the operation is structurally
	// invalid for the offer's current status or chain position.
	ErrOfferNotActive = errors.New("offer: not active")
	// ErrOfferExpired is returned when the offer's deadline has elapsed.
	ErrOfferExpired = errors.New("offer: expired")
	// ErrNotExpired is returned when an explicit expiry sweep is requested
	// before the offer's deadline.
	ErrNotExpired = errors.New("offer: deadline not reached")
	// ErrUnauthorized is returned when the caller is not entitled to the
	// requested transition.
	ErrUnauthorized = errors.New("offer: unauthorized caller")
	// ErrInvalidOwnership is returned when a counter-offer amends the
	// escrowed leg from the wrong side of the chain.
	ErrInvalidOwnership = errors.New("offer: invalid ownership")
	// ErrInsufficientBalance is returned when a party does not hold the
	// required leg amount at the instant of the check.
	ErrInsufficientBalance = errors.New("offer: insufficient balance")
	// ErrAmountOverflow is returned when an amount or amendment delta falls
	// outside the representable range.
	ErrAmountOverflow = errors.New("offer: amount out of range")
	// ErrChainDepthExceeded is returned when a counter-offer would exceed
	// the configured chain depth limit.
	ErrChainDepthExceeded = errors.New("offer: counter chain depth exceeded")
)
