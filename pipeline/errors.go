package pipeline

import "errors"

// Error kinds for the optimizer pipeline. Auxiliary errors are logged and
// swallowed; upstream failures terminate the request; quality failures
// still produce a normal response with failure metadata.
var (
	// ErrInvalidInput marks missing or invalid request fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstreamUnavailable marks an embedder or provider failure.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrCancelled marks a cancelled request context.
	ErrCancelled = errors.New("request cancelled")
	// ErrDegradedAuxiliary marks a cache or state store failure that was
	// downgraded without user-visible effect.
	ErrDegradedAuxiliary = errors.New("auxiliary subsystem degraded")
	// ErrQualityGuardFailed marks caller-supplied checks rejecting the
	// response even after the retry.
	ErrQualityGuardFailed = errors.New("quality guard failed")
	// ErrInvariantViolation marks an internal pipeline invariant breach.
	ErrInvariantViolation = errors.New("pipeline invariant violated")
)
