package interview

import "errors"

// Failure kinds surfaced by the interview pipeline. Handlers match with
// errors.Is and map them onto HTTP status codes.
var (
	// ErrInitialization means a session could not be created or seeded.
	ErrInitialization = errors.New("session initialization failed")

	// ErrInvalidState means an operation was attempted in the wrong
	// lifecycle state, e.g. a reply against a concluded session.
	ErrInvalidState = errors.New("invalid session state")

	// ErrTurnGeneration means the text-generation call failed or returned
	// nothing usable. Recoverable: the session stays in progress and the
	// respondent may retry.
	ErrTurnGeneration = errors.New("turn generation failed")

	// ErrExtraction means insight generation or validation failed. Terminal
	// for the attempt; nothing is persisted and the caller may re-trigger.
	ErrExtraction = errors.New("insight extraction failed")

	// ErrAggregation means the underlying insight fetch failed; the
	// aggregate view is surfaced as an error, never as partial data.
	ErrAggregation = errors.New("insight aggregation failed")
)
