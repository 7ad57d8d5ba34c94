package quiz

import "errors"

// Business-state conflicts. These reflect real state, not transient failure;
// callers resolve them client-side and never retry automatically.
var (
	ErrAttemptsExhausted = errors.New("no attempts remaining")
	ErrNoActiveAttempt   = errors.New("no active attempt")
	ErrAlreadySubmitted  = errors.New("attempt already submitted")
)

var (
	ErrNotFound  = errors.New("quiz not found")
	ErrForbidden = errors.New("forbidden")
)
