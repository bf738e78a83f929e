package subscription

import "errors"

// ErrMalformedLifecycle is returned when a lifecycle payload lacks the
// subscription ID, target URL, or tenant ID.
var ErrMalformedLifecycle = errors.New("subscription: malformed lifecycle payload")

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "subscription validation: " + e.Field + ": " + e.Message
}
