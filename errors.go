package callrelay

import "errors"

// Sentinel errors returned by Relay operations.
var (
	// ErrNoStore is returned when a Relay is created without a store.
	ErrNoStore = errors.New("callrelay: store is required")

	// ErrInvalidSignature is returned when a call webhook carries a
	// signature header that does not verify against the raw body.
	ErrInvalidSignature = errors.New("callrelay: invalid signature")

	// ErrMalformedPayload is returned when a webhook body is not a JSON
	// object or lacks the fields its kind requires.
	ErrMalformedPayload = errors.New("callrelay: malformed payload")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("callrelay: store is closed")

	// ErrStopped is returned when work is submitted after Stop.
	ErrStopped = errors.New("callrelay: relay is stopped")
)
