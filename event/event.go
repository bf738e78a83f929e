// Package event defines the canonical call event and the normalizer that
// builds it from raw platform payloads.
package event

import "time"

// CallType is the discriminator value for call-completion payloads.
const CallType = "CALL"

// CallEvent is the canonical, defaulted form of an inbound call event.
// It is a value type and is never modified after Normalize returns.
type CallEvent struct {
	// TenantID is the platform location the call belongs to.
	TenantID string `json:"tenantId"`

	// CallDuration is the call length in seconds, never negative.
	CallDuration float64 `json:"callDuration"`

	CallStatus string `json:"callStatus"`
	Direction  string `json:"direction"`

	// Optional identifiers. Nil means the payload did not carry the field.
	ContactID      *string `json:"contactId"`
	From           *string `json:"from"`
	To             *string `json:"to"`
	ConversationID *string `json:"conversationId"`
	MessageID      *string `json:"messageId"`

	// DateAdded is the platform timestamp, or receipt time when absent.
	DateAdded time.Time `json:"dateAdded"`
}
