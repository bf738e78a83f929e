// Package subscription holds the per-tenant trigger subscription registry.
//
// A subscription is created by the platform when a workflow adds the call
// trigger; it carries the URL the platform wants call events posted to. The
// Registry enforces upsert-by-ID and drop-when-empty semantics on top of a
// Store, which only needs to read and atomically replace a tenant's ordered
// subscription list.
package subscription

import (
	"encoding/json"
	"time"
)

// Subscription is a registered (workflow, endpoint) pair for a tenant.
type Subscription struct {
	// ID is the platform-assigned trigger ID. Unique within a tenant.
	ID string `json:"id"`

	// TargetURL is where call events are delivered.
	TargetURL string `json:"targetUrl"`

	// Filters are opaque filter objects forwarded by the platform, in order.
	Filters []json.RawMessage `json:"filters"`

	// WorkflowID is the automation workflow that owns the trigger.
	WorkflowID string `json:"workflowId,omitempty"`

	// CreatedAt is when the record was last written by a lifecycle event.
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy so callers never share filter buffers.
func (s Subscription) Clone() Subscription {
	out := s
	if s.Filters != nil {
		out.Filters = make([]json.RawMessage, len(s.Filters))
		for i, f := range s.Filters {
			out.Filters[i] = append(json.RawMessage(nil), f...)
		}
	}
	return out
}

// CloneAll deep-copies a tenant's subscription list. It never returns nil.
func CloneAll(subs []Subscription) []Subscription {
	out := make([]Subscription, len(subs))
	for i := range subs {
		out[i] = subs[i].Clone()
	}
	return out
}
