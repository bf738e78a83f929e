// Package delivery fans call events out to the trigger subscriptions of a
// tenant. Every subscription gets exactly one HTTP attempt; attempts run
// concurrently and the failure of one never affects the others.
package delivery

import (
	"time"

	"github.com/xraph/callrelay/id"
)

// Result is the outcome of a single HTTP POST.
type Result struct {
	StatusCode int
	Response   string
	Error      string
	LatencyMs  int
}

// Success reports whether the target answered with a 2xx status.
func (r Result) Success() bool {
	return r.Error == "" && r.StatusCode >= 200 && r.StatusCode < 300
}

// Outcome records one delivery to one subscription. Outcomes are not
// persisted; they are logged and returned to the caller.
type Outcome struct {
	DeliveryID     id.ID         `json:"deliveryId"`
	SubscriptionID string        `json:"subscriptionId"`
	TenantID       string        `json:"tenantId"`
	TargetURL      string        `json:"targetUrl"`
	Success        bool          `json:"success"`
	StatusCode     int           `json:"statusCode,omitempty"`
	Error          string        `json:"error,omitempty"`
	Latency        time.Duration `json:"latency"`
}
