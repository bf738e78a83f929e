package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/callrelay/internal/fields"
)

// Action is the lifecycle discriminator sent by the platform.
type Action string

const (
	ActionCreated Action = "CREATED"
	ActionUpdated Action = "UPDATED"
	ActionDeleted Action = "DELETED"
)

// Transition reports what Apply did to the registry.
type Transition string

const (
	// TransitionUpserted covers ABSENT→ACTIVE and ACTIVE→ACTIVE.
	TransitionUpserted Transition = "upserted"

	// TransitionRemoved covers ACTIVE→ABSENT (and removal of an absent ID).
	TransitionRemoved Transition = "removed"

	// TransitionIgnored is returned for unrecognized actions.
	TransitionIgnored Transition = "ignored"
)

// Extraction rules for lifecycle payloads. The platform's own shape nests the
// descriptor under "triggerData" and the tenant under "extras"; the action
// has moved between the top level and the descriptor across versions.
var (
	actionRule     = fields.NewRule("action", "eventType", "action", "triggerData.eventType", "triggerData.action", "subscription.eventType", "subscription.action")
	descriptorRule = fields.NewRule("subscription", "triggerData", "subscription")
	tenantRule     = fields.NewRule("tenantId", "extras.locationId", "extras.tenantId", "tenantId", "locationId")
	workflowRule   = fields.NewRule("workflowId", "extras.workflowId", "workflowId", "triggerData.workflowId", "subscription.workflowId")
)

// Lifecycle is a decoded subscription lifecycle event.
type Lifecycle struct {
	Action       Action
	TenantID     string
	Subscription Subscription
}

// ParseLifecycle extracts a Lifecycle from a decoded JSON payload. It
// returns ErrMalformedLifecycle when the subscription ID, target URL, or
// tenant ID cannot be found. An unknown action is not an error.
func ParseLifecycle(doc map[string]any) (Lifecycle, error) {
	v, ok := descriptorRule.Value(doc)
	if !ok {
		return Lifecycle{}, fmt.Errorf("%w: missing subscription descriptor", ErrMalformedLifecycle)
	}
	desc, ok := v.(map[string]any)
	if !ok {
		return Lifecycle{}, fmt.Errorf("%w: subscription descriptor is not an object", ErrMalformedLifecycle)
	}

	subID, ok := fields.NewRule("id", "id").String(desc)
	if !ok {
		return Lifecycle{}, fmt.Errorf("%w: missing subscription id", ErrMalformedLifecycle)
	}
	targetURL, ok := fields.NewRule("targetUrl", "targetUrl").String(desc)
	if !ok {
		return Lifecycle{}, fmt.Errorf("%w: missing target url", ErrMalformedLifecycle)
	}
	tenantID, ok := tenantRule.String(doc)
	if !ok {
		return Lifecycle{}, fmt.Errorf("%w: missing tenant id", ErrMalformedLifecycle)
	}

	filters, err := decodeFilters(desc["filters"])
	if err != nil {
		return Lifecycle{}, err
	}

	return Lifecycle{
		Action:   Action(strings.ToUpper(strings.TrimSpace(actionRule.StringOr(doc, "")))),
		TenantID: tenantID,
		Subscription: Subscription{
			ID:         subID,
			TargetURL:  targetURL,
			Filters:    filters,
			WorkflowID: workflowRule.StringOr(doc, ""),
		},
	}, nil
}

func decodeFilters(v any) ([]json.RawMessage, error) {
	if v == nil {
		return []json.RawMessage{}, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: filters must be an array", ErrMalformedLifecycle)
	}
	out := make([]json.RawMessage, 0, len(list))
	for _, f := range list {
		raw, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("%w: filter: %v", ErrMalformedLifecycle, err)
		}
		out = append(out, raw)
	}
	return out, nil
}

// Apply runs the lifecycle state machine against the registry:
// CREATED and UPDATED upsert, DELETED removes, anything else is ignored.
func (r *Registry) Apply(ctx context.Context, lc Lifecycle) (Transition, error) {
	switch lc.Action {
	case ActionCreated, ActionUpdated:
		sub := lc.Subscription
		sub.CreatedAt = time.Now().UTC()
		if err := r.Upsert(ctx, lc.TenantID, sub); err != nil {
			return "", err
		}
		return TransitionUpserted, nil

	case ActionDeleted:
		if err := r.Remove(ctx, lc.TenantID, lc.Subscription.ID); err != nil {
			return "", err
		}
		return TransitionRemoved, nil

	default:
		r.logger.DebugContext(ctx, "lifecycle action ignored",
			"action", lc.Action,
			"tenant_id", lc.TenantID,
			"subscription_id", lc.Subscription.ID,
		)
		return TransitionIgnored, nil
	}
}
