package mongo

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/callrelay/subscription"
)

// tenantModel is one document per tenant. Filters are opaque JSON and are
// kept as strings so they round-trip byte for byte.
type tenantModel struct {
	grove.BaseModel `grove:"table:callrelay_tenants"`

	TenantID      string              `grove:"id,pk"         bson:"_id"`
	Subscriptions []subscriptionModel `grove:"subscriptions" bson:"subscriptions"`
	UpdatedAt     time.Time           `grove:"updated_at"    bson:"updated_at"`
}

type subscriptionModel struct {
	ID         string    `bson:"id"`
	TargetURL  string    `bson:"target_url"`
	Filters    []string  `bson:"filters"`
	WorkflowID string    `bson:"workflow_id,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
}

func toTenantModel(tenantID string, subs []subscription.Subscription) *tenantModel {
	m := &tenantModel{
		TenantID:      tenantID,
		Subscriptions: make([]subscriptionModel, len(subs)),
		UpdatedAt:     now(),
	}
	for i, sub := range subs {
		filters := make([]string, len(sub.Filters))
		for j, f := range sub.Filters {
			filters[j] = string(f)
		}
		m.Subscriptions[i] = subscriptionModel{
			ID:         sub.ID,
			TargetURL:  sub.TargetURL,
			Filters:    filters,
			WorkflowID: sub.WorkflowID,
			CreatedAt:  sub.CreatedAt,
		}
	}
	return m
}

func fromTenantModel(m *tenantModel) []subscription.Subscription {
	out := make([]subscription.Subscription, len(m.Subscriptions))
	for i, sm := range m.Subscriptions {
		filters := make([]json.RawMessage, len(sm.Filters))
		for j, f := range sm.Filters {
			filters[j] = json.RawMessage(f)
		}
		out[i] = subscription.Subscription{
			ID:         sm.ID,
			TargetURL:  sm.TargetURL,
			Filters:    filters,
			WorkflowID: sm.WorkflowID,
			CreatedAt:  sm.CreatedAt,
		}
	}
	return out
}
