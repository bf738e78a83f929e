package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/callrelay/subscription"
)

// tenantModel holds one tenant's full subscription set as a JSON array, so
// that replacing the set is a single-row upsert.
type tenantModel struct {
	grove.BaseModel `grove:"table:callrelay_tenants"`

	TenantID      string    `grove:"tenant_id,pk"`
	Subscriptions string    `grove:"subscriptions"`
	UpdatedAt     time.Time `grove:"updated_at"`
}

func toTenantModel(tenantID string, subs []subscription.Subscription) (*tenantModel, error) {
	raw, err := json.Marshal(subs)
	if err != nil {
		return nil, fmt.Errorf("marshal subscriptions: %w", err)
	}
	return &tenantModel{
		TenantID:      tenantID,
		Subscriptions: string(raw),
		UpdatedAt:     now(),
	}, nil
}

func fromTenantModel(m *tenantModel) ([]subscription.Subscription, error) {
	var subs []subscription.Subscription
	if err := json.Unmarshal([]byte(m.Subscriptions), &subs); err != nil {
		return nil, fmt.Errorf("unmarshal subscriptions for %q: %w", m.TenantID, err)
	}
	return subscription.CloneAll(subs), nil
}
