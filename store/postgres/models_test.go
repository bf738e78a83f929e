package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/xraph/callrelay/subscription"
)

func TestTenantModelRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	subs := []subscription.Subscription{
		{
			ID:         "S1",
			TargetURL:  "https://hooks.example.com/a",
			Filters:    []json.RawMessage{json.RawMessage(`{"field":"callStatus","value":"completed"}`)},
			WorkflowID: "W1",
			CreatedAt:  created,
		},
		{ID: "S2", TargetURL: "https://hooks.example.com/b", Filters: []json.RawMessage{}},
	}

	m, err := toTenantModel("L1", subs)
	if err != nil {
		t.Fatal(err)
	}
	if m.TenantID != "L1" {
		t.Fatalf("tenant = %q", m.TenantID)
	}
	if m.UpdatedAt.IsZero() {
		t.Fatal("updated_at not set")
	}

	got, err := fromTenantModel(m)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "S1" || got[1].ID != "S2" {
		t.Fatalf("order not preserved: %+v", got)
	}
	if string(got[0].Filters[0]) != string(subs[0].Filters[0]) {
		t.Fatalf("filter = %s", got[0].Filters[0])
	}
	if got[0].WorkflowID != "W1" || !got[0].CreatedAt.Equal(created) {
		t.Fatalf("fields lost: %+v", got[0])
	}
}

func TestFromTenantModelCorrupt(t *testing.T) {
	m, err := toTenantModel("L1", nil)
	if err != nil {
		t.Fatal(err)
	}
	m.Subscriptions = m.Subscriptions[:1]
	if _, err := fromTenantModel(m); err == nil {
		t.Fatal("expected decode error")
	}
}
