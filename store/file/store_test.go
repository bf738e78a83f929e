package file_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/callrelay"
	"github.com/xraph/callrelay/store/file"
	"github.com/xraph/callrelay/subscription"
)

func sub(subID string) subscription.Subscription {
	return subscription.Subscription{
		ID:        subID,
		TargetURL: "https://example.com/" + subID,
		Filters:   []json.RawMessage{json.RawMessage(`{"field":"direction","value":"inbound"}`)},
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestOpenMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "subs.json")
	s, err := file.Open(path)
	if err != nil {
		t.Fatal(err)
	}

	subs, err := s.GetSubscriptions(context.Background(), "L1")
	if err != nil {
		t.Fatal(err)
	}
	if subs == nil || len(subs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", subs)
	}
}

func TestPersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "subs.json")

	s, err := file.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetSubscriptions(ctx, "L1", []subscription.Subscription{sub("S1"), sub("S2")}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSubscriptions(ctx, "L2", []subscription.Subscription{sub("S3")}); err != nil {
		t.Fatal(err)
	}

	reopened, err := file.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	subs, err := reopened.GetSubscriptions(ctx, "L1")
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 || subs[0].ID != "S1" || subs[1].ID != "S2" {
		t.Fatalf("unexpected reloaded set: %+v", subs)
	}
	if string(subs[0].Filters[0]) != `{"field":"direction","value":"inbound"}` {
		t.Fatalf("filters not preserved: %s", subs[0].Filters[0])
	}

	var doc map[string][]map[string]any
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc["L1"][0]["targetUrl"] != "https://example.com/S1" {
		t.Fatalf("unexpected on-disk layout: %s", data)
	}
}

func TestEmptySetRemovesTenant(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "subs.json")

	s, err := file.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetSubscriptions(ctx, "L1", []subscription.Subscription{sub("S1")}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSubscriptions(ctx, "L1", nil); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if _, ok := doc["L1"]; ok {
		t.Fatalf("expected tenant key removed, got %s", data)
	}
}

func TestNoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := file.Open(filepath.Join(dir, "subs.json"))
	if err != nil {
		t.Fatal(err)
	}
	for range 5 {
		if err := s.SetSubscriptions(ctx, "L1", []subscription.Subscription{sub("S1")}); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the data file, got %d entries", len(entries))
	}
}

func TestReadsDoNotAlias(t *testing.T) {
	ctx := context.Background()
	s, err := file.Open(filepath.Join(t.TempDir(), "subs.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetSubscriptions(ctx, "L1", []subscription.Subscription{sub("S1")}); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetSubscriptions(ctx, "L1")
	got[0].TargetURL = "https://mutated.example.com"

	again, _ := s.GetSubscriptions(ctx, "L1")
	if again[0].TargetURL != "https://example.com/S1" {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := file.Open(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	s, err := file.Open(filepath.Join(t.TempDir(), "subs.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	if err := s.Ping(ctx); !errors.Is(err, callrelay.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
	if err := s.SetSubscriptions(ctx, "L1", []subscription.Subscription{sub("S1")}); !errors.Is(err, callrelay.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
}
