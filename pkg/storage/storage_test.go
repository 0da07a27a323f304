package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSettingsLifecycle(t *testing.T) {
	store := newTestStore(t)

	if err := store.SetSetting("proxy_list", "http://p1:8080"); err != nil {
		t.Fatalf("failed to set setting: %v", err)
	}

	value, err := store.GetSetting("proxy_list")
	if err != nil {
		t.Fatalf("failed to get setting: %v", err)
	}
	if value != "http://p1:8080" {
		t.Errorf("expected proxy_list=http://p1:8080, got %q", value)
	}

	if err := store.SetSetting("proxy_list", "http://p2:8080"); err != nil {
		t.Fatalf("failed to update setting: %v", err)
	}
	value, err = store.GetSetting("proxy_list")
	if err != nil {
		t.Fatalf("failed to get setting after update: %v", err)
	}
	if value != "http://p2:8080" {
		t.Errorf("expected proxy_list=http://p2:8080, got %q", value)
	}

	// Empty value deletes the row.
	if err := store.SetSetting("proxy_list", ""); err != nil {
		t.Fatalf("failed to delete setting: %v", err)
	}
	settings, err := store.GetSettings([]string{"proxy_list"})
	if err != nil {
		t.Fatalf("failed to get settings after delete: %v", err)
	}
	if _, exists := settings["proxy_list"]; exists {
		t.Errorf("expected proxy_list to be deleted, but it exists")
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	store := newTestStore(t)

	secret, err := GenerateAPIKeyValue()
	if err != nil {
		t.Fatalf("failed to generate key value: %v", err)
	}
	if len(secret) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(secret))
	}

	created, err := store.CreateAPIKey("ci", secret)
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}
	if created.Prefix != secret[:8] {
		t.Errorf("expected prefix %q, got %q", secret[:8], created.Prefix)
	}

	key, err := store.ValidateAPIKey(secret)
	if err != nil {
		t.Fatalf("failed to validate key: %v", err)
	}
	if key == nil || key.ID != created.ID {
		t.Fatalf("expected key %q, got %+v", created.ID, key)
	}

	if key, err := store.ValidateAPIKey("not-the-secret"); err != nil || key != nil {
		t.Fatalf("expected miss for wrong secret, got key=%+v err=%v", key, err)
	}

	if err := store.RevokeAPIKey(created.ID); err != nil {
		t.Fatalf("failed to revoke key: %v", err)
	}
	if key, err := store.ValidateAPIKey(secret); err != nil || key != nil {
		t.Fatalf("expected revoked key to fail validation, got key=%+v err=%v", key, err)
	}

	keys, err := store.ListAPIKeys()
	if err != nil {
		t.Fatalf("failed to list keys: %v", err)
	}
	if len(keys) != 1 || !keys[0].Revoked {
		t.Errorf("expected one revoked key, got %+v", keys)
	}
}

func TestRequestLogRoundTrip(t *testing.T) {
	store := newTestStore(t)

	rec := &RequestLog{
		RequestID: "ab12cd34",
		TargetURL: "https://example.com/protected",
		Outcome:   OutcomeSolved,
		Attempts:  1,
		ElapsedMs: 4200,
	}
	if err := store.SaveRequestLog(rec); err != nil {
		t.Fatalf("failed to save request log: %v", err)
	}
	if rec.ID == 0 {
		t.Fatal("expected row ID to be assigned")
	}
	if rec.Channel != "direct" {
		t.Errorf("expected channel default direct, got %q", rec.Channel)
	}

	failed := &RequestLog{
		RequestID: "ef56ab78",
		TargetURL: "https://example.com/protected",
		Channel:   "http://proxy:8080",
		Outcome:   OutcomeManual,
		Attempts:  2,
		Error:     "manual challenge presented",
	}
	if err := store.SaveRequestLog(failed); err != nil {
		t.Fatalf("failed to save failed request log: %v", err)
	}

	logs, err := store.ListRequestLogs(10)
	if err != nil {
		t.Fatalf("failed to list request logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	// Newest first.
	if logs[0].RequestID != "ef56ab78" {
		t.Errorf("expected newest log first, got %q", logs[0].RequestID)
	}
	if logs[0].Error != "manual challenge presented" {
		t.Errorf("unexpected error text %q", logs[0].Error)
	}
	if logs[1].Error != "" {
		t.Errorf("expected empty error for solved log, got %q", logs[1].Error)
	}

	counts, err := store.CountRequestLogs()
	if err != nil {
		t.Fatalf("failed to count request logs: %v", err)
	}
	if counts[OutcomeSolved] != 1 || counts[OutcomeManual] != 1 {
		t.Errorf("unexpected counts %+v", counts)
	}
}

func TestPruneRequestLogs(t *testing.T) {
	store := newTestStore(t)

	old := &RequestLog{
		RequestID: "old00000",
		TargetURL: "https://example.com",
		Outcome:   OutcomeSolved,
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	if err := store.SaveRequestLog(old); err != nil {
		t.Fatalf("failed to save old log: %v", err)
	}
	recent := &RequestLog{
		RequestID: "new00000",
		TargetURL: "https://example.com",
		Outcome:   OutcomeSolved,
	}
	if err := store.SaveRequestLog(recent); err != nil {
		t.Fatalf("failed to save recent log: %v", err)
	}

	removed, err := store.PruneRequestLogs(time.Now().UTC().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 pruned row, got %d", removed)
	}

	logs, err := store.ListRequestLogs(10)
	if err != nil {
		t.Fatalf("failed to list after prune: %v", err)
	}
	if len(logs) != 1 || logs[0].RequestID != "new00000" {
		t.Errorf("expected only recent log to remain, got %+v", logs)
	}
}

func TestClosedStoreGuards(t *testing.T) {
	var store *Store
	if _, err := store.ListAPIKeys(); err != ErrStoreClosed {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
	if err := store.SetSetting("k", "v"); err != ErrStoreClosed {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
	if err := store.SaveRequestLog(&RequestLog{}); err != ErrStoreClosed {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
}
