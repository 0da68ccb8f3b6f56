package uploads

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mailkite/mailkite/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "uploads.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreSaveGet(t *testing.T) {
	store := newTestStore(t)

	upload := &Upload{
		UserID:   "user-1",
		FileName: "recipients.csv",
		Fields:   []string{"name", "email", "company"},
		Recipients: []models.Recipient{
			{Name: "Ann", Email: "ann@example.com", CustomFields: map[string]string{"company": "Acme"}},
		},
	}
	if err := store.Save(upload); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if upload.ID == "" {
		t.Fatal("Save did not assign an ID")
	}
	if upload.CreatedAt.IsZero() {
		t.Fatal("Save did not set CreatedAt")
	}

	got, err := store.Get(upload.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil for saved upload")
	}
	if got.UserID != "user-1" || got.FileName != "recipients.csv" {
		t.Errorf("got %q %q", got.UserID, got.FileName)
	}
	if len(got.Recipients) != 1 || got.Recipients[0].CustomFields["company"] != "Acme" {
		t.Errorf("recipients = %+v", got.Recipients)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Get("no-such-id")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)

	upload := &Upload{UserID: "user-1", FileName: "a.csv"}
	if err := store.Save(upload); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(upload.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err := store.Get(upload.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Error("upload still present after delete")
	}
}

func TestStoreCleanup(t *testing.T) {
	store := newTestStore(t)

	old := &Upload{UserID: "user-1", FileName: "old.csv", CreatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := &Upload{UserID: "user-1", FileName: "fresh.csv"}
	if err := store.Save(old); err != nil {
		t.Fatalf("Save old: %v", err)
	}
	if err := store.Save(fresh); err != nil {
		t.Fatalf("Save fresh: %v", err)
	}

	deleted, err := store.Cleanup(24 * time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	if got, _ := store.Get(old.ID); got != nil {
		t.Error("old upload survived cleanup")
	}
	if got, _ := store.Get(fresh.ID); got == nil {
		t.Error("fresh upload removed by cleanup")
	}
}
