package participant

import "testing"

func TestMemoryStoreSaveAssignsID(t *testing.T) {
	store := NewMemoryStore(nil)

	saved, err := store.Save(Participant{Name: "  Sam ", Context: "resume"})
	if err != nil {
		t.Fatalf("Save err: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected generated id")
	}
	if saved.Name != "Sam" {
		t.Fatalf("expected trimmed name, got %q", saved.Name)
	}

	got, ok := store.FindByID(saved.ID)
	if !ok || got.Context != "resume" {
		t.Fatalf("expected stored participant, got %+v", got)
	}
}

func TestMemoryStoreSaveReplaces(t *testing.T) {
	store := NewMemoryStore(Seed())
	before := len(store.List())

	if _, err := store.Save(Participant{ID: "demo-backend", Name: "Alex", Context: "updated"}); err != nil {
		t.Fatalf("Save err: %v", err)
	}

	if len(store.List()) != before {
		t.Fatalf("expected replace, list grew to %d", len(store.List()))
	}
	got, _ := store.FindByID("demo-backend")
	if got.Context != "updated" {
		t.Fatalf("expected updated context, got %q", got.Context)
	}
}

func TestMemoryStoreRequiresName(t *testing.T) {
	store := NewMemoryStore(nil)
	if _, err := store.Save(Participant{}); err != ErrNameRequired {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
}
