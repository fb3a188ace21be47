package backend

import (
	"testing"
)

func TestDelete(t *testing.T) {
	be := NewBackend()
	key := "/" + randStringRunes(8)

	if _, err := be.Put(key, []byte("v"), 0); err != nil {
		t.Fatalf("failed to put key with err:%v", err)
	}

	rev, deleted, err := be.DeleteRange(key, "")
	if err != nil {
		t.Fatalf("failed to delete key with err:%v", err)
	}
	if len(deleted) != 1 {
		t.Fatalf("expected 1 deleted record got %v", len(deleted))
	}
	if rev != be.CurrentRevision() {
		t.Fatalf("expected delete to consume current revision")
	}

	record, _, _ := be.Get(key)
	if record != nil {
		t.Fatalf("expected key to be gone")
	}

	// recreate resets version
	recreated, err := be.Put(key, []byte("v"), 0)
	if err != nil {
		t.Fatalf("failed to put key with err:%v", err)
	}
	if recreated.Version != 1 {
		t.Fatalf("expected version to restart at 1 got %v", recreated.Version)
	}
}

func TestDeleteMissing(t *testing.T) {
	be := NewBackend()
	before := be.CurrentRevision()

	_, deleted, err := be.DeleteRange("/no/such/key", "")
	if err != nil {
		t.Fatalf("unexpected err:%v", err)
	}
	if len(deleted) != 0 {
		t.Fatalf("expected nothing deleted")
	}
	if be.CurrentRevision() != before {
		t.Fatalf("delete of nothing should not consume a revision")
	}
}
