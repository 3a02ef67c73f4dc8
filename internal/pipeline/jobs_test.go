package pipeline

import (
	"testing"
	"time"
)

func TestBuild_StateTransitions(t *testing.T) {
	b := &Build{
		ID:        "test-1",
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	transitions := []struct {
		status BuildStatus
		phase  string
	}{
		{StatusDiscovering, "discovering sources"},
		{StatusLoading, "loading documents"},
		{StatusPackaging, "building manifest"},
		{StatusWriting, "writing output"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := b.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		b.SetStatus(tr.status, tr.phase)

		if b.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, b.Status)
		}
		if b.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, b.Phase)
		}
		if !b.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestBuild_AddWarningAndError(t *testing.T) {
	b := &Build{ID: "warn-test", UpdatedAt: time.Now()}
	b.AddWarning("dropped img/a.png")
	b.AddWarning("skipped http://x/y.png")
	b.AddError("boom")

	snap := b.Snapshot()
	if len(snap.Progress.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %d", len(snap.Progress.Warnings))
	}
	if snap.Progress.Warnings[0] != "dropped img/a.png" {
		t.Errorf("expected first warning %q, got %q", "dropped img/a.png", snap.Progress.Warnings[0])
	}
	if len(snap.Progress.Errors) != 1 {
		t.Errorf("expected 1 error, got %d", len(snap.Progress.Errors))
	}
}

func TestBuild_DocumentCounters(t *testing.T) {
	b := &Build{ID: "incr-test", UpdatedAt: time.Now()}
	b.SetTotalDocuments(3)
	b.IncrDocumentsLoaded()
	b.IncrDocumentsLoaded()

	snap := b.Snapshot()
	if snap.Progress.TotalDocuments != 3 {
		t.Errorf("expected 3 total documents, got %d", snap.Progress.TotalDocuments)
	}
	if snap.Progress.DocumentsLoaded != 2 {
		t.Errorf("expected 2 documents loaded, got %d", snap.Progress.DocumentsLoaded)
	}
}

func TestBuild_SetResult(t *testing.T) {
	b := &Build{ID: "result-test"}
	if b.Result() != nil {
		t.Fatal("expected no result before completion")
	}
	r := &Result{Resources: 7, Dropped: []string{"a.png"}}
	b.SetResult(r)

	if b.Result() != r {
		t.Error("expected stored result")
	}
	snap := b.Snapshot()
	if snap.Progress.Resources != 7 || snap.Progress.Dropped != 1 {
		t.Errorf("unexpected progress %+v", snap.Progress)
	}
}

func TestBuild_SnapshotSlicesNotNil(t *testing.T) {
	// Snapshot should always return non-nil slices.
	b := &Build{ID: "snap-test", UpdatedAt: time.Now()}
	snap := b.Snapshot()
	if snap.Progress.Errors == nil || snap.Progress.Warnings == nil {
		t.Error("expected non-nil slices in snapshot")
	}
}

func TestBuildStore_PutGet(t *testing.T) {
	store := NewBuildStore(time.Hour)
	b := &Build{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(b)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get build back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
}

func TestBuildStore_GetMissing(t *testing.T) {
	store := NewBuildStore(time.Hour)
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing build")
	}
}

func TestBuildStore_TTLCleanup(t *testing.T) {
	store := NewBuildStore(50 * time.Millisecond)

	expired := &Build{ID: "old", UpdatedAt: time.Now()}
	store.Put(expired)

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	fresh := &Build{ID: "new", UpdatedAt: time.Now()}
	store.Put(fresh)

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired build to be cleaned up")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh build to survive cleanup")
	}
}
