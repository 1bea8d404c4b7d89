package workflow

import (
	"errors"
	"testing"

	"parley/internal/domain"
)

func TestStoreCreateAndSnapshot(t *testing.T) {
	s := NewStore()
	_, err := s.Create(ThreadOptions{ID: "proposal-1", ProposalTitle: "Eco-Village", Location: "Squamish, BC"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	snap, err := s.Snapshot("proposal-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.ThreadID != "proposal-1" || snap.ProposalTitle != "Eco-Village" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestStoreDuplicateCreate(t *testing.T) {
	s := NewStore()
	if _, err := s.Create(ThreadOptions{ID: "proposal-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := s.Create(ThreadOptions{ID: "proposal-1"})
	if !errors.Is(err, ErrDuplicateThread) {
		t.Fatalf("expected ErrDuplicateThread, got %v", err)
	}
}

func TestStoreWithThreadNotFound(t *testing.T) {
	s := NewStore()
	err := s.WithThread("nope", func(*Thread) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreDelete(t *testing.T) {
	s := NewStore()
	if _, err := s.Create(ThreadOptions{ID: "proposal-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !s.Delete("proposal-1") {
		t.Fatal("delete should report true for existing thread")
	}
	if s.Delete("proposal-1") {
		t.Fatal("delete should report false for missing thread")
	}
	if s.Len() != 0 {
		t.Fatalf("store should be empty, got %d", s.Len())
	}
}

func TestStoreListCreationOrder(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"proposal-c", "proposal-a", "proposal-b"} {
		if _, err := s.Create(ThreadOptions{ID: id}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	list := s.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(list))
	}
	want := []string{"proposal-c", "proposal-a", "proposal-b"}
	for i, summary := range list {
		if summary.ThreadID != want[i] {
			t.Fatalf("list order: expected %s at %d, got %s", want[i], i, summary.ThreadID)
		}
	}
}

func TestStoreMutationVisibleAfterWithThread(t *testing.T) {
	s := NewStore()
	if _, err := s.Create(ThreadOptions{ID: "proposal-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.WithThread("proposal-1", func(th *Thread) error {
		th.UpsertStakeholder("a@example.ca", "Advisor", "", domain.EngagementBoth)
		return nil
	})
	if err != nil {
		t.Fatalf("with thread: %v", err)
	}
	snap, _ := s.Snapshot("proposal-1")
	if len(snap.Stakeholders) != 1 {
		t.Fatalf("expected 1 stakeholder, got %d", len(snap.Stakeholders))
	}
}
