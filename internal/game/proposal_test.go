package game

import (
	"reflect"
	"testing"
)

func TestInsertProposalFirstEmpty(t *testing.T) {
	res := InsertProposal([]string{"", "A", ""}, "B", 5, -1)
	if res.Status != InsertOK {
		t.Fatalf("expected ok, got %s", res.Status)
	}
	if res.FinalIndex != 0 {
		t.Fatalf("expected slot 0, got %d", res.FinalIndex)
	}
	if !reflect.DeepEqual(res.Normalized, []string{"B", "A"}) {
		t.Fatalf("unexpected slots: %v", res.Normalized)
	}
}

func TestInsertProposalIdempotent(t *testing.T) {
	first := InsertProposal(nil, "A", 5, 2)
	if first.Status != InsertOK {
		t.Fatalf("expected ok, got %s", first.Status)
	}
	second := InsertProposal(first.Normalized, "A", 5, 0)
	if second.Status != InsertNoop {
		t.Fatalf("retried insert must be a noop, got %s", second.Status)
	}
	if !reflect.DeepEqual(second.Normalized, first.Normalized) {
		t.Fatalf("noop changed slots: %v vs %v", second.Normalized, first.Normalized)
	}
	if second.FinalIndex != 2 {
		t.Fatalf("expected existing index 2, got %d", second.FinalIndex)
	}
}

func TestInsertProposalOccupiedSlotIsNoop(t *testing.T) {
	current := []string{"", "A", ""}
	res := InsertProposal(current, "B", 5, 1)
	if res.Status != InsertNoop {
		t.Fatalf("occupied slot must lose, got %s", res.Status)
	}
	if !reflect.DeepEqual(res.Normalized, []string{"", "A"}) {
		t.Fatalf("losing insert changed slots: %v", res.Normalized)
	}
}

func TestInsertProposalExplicitIndex(t *testing.T) {
	res := InsertProposal([]string{"", "A", ""}, "B", 5, 0)
	if res.Status != InsertOK {
		t.Fatalf("expected ok, got %s", res.Status)
	}
	if !reflect.DeepEqual(res.Normalized, []string{"B", "A"}) {
		t.Fatalf("unexpected slots: %v", res.Normalized)
	}
}

func TestInsertProposalClampsIndex(t *testing.T) {
	res := InsertProposal(nil, "A", 3, 99)
	if res.Status != InsertOK || res.FinalIndex != 2 {
		t.Fatalf("expected clamp to 2, got %s at %d", res.Status, res.FinalIndex)
	}
}

func TestInsertProposalAppendWhenFull(t *testing.T) {
	res := InsertProposal([]string{"A", "B", "C"}, "D", 3, -1)
	if res.Status != InsertNoop {
		t.Fatalf("append past maxCount must be a noop, got %s", res.Status)
	}
}

func TestNormalizeProposal(t *testing.T) {
	if got := NormalizeProposal([]string{"A", "", ""}, 5); !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("trailing empties not trimmed: %v", got)
	}
	if got := NormalizeProposal([]string{}, 5); len(got) != 0 {
		t.Fatalf("empty input: %v", got)
	}
	if got := NormalizeProposal([]string{"A", "B"}, 0); len(got) != 0 {
		t.Fatalf("maxCount 0 must empty the array: %v", got)
	}
	if got := NormalizeProposal([]string{"A", "B", "C"}, 2); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Fatalf("truncation: %v", got)
	}
}

func TestRemoveProposalLeavesGap(t *testing.T) {
	got := RemoveProposal([]string{"A", "B", "C"}, "B", 5)
	if !reflect.DeepEqual(got, []string{"A", "", "C"}) {
		t.Fatalf("remove must leave an empty slot, got %v", got)
	}
	got = RemoveProposal(got, "C", 5)
	if !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("trailing gap must be trimmed, got %v", got)
	}
}

func TestDiffProposal(t *testing.T) {
	changed, nulls := DiffProposal([]string{"A", "B"}, []string{"A", "", "C"})
	if changed != 2 {
		t.Fatalf("expected 2 changed slots, got %d", changed)
	}
	if nulls != 1 {
		t.Fatalf("expected 1 empty slot, got %d", nulls)
	}
}
