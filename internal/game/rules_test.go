package game

import (
	"errors"
	"testing"
)

func TestApplyPlaySuccess(t *testing.T) {
	order := NewOrderState(3)
	numbers := map[string]int{"a": 1, "b": 2, "c": 3}
	var finished bool
	for _, id := range []string{"a", "b", "c"} {
		order, finished = ApplyPlay(order, id, numbers[id], false)
	}
	if !finished {
		t.Fatal("round should finish when all cards are played")
	}
	if order.Failed {
		t.Fatalf("ascending plays must not fail, failedAt=%d", order.FailedAt)
	}
	if order.FailedAt != -1 {
		t.Fatalf("expected failedAt -1, got %d", order.FailedAt)
	}
}

func TestApplyPlayFailsOnDescent(t *testing.T) {
	order := NewOrderState(3)
	numbers := map[string]int{"a": 3, "b": 5, "c": 2}
	order, _ = ApplyPlay(order, "a", numbers["a"], false)
	order, finished := ApplyPlay(order, "b", numbers["b"], false)
	if finished || order.Failed {
		t.Fatal("no failure expected yet")
	}
	order, finished = ApplyPlay(order, "c", numbers["c"], false)
	if !order.Failed {
		t.Fatal("2 after 5 must fail")
	}
	if order.FailedAt != 2 {
		t.Fatalf("expected failedAt 2, got %d", order.FailedAt)
	}
	if !finished {
		t.Fatal("failed round without allowContinue must finish")
	}
}

func TestApplyPlayAllowContinue(t *testing.T) {
	order := NewOrderState(3)
	order, _ = ApplyPlay(order, "a", 5, true)
	order, finished := ApplyPlay(order, "b", 2, true)
	if !order.Failed {
		t.Fatal("failure must still be latched")
	}
	if finished {
		t.Fatal("allowContinue keeps the round open until every card is out")
	}
	order, finished = ApplyPlay(order, "c", 9, true)
	if !finished {
		t.Fatal("round finishes once all cards are played")
	}
	if order.FailedAt != 1 {
		t.Fatalf("later plays must not move failedAt, got %d", order.FailedAt)
	}
}

func TestApplyPlayIdempotent(t *testing.T) {
	order := NewOrderState(3)
	order, _ = ApplyPlay(order, "a", 5, false)
	again, _ := ApplyPlay(order, "a", 5, false)
	if len(again.List) != 1 {
		t.Fatalf("replayed card duplicated the list: %v", again.List)
	}
}

func TestEvaluateSorted(t *testing.T) {
	numbers := map[string]int{"a": 1, "b": 2, "c": 3}
	if ok, at := EvaluateSorted([]string{"a", "b", "c"}, numbers); !ok || at != -1 {
		t.Fatalf("expected success, got ok=%v at=%d", ok, at)
	}
	if ok, at := EvaluateSorted([]string{"b", "a", "c"}, numbers); ok || at != 1 {
		t.Fatalf("expected failure at 1, got ok=%v at=%d", ok, at)
	}
}

func TestValidateSubmitList(t *testing.T) {
	roster := []string{"a", "b", "c"}
	if _, err := ValidateSubmitList([]string{"a", "a", "b"}, roster, 3); !errors.Is(err, ErrDuplicatePlayer) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := ValidateSubmitList([]string{"a", "b"}, roster, 3); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected length error, got %v", err)
	}
	if _, err := ValidateSubmitList([]string{"a", "b", "z"}, roster, 3); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("expected membership error, got %v", err)
	}
	expected, err := ValidateSubmitList([]string{"c", "a", "b"}, roster, 3)
	if err != nil {
		t.Fatalf("valid list rejected: %v", err)
	}
	if expected != 3 {
		t.Fatalf("expected count 3, got %d", expected)
	}
	// Length check is skipped while fewer than 2 participants are expected.
	if _, err := ValidateSubmitList([]string{"a"}, roster, 1); err != nil {
		t.Fatalf("short roster rejected: %v", err)
	}
}

func TestBuildRevealOutcome(t *testing.T) {
	numbers := map[string]int{"a": 10, "b": 20, "c": 30}
	payload := BuildRevealOutcome([]string{"a", "b", "c"}, numbers, RoomStats{}, 1234)
	if !payload.Result.Success {
		t.Fatal("expected success")
	}
	if payload.Stats.Total != 1 || payload.Stats.Success != 1 {
		t.Fatalf("stats not folded: %+v", payload.Stats)
	}
	if payload.Result.RevealedAt != 1234 {
		t.Fatalf("revealedAt lost: %d", payload.Result.RevealedAt)
	}

	failed := BuildRevealOutcome([]string{"b", "a", "c"}, numbers, payload.Stats, 1235)
	if failed.Result.Success {
		t.Fatal("expected failure")
	}
	if failed.Result.FailedAt != 1 {
		t.Fatalf("expected failedAt 1, got %d", failed.Result.FailedAt)
	}
	if failed.Stats.Total != 2 || failed.Stats.Failure != 1 {
		t.Fatalf("stats not folded: %+v", failed.Stats)
	}
}

func TestBuildPlayOutcome(t *testing.T) {
	order := NewOrderState(2)
	order, _ = ApplyPlay(order, "a", 5, false)
	order, _ = ApplyPlay(order, "b", 9, false)
	payload := BuildPlayOutcome(order, map[string]int{"a": 5, "b": 9}, RoomStats{}, 1)
	if !payload.Result.Success {
		t.Fatal("expected success")
	}
	if payload.Stats.Streak != 1 {
		t.Fatalf("streak not applied: %+v", payload.Stats)
	}
}
