package game

import "errors"

var (
	ErrDuplicatePlayer = errors.New("duplicate_player")
	ErrLengthMismatch  = errors.New("length_mismatch")
	ErrUnknownPlayer   = errors.New("unknown_player")
)

// ApplyPlay commits one card in sequential mode. Appending the same player
// twice is a noop. Failure is latched the instant a played number is smaller
// than the previous one; later numbers are still revealed but no longer
// checked. The returned bool reports whether the round is finished.
func ApplyPlay(order OrderState, playerID string, number int, allowContinue bool) (OrderState, bool) {
	next := cloneOrder(order)
	for _, id := range next.List {
		if id == playerID {
			return next, roundFinished(next, allowContinue)
		}
	}
	next.List = append(next.List, playerID)
	if len(next.List) > 1 && !next.Failed && number < next.LastNumber {
		next.Failed = true
		next.FailedAt = len(next.List) - 1
	}
	next.LastNumber = number
	return next, roundFinished(next, allowContinue)
}

func roundFinished(order OrderState, allowContinue bool) bool {
	if order.Total > 0 && len(order.List) >= order.Total {
		return true
	}
	return order.Failed && !allowContinue
}

// EvaluateSorted checks a full submitted ordering: read left to right the
// dealt numbers must be non-decreasing. failedAt is -1 on success.
func EvaluateSorted(list []string, numbers map[string]int) (success bool, failedAt int) {
	for i := 1; i < len(list); i++ {
		if numbers[list[i]] < numbers[list[i-1]] {
			return false, i
		}
	}
	return true, -1
}

// ValidateSubmitList rejects duplicate entries, a length mismatch against
// the expected participant count (when that count is at least 2), and
// entries not present in the round roster. Returns the expected count so
// callers can echo it back.
func ValidateSubmitList(list []string, roster []string, expected int) (int, error) {
	seen := make(map[string]struct{}, len(list))
	for _, id := range list {
		if _, dup := seen[id]; dup {
			return expected, ErrDuplicatePlayer
		}
		seen[id] = struct{}{}
	}
	if expected >= 2 && len(list) != expected {
		return expected, ErrLengthMismatch
	}
	members := make(map[string]struct{}, len(roster))
	for _, id := range roster {
		members[id] = struct{}{}
	}
	for _, id := range list {
		if _, ok := members[id]; !ok {
			return expected, ErrUnknownPlayer
		}
	}
	return expected, nil
}

// OutcomePayload is the pure result of judging a round: the fields a
// command writes back onto the room document.
type OutcomePayload struct {
	Order  OrderState
	Result RoomResult
	Stats  RoomStats
}

// BuildRevealOutcome judges a sort-submit ordering and produces the room
// fields for the reveal.
func BuildRevealOutcome(list []string, numbers map[string]int, prevStats RoomStats, revealedAt int64) OutcomePayload {
	success, failedAt := EvaluateSorted(list, numbers)
	order := NewOrderState(len(list))
	order.List = append([]string(nil), list...)
	order.Failed = !success
	order.FailedAt = failedAt
	if len(list) > 0 {
		order.LastNumber = numbers[list[len(list)-1]]
	}
	return OutcomePayload{
		Order: order,
		Result: RoomResult{
			Success:    success,
			List:       append([]string(nil), list...),
			Numbers:    cloneNumbers(numbers),
			FailedAt:   failedAt,
			RevealedAt: revealedAt,
		},
		Stats: ApplyOutcome(prevStats, outcomeOf(success)),
	}
}

// BuildPlayOutcome turns a finished sequential round into the same payload
// shape.
func BuildPlayOutcome(order OrderState, numbers map[string]int, prevStats RoomStats, revealedAt int64) OutcomePayload {
	success := !order.Failed
	return OutcomePayload{
		Order: cloneOrder(order),
		Result: RoomResult{
			Success:    success,
			List:       append([]string(nil), order.List...),
			Numbers:    cloneNumbers(numbers),
			FailedAt:   order.FailedAt,
			RevealedAt: revealedAt,
		},
		Stats: ApplyOutcome(prevStats, outcomeOf(success)),
	}
}

func outcomeOf(success bool) Outcome {
	if success {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

func cloneOrder(o OrderState) OrderState {
	o.List = append([]string(nil), o.List...)
	o.Proposal = append([]string(nil), o.Proposal...)
	return o
}

func cloneNumbers(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
