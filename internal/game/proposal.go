package game

// Proposal slots are a bounded []string where "" marks an empty slot.
// Invariants: no duplicate non-empty entries, trailing empties trimmed,
// length never exceeds maxCount.

type InsertStatus string

const (
	InsertOK   InsertStatus = "ok"
	InsertNoop InsertStatus = "noop"
)

type InsertResult struct {
	Status       InsertStatus
	Normalized   []string
	FinalIndex   int
	ChangedSlots int
	NullCount    int
}

// InsertProposal places playerID into the slot array. Re-inserting an
// already-placed player is a noop, so a retried network call cannot move or
// duplicate a card. A targetIndex of -1 means "first empty slot"; an
// explicit targetIndex that is already occupied by someone else is a noop
// (first writer wins the slot, the later write must be rejected rather than
// silently overwriting).
func InsertProposal(current []string, playerID string, maxCount, targetIndex int) InsertResult {
	before := NormalizeProposal(current, maxCount)
	if playerID == "" || maxCount <= 0 {
		return noopResult(before, playerID)
	}
	if idx := indexOf(before, playerID); idx >= 0 {
		return noopResult(before, playerID)
	}

	slots := make([]string, len(current))
	copy(slots, current)

	final := -1
	if targetIndex < 0 {
		limit := len(slots)
		if maxCount > limit {
			limit = maxCount
		}
		for i := 0; i < limit; i++ {
			if i >= len(slots) || slots[i] == "" {
				final = i
				break
			}
		}
		if final < 0 {
			final = len(slots)
		}
	} else {
		final = targetIndex
		if final > maxCount-1 {
			final = maxCount - 1
		}
		if final < len(slots) && slots[final] != "" {
			return noopResult(before, playerID)
		}
	}
	if final >= maxCount {
		// Appending past the bound would be truncated right back off.
		return noopResult(before, playerID)
	}

	for len(slots) <= final {
		slots = append(slots, "")
	}
	slots[final] = playerID

	after := NormalizeProposal(slots, maxCount)
	changed, nulls := DiffProposal(before, after)
	return InsertResult{
		Status:       InsertOK,
		Normalized:   after,
		FinalIndex:   final,
		ChangedSlots: changed,
		NullCount:    nulls,
	}
}

// RemoveProposal deletes the player's entry, leaving an empty slot in place
// rather than shifting later cards, then renormalizes.
func RemoveProposal(current []string, playerID string, maxCount int) []string {
	slots := make([]string, len(current))
	copy(slots, current)
	for i, v := range slots {
		if v == playerID {
			slots[i] = ""
		}
	}
	return NormalizeProposal(slots, maxCount)
}

// DropFromProposal removes the player's slot entirely, shifting later
// cards left. RemoveProposal keeps a gap for a card the player may put
// back; this is for a player who left the round and is not coming back.
func DropFromProposal(current []string, playerID string) []string {
	out := make([]string, 0, len(current))
	for _, v := range current {
		if v != playerID {
			out = append(out, v)
		}
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

// NormalizeProposal truncates to maxCount and strips trailing empty slots.
func NormalizeProposal(slots []string, maxCount int) []string {
	if maxCount <= 0 {
		return []string{}
	}
	n := len(slots)
	if n > maxCount {
		n = maxCount
	}
	out := make([]string, n)
	copy(out, slots[:n])
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

// DiffProposal reports how many slot values changed between two arrays and
// how many slots of the latter are empty. Used for idempotent write
// suppression and change badges.
func DiffProposal(before, after []string) (changed, nulls int) {
	n := len(before)
	if len(after) > n {
		n = len(after)
	}
	for i := 0; i < n; i++ {
		var b, a string
		if i < len(before) {
			b = before[i]
		}
		if i < len(after) {
			a = after[i]
		}
		if b != a {
			changed++
		}
	}
	for _, v := range after {
		if v == "" {
			nulls++
		}
	}
	return changed, nulls
}

func noopResult(normalized []string, playerID string) InsertResult {
	_, nulls := DiffProposal(normalized, normalized)
	return InsertResult{
		Status:     InsertNoop,
		Normalized: normalized,
		FinalIndex: indexOf(normalized, playerID),
		NullCount:  nulls,
	}
}

func indexOf(slots []string, playerID string) int {
	for i, v := range slots {
		if v != "" && v == playerID {
			return i
		}
	}
	return -1
}
