package game

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

type RoomStats struct {
	Total      int `json:"total"`
	Success    int `json:"success"`
	Failure    int `json:"failure"`
	Streak     int `json:"streak"`
	BestStreak int `json:"bestStreak"`
}

// ApplyOutcome folds one round outcome into the aggregate. Replaying the
// same outcome sequence always yields the same aggregate, which lets
// client-predicted and server-confirmed stats be compared for divergence.
func ApplyOutcome(prev RoomStats, outcome Outcome) RoomStats {
	next := prev
	next.Total++
	switch outcome {
	case OutcomeSuccess:
		next.Success++
		next.Streak++
		if next.Streak > next.BestStreak {
			next.BestStreak = next.Streak
		}
	case OutcomeFailure:
		next.Failure++
		next.Streak = 0
	}
	return next
}
