package game

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusClue     Status = "clue"
	StatusReveal   Status = "reveal"
	StatusFinished Status = "finished"
)

var transitions = map[Status][]Status{
	StatusWaiting:  {StatusClue},
	StatusClue:     {StatusReveal, StatusWaiting},
	StatusReveal:   {StatusFinished, StatusWaiting},
	StatusFinished: {StatusWaiting, StatusClue},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether moving from one status to another is a
// legal edge of the room state machine. finished -> clue covers the
// host-initiated immediate restart that bypasses waiting.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusAllowed reports whether the current status satisfies a command's
// precondition set. Commands whose precondition fails must not mutate state.
func StatusAllowed(current Status, valid ...Status) bool {
	for _, v := range valid {
		if current == v {
			return true
		}
	}
	return false
}
