package presence

import "github.com/riffluv/ito-sub004/internal/game"

// Participant is a room player annotated with live connectivity.
type Participant struct {
	game.Player
	Online bool `json:"online"`
}

// Merge combines the document-store player list with the presence
// channel roster. A player is online when the channel reports them
// connected, or, as a fallback for rooms without a presence channel,
// when their lastSeenAt is within windowMS of now. Player order is
// preserved; presence uids without a player document are ignored.
func Merge(players []game.Player, present []string, nowMS, windowMS int64) []Participant {
	connected := make(map[string]struct{}, len(present))
	for _, uid := range present {
		connected[uid] = struct{}{}
	}
	out := make([]Participant, len(players))
	for i, p := range players {
		_, online := connected[p.UID]
		if !online && windowMS > 0 && p.LastSeenAt > 0 && nowMS-p.LastSeenAt <= windowMS {
			online = true
		}
		out[i] = Participant{Player: p, Online: online}
	}
	return out
}

// CountOnline is a convenience over Merge for callers that only need the
// headline number.
func CountOnline(players []game.Player, present []string, nowMS, windowMS int64) int {
	n := 0
	for _, p := range Merge(players, present, nowMS, windowMS) {
		if p.Online {
			n++
		}
	}
	return n
}
