package room

import "github.com/riffluv/ito-sub004/internal/game"

type CreateRequest struct {
	HostName string
	Avatar   string
	Options  game.RoomOptions
	Topics   []string
}

type CreateResponse struct {
	RoomID string
	UID    string
	Token  string
}

type JoinRequest struct {
	RoomID   string
	Name     string
	Avatar   string
	Password string
}

type JoinResponse struct {
	UID   string
	Token string
}

type LeaveRequest struct {
	RoomID string
	Token  string
}

type ResetRequest struct {
	RoomID           string
	Token            string
	RequestID        string
	SessionID        string
	RecallSpectators bool
}

type QuickStartRequest struct {
	RoomID    string
	Token     string
	RequestID string
	SessionID string
	Seed      string
	Topic     string
	// AllowFromFinished permits the immediate-restart flow that skips the
	// waiting status; AllowFromClue permits a redeal mid-round.
	AllowFromFinished bool
	AllowFromClue     bool
}

type RecallRequest struct {
	RoomID        string
	Token         string
	ClientVersion string
}

type ClueRequest struct {
	RoomID string
	Token  string
	Clue1  string
	Clue2  string
}

type ReadyRequest struct {
	RoomID string
	Token  string
	Ready  bool
}

type PlaceRequest struct {
	RoomID      string
	Token       string
	TargetIndex int
}

type PlaceResponse struct {
	Status     game.InsertStatus
	FinalIndex int
	Proposal   []string
}

type RemoveRequest struct {
	RoomID string
	Token  string
}

type PlayRequest struct {
	RoomID string
	Token  string
}

type SubmitRequest struct {
	RoomID string
	Token  string
	List   []string
}

type FinishRevealRequest struct {
	RoomID string
	Token  string
}

type SnapshotResponse struct {
	Room    *game.Room    `json:"room"`
	Players []game.Player `json:"players"`
}
