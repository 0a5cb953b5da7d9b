package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/riffluv/ito-sub004/internal/game"
)

var (
	ErrNotFound      = errors.New("not_found")
	ErrAlreadyExists = errors.New("already_exists")
	// ErrRateLimited is delivered on the watch channel when the backend
	// sheds load; subscribers must back off instead of reconnecting hot.
	ErrRateLimited = errors.New("rate_limited")
	// ErrUnavailable marks transient backend failures that are safe to
	// retry after a short delay.
	ErrUnavailable = errors.New("store_unavailable")
)

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// PlayerChange is one incremental document change with the index it applies
// to in the ordered player list (ordered by join time, then uid).
type PlayerChange struct {
	Kind     ChangeKind
	Index    int
	OldIndex int
	Player   game.Player
}

// Snapshot is one observed state of a room document plus its player
// sub-collection. Changes is nil when the consumer must do a full rebuild
// (first snapshot, or a backend that only delivers whole documents).
type Snapshot struct {
	Room       *game.Room
	Players    []game.Player
	Changes    []PlayerChange
	FromCache  bool
	ServerTime int64
}

type WatchEvent struct {
	Snapshot *Snapshot
	Err      error
}

// CommandRecord is the idempotency log entry for one applied command. It
// doubles as the confirm-then-accept side read: after an ambiguous network
// failure the caller looks the requestID up to learn whether the command
// actually committed.
type CommandRecord struct {
	RoomID        string          `json:"roomId"`
	RequestID     string          `json:"requestId"`
	Command       string          `json:"command"`
	StatusVersion int64           `json:"statusVersion"`
	Patch         json.RawMessage `json:"patch"`
	AppliedAt     int64           `json:"appliedAt"`
}

// RoomTx is one atomic transaction over a room document and its player
// sub-collection. Reads see the state at transaction start; writes are
// buffered and become visible all at once on commit.
type RoomTx interface {
	Room() *game.Room
	Players() []game.Player
	SetRoom(*game.Room)
	PutPlayer(game.Player)
	DeletePlayer(uid string)
	Command(requestID string) (*CommandRecord, error)
	PutCommand(CommandRecord)
}

// DocumentStore is the synchronization substrate: room documents, player
// sub-collections, per-room transactions, fail-fast advisory locks and a
// live change feed.
type DocumentStore interface {
	CreateRoom(ctx context.Context, room *game.Room, host game.Player) error
	GetRoom(ctx context.Context, roomID string) (*game.Room, error)
	ListPlayers(ctx context.Context, roomID string) ([]game.Player, error)
	GetPlayer(ctx context.Context, roomID, uid string) (*game.Player, error)
	RunRoomTx(ctx context.Context, roomID string, fn func(RoomTx) error) error
	// TryLockRoom acquires the room-scoped advisory lock or reports ok=false
	// immediately. It never blocks waiting for the holder.
	TryLockRoom(ctx context.Context, roomID, holder string) (release func(), ok bool, err error)
	GetCommand(ctx context.Context, roomID, requestID string) (*CommandRecord, error)
	Watch(ctx context.Context, roomID string) (<-chan WatchEvent, func(), error)
}
