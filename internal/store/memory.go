package store

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/riffluv/ito-sub004/internal/game"
)

// Memory is an in-process DocumentStore with native change feeds. It backs
// single-node deployments and every test that does not need Postgres.
type Memory struct {
	mu       sync.Mutex
	rooms    map[string]*game.Room
	players  map[string]map[string]game.Player
	commands map[string]map[string]CommandRecord
	locks    map[string]string
	watchers map[string]map[chan WatchEvent]struct{}
	// lastNotified is the baseline player list used to compute incremental
	// changes for the next watcher notification.
	lastNotified map[string][]game.Player

	commitErr           error
	commitErrAfterApply bool
}

func NewMemory() *Memory {
	return &Memory{
		rooms:        map[string]*game.Room{},
		players:      map[string]map[string]game.Player{},
		commands:     map[string]map[string]CommandRecord{},
		locks:        map[string]string{},
		watchers:     map[string]map[chan WatchEvent]struct{}{},
		lastNotified: map[string][]game.Player{},
	}
}

// InjectCommitError makes the next transaction return err. With afterApply
// set the writes still commit, simulating the ambiguous "request succeeded
// server-side but the response was lost" failure mode.
func (m *Memory) InjectCommitError(err error, afterApply bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitErr = err
	m.commitErrAfterApply = afterApply
}

func (m *Memory) CreateRoom(_ context.Context, room *game.Room, host game.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rooms[room.ID]; exists {
		return ErrAlreadyExists
	}
	m.rooms[room.ID] = cloneRoom(room)
	m.players[room.ID] = map[string]game.Player{host.UID: host}
	m.commands[room.ID] = map[string]CommandRecord{}
	m.notifyLocked(room.ID)
	return nil
}

func (m *Memory) GetRoom(_ context.Context, roomID string) (*game.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRoom(room), nil
}

func (m *Memory) ListPlayers(_ context.Context, roomID string) ([]game.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomID]; !ok {
		return nil, ErrNotFound
	}
	return m.sortedPlayersLocked(roomID), nil
}

func (m *Memory) GetPlayer(_ context.Context, roomID, uid string) (*game.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[roomID][uid]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *Memory) GetCommand(_ context.Context, roomID, requestID string) (*CommandRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.commands[roomID][requestID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *Memory) TryLockRoom(_ context.Context, roomID, holder string) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[roomID]; held {
		return nil, false, nil
	}
	m.locks[roomID] = holder
	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.locks[roomID] == holder {
				delete(m.locks, roomID)
			}
		})
	}
	return release, true, nil
}

type memTx struct {
	store      *Memory
	roomID     string
	room       *game.Room
	players    []game.Player
	setRoom    *game.Room
	putPlayers map[string]game.Player
	delPlayers map[string]struct{}
	putCmds    []CommandRecord
}

func (tx *memTx) Room() *game.Room        { return cloneRoom(tx.room) }
func (tx *memTx) Players() []game.Player  { return append([]game.Player(nil), tx.players...) }
func (tx *memTx) SetRoom(r *game.Room)    { tx.setRoom = cloneRoom(r) }
func (tx *memTx) PutPlayer(p game.Player) { tx.putPlayers[p.UID] = p }
func (tx *memTx) DeletePlayer(uid string) { tx.delPlayers[uid] = struct{}{} }
func (tx *memTx) PutCommand(rec CommandRecord) {
	tx.putCmds = append(tx.putCmds, rec)
}

func (tx *memTx) Command(requestID string) (*CommandRecord, error) {
	rec, ok := tx.store.commands[tx.roomID][requestID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// RunRoomTx runs fn against a consistent view of the room and commits its
// buffered writes atomically. The store mutex is held for the whole
// transaction, which gives per-room serializability for free.
func (m *Memory) RunRoomTx(_ context.Context, roomID string, fn func(RoomTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	tx := &memTx{
		store:      m,
		roomID:     roomID,
		room:       room,
		players:    m.sortedPlayersLocked(roomID),
		putPlayers: map[string]game.Player{},
		delPlayers: map[string]struct{}{},
	}
	if err := fn(tx); err != nil {
		return err
	}
	if m.commitErr != nil && !m.commitErrAfterApply {
		err := m.commitErr
		m.commitErr = nil
		return err
	}
	m.applyLocked(tx)
	m.notifyLocked(roomID)
	if m.commitErr != nil {
		err := m.commitErr
		m.commitErr = nil
		return err
	}
	return nil
}

func (m *Memory) applyLocked(tx *memTx) {
	if tx.setRoom != nil {
		m.rooms[tx.roomID] = tx.setRoom
	}
	for uid, p := range tx.putPlayers {
		m.players[tx.roomID][uid] = p
	}
	for uid := range tx.delPlayers {
		delete(m.players[tx.roomID], uid)
	}
	for _, rec := range tx.putCmds {
		if m.commands[tx.roomID] == nil {
			m.commands[tx.roomID] = map[string]CommandRecord{}
		}
		// First writer wins; a replayed command must not overwrite the
		// original record.
		if _, exists := m.commands[tx.roomID][rec.RequestID]; !exists {
			m.commands[tx.roomID][rec.RequestID] = rec
		}
	}
}

func (m *Memory) Watch(_ context.Context, roomID string) (<-chan WatchEvent, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomID]; !ok {
		return nil, nil, ErrNotFound
	}
	ch := make(chan WatchEvent, 16)
	if m.watchers[roomID] == nil {
		m.watchers[roomID] = map[chan WatchEvent]struct{}{}
	}
	m.watchers[roomID][ch] = struct{}{}
	initial := m.snapshotLocked(roomID, nil)
	ch <- WatchEvent{Snapshot: initial}
	m.lastNotified[roomID] = initial.Players
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.watchers[roomID][ch]; ok {
				delete(m.watchers[roomID], ch)
				close(ch)
			}
		})
	}
	return ch, cancel, nil
}

func (m *Memory) notifyLocked(roomID string) {
	if len(m.watchers[roomID]) == 0 {
		return
	}
	snap := m.snapshotLocked(roomID, m.lastNotified[roomID])
	for ch := range m.watchers[roomID] {
		select {
		case ch <- WatchEvent{Snapshot: snap}:
		default:
		}
	}
	m.lastNotified[roomID] = snap.Players
}

func (m *Memory) snapshotLocked(roomID string, previous []game.Player) *Snapshot {
	players := m.sortedPlayersLocked(roomID)
	return &Snapshot{
		Room:       cloneRoom(m.rooms[roomID]),
		Players:    players,
		Changes:    diffPlayers(previous, players),
		ServerTime: time.Now().UnixMilli(),
	}
}

func (m *Memory) sortedPlayersLocked(roomID string) []game.Player {
	out := make([]game.Player, 0, len(m.players[roomID]))
	for _, p := range m.players[roomID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt != out[j].JoinedAt {
			return out[i].JoinedAt < out[j].JoinedAt
		}
		return out[i].UID < out[j].UID
	})
	return out
}

// diffPlayers computes incremental added/modified/removed changes between
// two ordered player lists. A nil previous list means "no baseline" and
// yields nil changes, forcing a full rebuild downstream.
func diffPlayers(previous, current []game.Player) []PlayerChange {
	if previous == nil {
		return nil
	}
	oldIdx := make(map[string]int, len(previous))
	for i, p := range previous {
		oldIdx[p.UID] = i
	}
	newIdx := make(map[string]int, len(current))
	for i, p := range current {
		newIdx[p.UID] = i
	}
	var changes []PlayerChange
	for i, p := range previous {
		if _, still := newIdx[p.UID]; !still {
			changes = append(changes, PlayerChange{Kind: ChangeRemoved, Index: -1, OldIndex: i, Player: p})
		}
	}
	for i, p := range current {
		old, existed := oldIdx[p.UID]
		if !existed {
			changes = append(changes, PlayerChange{Kind: ChangeAdded, Index: i, OldIndex: -1, Player: p})
			continue
		}
		if !samePlayer(previous[old], p) || old != i {
			changes = append(changes, PlayerChange{Kind: ChangeModified, Index: i, OldIndex: old, Player: p})
		}
	}
	return changes
}

func samePlayer(a, b game.Player) bool {
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return bytes.Equal(ab, bb)
}

func cloneRoom(r *game.Room) *game.Room {
	b, _ := json.Marshal(r)
	var out game.Room
	_ = json.Unmarshal(b, &out)
	return &out
}
