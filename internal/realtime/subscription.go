package realtime

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/riffluv/ito-sub004/internal/game"
	"github.com/riffluv/ito-sub004/internal/store"
)

// State is the subscription's current projection of the room. Handed to
// the observer on every accepted (non-suppressed) snapshot.
type State struct {
	Room         *game.Room
	Players      []game.Player
	LastServerAt Instant
	FromCache    bool
}

// Subscription keeps one client's view of a room live against the
// document store. It applies incremental player changes by splicing at
// the reported index, suppresses byte-identical snapshots by signature,
// pauses while the tab is hidden, and backs off on rate-limit errors
// with a visibility-gated resume.
type Subscription struct {
	store   store.DocumentStore
	roomID  string
	onState func(State)
	policy  Policy
	now     func() Instant

	mu             sync.Mutex
	room           *game.Room
	players        []game.Player
	sig            [sha256.Size]byte
	haveServer     bool
	lastServerAt   Instant
	cacheOnlySince Instant
	startedAt      Instant
	visible        bool
	blocked        bool
	resumeAt       Instant
	rateLimitHits  int
	cancelWatch    func()
	gen            int
}

func NewSubscription(st store.DocumentStore, roomID string, onState func(State)) *Subscription {
	return &Subscription{
		store:   st,
		roomID:  roomID,
		onState: onState,
		policy:  Policy{Base: time.Minute, Factor: 2, Cap: 8 * time.Minute},
		now:     NowMS,
		visible: true,
	}
}

// Start opens the live watch. Safe to call again after Stop or a
// rate-limit pause.
func (s *Subscription) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancelWatch != nil {
		s.mu.Unlock()
		return nil
	}
	if s.startedAt == 0 {
		s.startedAt = s.now()
	}
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	events, cancel, err := s.store.Watch(ctx, s.roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.mu.Lock()
			s.blocked = true
			s.mu.Unlock()
		}
		return err
	}
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		cancel()
		return nil
	}
	s.cancelWatch = cancel
	s.mu.Unlock()

	go s.run(events, gen)
	return nil
}

func (s *Subscription) run(events <-chan store.WatchEvent, gen int) {
	for ev := range events {
		if ev.Err != nil {
			s.handleError(ev.Err, gen)
			continue
		}
		if ev.Snapshot != nil {
			s.apply(ev.Snapshot)
		}
	}
}

// Stop tears the watch down. The projection is kept so a restart can
// resume with signature suppression intact.
func (s *Subscription) Stop() {
	s.mu.Lock()
	cancel := s.cancelWatch
	s.cancelWatch = nil
	s.gen++
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// SetVisible pauses on hide and resumes on show, honoring any rate-limit
// backoff deadline that is still in the future.
func (s *Subscription) SetVisible(ctx context.Context, visible bool) {
	s.mu.Lock()
	s.visible = visible
	resumeAt := s.resumeAt
	running := s.cancelWatch != nil
	s.mu.Unlock()

	if !visible {
		s.Stop()
		return
	}
	if running {
		return
	}
	if resumeAt > 0 && s.now() < resumeAt {
		return
	}
	if err := s.Start(ctx); err != nil {
		log.Warn().Err(err).Str("room_id", s.roomID).Msg("subscription resume failed")
	}
}

// ForceRefresh does one direct read and applies it as a server snapshot.
// The watchdog's cheap first remediation.
func (s *Subscription) ForceRefresh(ctx context.Context) error {
	r, err := s.store.GetRoom(ctx, s.roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.mu.Lock()
			s.blocked = true
			s.mu.Unlock()
		}
		return err
	}
	players, err := s.store.ListPlayers(ctx, s.roomID)
	if err != nil {
		return err
	}
	s.apply(&store.Snapshot{Room: r, Players: players, ServerTime: time.Now().UnixMilli()})
	return nil
}

// Restart drops the listener and opens a fresh one. The watchdog's
// second, heavier remediation.
func (s *Subscription) Restart(ctx context.Context) error {
	s.Stop()
	return s.Start(ctx)
}

// WatchdogInput assembles the pure decision input for the staleness
// evaluation.
func (s *Subscription) WatchdogInput(trigger Trigger, online bool) Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	kind := KindInitial
	baseline := s.startedAt
	switch {
	case s.cacheOnlySince > 0:
		kind = KindCacheOnly
		baseline = s.cacheOnlySince
	case s.haveServer:
		kind = KindPost
		baseline = s.lastServerAt
	}
	return Input{
		Now:      s.now(),
		Trigger:  trigger,
		Blocked:  s.blocked,
		Visible:  s.visible,
		Online:   online,
		Kind:     kind,
		Baseline: baseline,
	}
}

func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Room:         s.room,
		Players:      append([]game.Player(nil), s.players...),
		LastServerAt: s.lastServerAt,
		FromCache:    s.cacheOnlySince > 0,
	}
}

func (s *Subscription) handleError(err error, gen int) {
	if !errors.Is(err, store.ErrRateLimited) {
		log.Warn().Err(err).Str("room_id", s.roomID).Msg("subscription stream error")
		return
	}
	s.mu.Lock()
	s.rateLimitHits++
	delay := s.policy.NextDelay(s.rateLimitHits)
	s.resumeAt = s.now() + delay.Milliseconds()
	stale := gen != s.gen
	s.mu.Unlock()
	if stale {
		return
	}
	log.Warn().Str("room_id", s.roomID).Dur("resume_in", delay).Msg("rate limited, pausing subscription")
	s.Stop()
}

func (s *Subscription) apply(snap *store.Snapshot) {
	s.mu.Lock()
	if snap.FromCache {
		if s.cacheOnlySince == 0 {
			s.cacheOnlySince = s.now()
		}
	} else {
		s.cacheOnlySince = 0
		s.haveServer = true
		if snap.ServerTime > 0 {
			s.lastServerAt = snap.ServerTime
		} else {
			s.lastServerAt = s.now()
		}
		s.rateLimitHits = 0
		s.resumeAt = 0
	}

	first := s.room == nil
	if first || snap.Changes == nil || len(snap.Changes) >= len(snap.Players) {
		// Full rebuild: first snapshot, no change metadata, or the batch
		// covers the whole result set anyway.
		s.players = append([]game.Player(nil), snap.Players...)
	} else {
		s.players = splice(s.players, snap.Changes)
	}
	s.room = snap.Room

	sig := signature(snap.Room, s.players)
	if !first && sig == s.sig {
		s.mu.Unlock()
		return
	}
	s.sig = sig
	state := State{
		Room:         s.room,
		Players:      append([]game.Player(nil), s.players...),
		LastServerAt: s.lastServerAt,
		FromCache:    snap.FromCache,
	}
	cb := s.onState
	s.mu.Unlock()
	if cb != nil {
		cb(state)
	}
}

// splice applies added/modified/removed changes at their reported
// indexes instead of rebuilding the whole list.
func splice(players []game.Player, changes []store.PlayerChange) []game.Player {
	out := append([]game.Player(nil), players...)
	for _, ch := range changes {
		switch ch.Kind {
		case store.ChangeRemoved:
			out = removeUID(out, ch.Player.UID)
		case store.ChangeAdded:
			out = removeUID(out, ch.Player.UID)
			out = insertAt(out, ch.Index, ch.Player)
		case store.ChangeModified:
			if ch.OldIndex == ch.Index && ch.Index >= 0 && ch.Index < len(out) && out[ch.Index].UID == ch.Player.UID {
				out[ch.Index] = ch.Player
				continue
			}
			out = removeUID(out, ch.Player.UID)
			out = insertAt(out, ch.Index, ch.Player)
		}
	}
	return out
}

func removeUID(players []game.Player, uid string) []game.Player {
	for i, p := range players {
		if p.UID == uid {
			return append(players[:i], players[i+1:]...)
		}
	}
	return players
}

func insertAt(players []game.Player, idx int, p game.Player) []game.Player {
	if idx < 0 || idx > len(players) {
		idx = len(players)
	}
	players = append(players, game.Player{})
	copy(players[idx+1:], players[idx:])
	players[idx] = p
	return players
}

func signature(r *game.Room, players []game.Player) [sha256.Size]byte {
	h := sha256.New()
	rb, _ := json.Marshal(r)
	h.Write(rb)
	pb, _ := json.Marshal(players)
	h.Write(pb)
	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// RetryJoin runs join with capped exponential backoff. It gives up on
// context cancellation, when the leaving flag is raised, or once the
// policy's attempt ceiling is exhausted.
func RetryJoin(ctx context.Context, policy Policy, leaving *atomic.Bool, sleep func(time.Duration), join func(context.Context) error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if leaving != nil && leaving.Load() {
			// The local player is on the way out, joining would race the
			// leave.
			return nil
		}
		if policy.Exhausted(attempt) {
			log.Error().Err(lastErr).Int("attempts", attempt-1).Msg("join retries exhausted")
			return lastErr
		}
		lastErr = join(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sleep(policy.NextDelay(attempt))
	}
}
