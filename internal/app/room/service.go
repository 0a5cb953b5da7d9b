package room

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/riffluv/ito-sub004/internal/auth"
	"github.com/riffluv/ito-sub004/internal/game"
	"github.com/riffluv/ito-sub004/internal/patch"
	"github.com/riffluv/ito-sub004/internal/store"
)

type Options struct {
	DealMin int
	DealMax int
	// RetryDelay is the fixed pause before the single immediate retry of a
	// transiently failed command.
	RetryDelay time.Duration
}

// Service is the server-authoritative command layer. Every mutation of a
// room document goes through here: authenticate, authorize against the
// room's host, take the per-room lock where two host commands could race,
// apply one atomic transaction, then publish a synchronization patch.
type Service struct {
	store  store.DocumentStore
	bus    *patch.Bus
	tokens *auth.Verifier
	opts   Options
	now    func() int64
	sleep  func(time.Duration)
}

func NewService(st store.DocumentStore, bus *patch.Bus, tokens *auth.Verifier, opts Options) *Service {
	if opts.DealMin == 0 && opts.DealMax == 0 {
		opts.DealMin, opts.DealMax = 1, 100
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 150 * time.Millisecond
	}
	return &Service{
		store:  st,
		bus:    bus,
		tokens: tokens,
		opts:   opts,
		now:    func() int64 { return time.Now().UnixMilli() },
		sleep:  time.Sleep,
	}
}

func (s *Service) Snapshot(ctx context.Context, roomID string) (*SnapshotResponse, error) {
	if roomID == "" {
		return nil, ErrRoomIDRequired
	}
	r, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	players, err := s.store.ListPlayers(ctx, roomID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return &SnapshotResponse{Room: r, Players: players}, nil
}

func (s *Service) identity(token string) (auth.Identity, error) {
	return s.tokens.Verify(token)
}

// hostIdentity authenticates the token and checks host/creator/admin
// authorization against the room. No state is touched before this check.
func (s *Service) hostIdentity(r *game.Room, token string) (auth.Identity, error) {
	id, err := s.tokens.Verify(token)
	if err != nil {
		return auth.Identity{}, err
	}
	if id.Admin || id.UID == r.HostID || id.UID == r.CreatorID {
		return id, nil
	}
	return auth.Identity{}, ErrForbidden
}

func mapStoreErr(err error) error {
	if err == store.ErrNotFound {
		return ErrRoomNotFound
	}
	return err
}

// buildPatch assembles the minimal diff published after a command and the
// command-log record that makes a replay return the same patch.
func (s *Service) buildPatch(roomID string, statusVersion int64, roomFields map[string]any, command, requestID string) (patch.Patch, store.CommandRecord) {
	fields, _ := json.Marshal(roomFields)
	p := patch.Patch{
		RoomID:        roomID,
		StatusVersion: statusVersion,
		Room:          fields,
		Command:       command,
		RequestID:     requestID,
		Source:        "server",
		TS:            s.now(),
	}
	encoded, _ := json.Marshal(p)
	rec := store.CommandRecord{
		RoomID:        roomID,
		RequestID:     requestID,
		Command:       command,
		StatusVersion: statusVersion,
		Patch:         encoded,
		AppliedAt:     p.TS,
	}
	return p, rec
}

func patchFromRecord(rec *store.CommandRecord) (*patch.Patch, error) {
	var p patch.Patch
	if err := json.Unmarshal(rec.Patch, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) publish(p patch.Patch) patch.Patch {
	if s.bus == nil {
		return p
	}
	return s.bus.Publish(p)
}

// withConfirm runs a command once and applies the confirm-then-accept rule
// on transient failures: before giving up (and before the one immediate
// retry can double-apply anything) it side-reads the command log to learn
// whether the original request already committed server-side.
func (s *Service) withConfirm(ctx context.Context, roomID, requestID string, fn func() (*patch.Patch, error)) (*patch.Patch, error) {
	out, err := fn()
	if err == nil {
		return out, nil
	}
	if !IsTransient(err) {
		return nil, err
	}
	if p := s.confirmApplied(ctx, roomID, requestID); p != nil {
		return p, nil
	}
	s.sleep(s.opts.RetryDelay)
	out, retryErr := fn()
	if retryErr == nil {
		return out, nil
	}
	if IsTransient(retryErr) {
		if p := s.confirmApplied(ctx, roomID, requestID); p != nil {
			return p, nil
		}
	}
	log.Warn().Err(retryErr).Str("room_id", roomID).Str("request_id", requestID).Msg("command retry exhausted")
	return nil, retryErr
}

func (s *Service) confirmApplied(ctx context.Context, roomID, requestID string) *patch.Patch {
	rec, err := s.store.GetCommand(ctx, roomID, requestID)
	if err != nil {
		return nil
	}
	p, err := patchFromRecord(rec)
	if err != nil {
		return nil
	}
	log.Info().Str("room_id", roomID).Str("request_id", requestID).Msg("command confirmed applied after transient failure")
	return p
}
