package room

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/riffluv/ito-sub004/internal/game"
	"github.com/riffluv/ito-sub004/internal/store"
)

// Create makes a new room with the caller as host and returns their minted
// token.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	name := strings.TrimSpace(req.HostName)
	if name == "" {
		return nil, ErrInvalidRequest
	}
	opts := req.Options
	if opts.ResolveMode == "" {
		opts.ResolveMode = game.ResolveSortSubmit
	}
	if opts.ResolveMode != game.ResolveSequential && opts.ResolveMode != game.ResolveSortSubmit {
		return nil, ErrInvalidRequest
	}
	now := s.now()
	roomID := store.NewID()
	uid := "u" + store.NewID()
	r := &game.Room{
		ID:            roomID,
		Status:        game.StatusWaiting,
		HostID:        uid,
		CreatorID:     uid,
		Options:       opts,
		TopicOptions:  req.Topics,
		Order:         game.NewOrderState(0),
		LastActiveAt:  now,
		LastCommandAt: now,
	}
	host := game.Player{
		UID:        uid,
		Name:       name,
		Avatar:     req.Avatar,
		JoinedAt:   now,
		LastSeenAt: now,
	}
	if err := s.store.CreateRoom(ctx, r, host); err != nil {
		return nil, err
	}
	log.Info().Str("room_id", roomID).Str("host", uid).Msg("room created")
	return &CreateResponse{RoomID: roomID, UID: uid, Token: s.tokens.Mint(uid)}, nil
}

// Join enrolls a new player document. Auto-join is only legal while the
// room is waiting; a mid-round joiner becomes a spectator instead (handled
// client-side) and gets not_waiting here.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*JoinResponse, error) {
	if req.RoomID == "" {
		return nil, ErrRoomIDRequired
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrInvalidRequest
	}
	uid := "u" + store.NewID()
	now := s.now()
	err := s.store.RunRoomTx(ctx, req.RoomID, func(tx store.RoomTx) error {
		r := tx.Room()
		if r.Options.Password != "" && r.Options.Password != req.Password {
			return ErrWrongPassword
		}
		if r.Status != game.StatusWaiting {
			return ErrNotWaiting
		}
		tx.PutPlayer(game.Player{
			UID:        uid,
			Name:       name,
			Avatar:     req.Avatar,
			JoinedAt:   now,
			LastSeenAt: now,
		})
		r.LastActiveAt = now
		tx.SetRoom(r)
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	p, _ := s.buildPatch(req.RoomID, 0, map[string]any{"lastActiveAt": now}, "join", uid)
	s.publish(p)
	return &JoinResponse{UID: uid, Token: s.tokens.Mint(uid)}, nil
}

// Leave removes the caller's player document. If the leaver was host, the
// earliest joined remaining player inherits the room in the same
// transaction, so no observer ever sees a hostless active room. A mid-clue
// leave also prunes the leaver from the round: their card leaves the
// proposal and play order, the participant count shrinks, and a sequential
// round whose last unplayed card just walked out reveals immediately.
func (s *Service) Leave(ctx context.Context, req LeaveRequest) error {
	if req.RoomID == "" {
		return ErrRoomIDRequired
	}
	id, err := s.identity(req.Token)
	if err != nil {
		return err
	}
	now := s.now()
	var newHost string
	var prunedOrder *game.OrderState
	var revealVersion int64
	err = s.store.RunRoomTx(ctx, req.RoomID, func(tx store.RoomTx) error {
		newHost = ""
		prunedOrder = nil
		revealVersion = 0
		players := tx.Players()
		found := false
		for _, p := range players {
			if p.UID == id.UID {
				found = true
				break
			}
		}
		if !found {
			return ErrInvalidRequest
		}
		tx.DeletePlayer(id.UID)
		r := tx.Room()
		if r.HostID == id.UID {
			for _, p := range players {
				if p.UID != id.UID {
					newHost = p.UID
					break
				}
			}
			r.HostID = newHost
		}
		if r.Status == game.StatusClue && r.Deal != nil {
			if _, dealt := r.Deal.Numbers[id.UID]; dealt {
				delete(r.Deal.Numbers, id.UID)
				r.Order.Proposal = game.DropFromProposal(r.Order.Proposal, id.UID)
				r.Order.List = game.DropFromProposal(r.Order.List, id.UID)
				if r.Order.Total > 0 {
					r.Order.Total--
				}
				if r.Options.ResolveMode == game.ResolveSequential &&
					r.Order.Total > 0 && len(r.Order.List) >= r.Order.Total {
					payload := game.BuildPlayOutcome(r.Order, r.Deal.Numbers, r.Stats, now)
					r.Status = game.StatusReveal
					r.StatusVersion++
					r.Order = payload.Order
					r.Result = &payload.Result
					r.Stats = payload.Stats
					revealVersion = r.StatusVersion
				}
				o := r.Order
				prunedOrder = &o
			}
		}
		r.LastActiveAt = now
		r.LastCommandAt = now
		tx.SetRoom(r)
		return nil
	})
	if err != nil {
		return mapStoreErr(err)
	}
	if newHost != "" {
		log.Info().Str("room_id", req.RoomID).Str("host", newHost).Msg("host transferred on leave")
	}
	fields := map[string]any{"lastActiveAt": now}
	if newHost != "" {
		fields["hostId"] = newHost
	}
	if prunedOrder != nil {
		fields["order"] = map[string]any{
			"list":     prunedOrder.List,
			"proposal": prunedOrder.Proposal,
			"total":    prunedOrder.Total,
		}
	}
	if revealVersion > 0 {
		fields["status"] = string(game.StatusReveal)
		fields["statusVersion"] = revealVersion
	}
	p, _ := s.buildPatch(req.RoomID, revealVersion, fields, "leave", id.UID)
	s.publish(p)
	return nil
}
