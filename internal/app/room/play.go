package room

import (
	"context"

	"github.com/riffluv/ito-sub004/internal/game"
	"github.com/riffluv/ito-sub004/internal/patch"
	"github.com/riffluv/ito-sub004/internal/store"
)

// SetClue updates the caller's own clue fields. Single-owner write, no
// lock and no patch fan-out: the document subscription carries it.
func (s *Service) SetClue(ctx context.Context, req ClueRequest) error {
	return s.updateOwnPlayer(ctx, req.RoomID, req.Token, func(p *game.Player) {
		p.Clue1 = req.Clue1
		p.Clue2 = req.Clue2
	})
}

func (s *Service) SetReady(ctx context.Context, req ReadyRequest) error {
	return s.updateOwnPlayer(ctx, req.RoomID, req.Token, func(p *game.Player) {
		p.Ready = req.Ready
	})
}

func (s *Service) updateOwnPlayer(ctx context.Context, roomID, token string, mutate func(*game.Player)) error {
	if roomID == "" {
		return ErrRoomIDRequired
	}
	id, err := s.identity(token)
	if err != nil {
		return err
	}
	err = s.store.RunRoomTx(ctx, roomID, func(tx store.RoomTx) error {
		for _, p := range tx.Players() {
			if p.UID == id.UID {
				mutate(&p)
				p.LastSeenAt = s.now()
				tx.PutPlayer(p)
				return nil
			}
		}
		return ErrInvalidRequest
	})
	return mapStoreErr(err)
}

// PlaceCard inserts the caller's card into the shared proposal. The first
// write to reach the store keeps a contested slot; the loser gets
// slot_taken and must revert its optimistic placement. Re-placing an
// already placed card is an idempotent noop.
func (s *Service) PlaceCard(ctx context.Context, req PlaceRequest) (*PlaceResponse, error) {
	if req.RoomID == "" {
		return nil, ErrRoomIDRequired
	}
	id, err := s.identity(req.Token)
	if err != nil {
		return nil, err
	}
	var out PlaceResponse
	err = s.store.RunRoomTx(ctx, req.RoomID, func(tx store.RoomTx) error {
		r := tx.Room()
		if r.Status != game.StatusClue {
			return ErrInvalidStatus
		}
		if !isParticipant(tx.Players(), id.UID) {
			return ErrInvalidRequest
		}
		res := game.InsertProposal(r.Order.Proposal, id.UID, r.Order.Total, req.TargetIndex)
		if res.Status == game.InsertNoop && res.FinalIndex < 0 {
			if req.TargetIndex < 0 {
				// Append onto a full board, not a contested slot.
				return ErrInvalidRequest
			}
			return ErrSlotTaken
		}
		out = PlaceResponse{Status: res.Status, FinalIndex: res.FinalIndex, Proposal: res.Normalized}
		if res.Status == game.InsertOK && res.ChangedSlots > 0 {
			r.Order.Proposal = res.Normalized
			r.LastActiveAt = s.now()
			tx.SetRoom(r)
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if out.Status == game.InsertOK {
		p, _ := s.buildPatch(req.RoomID, 0, map[string]any{"order": map[string]any{"proposal": out.Proposal}}, "place", id.UID)
		s.publish(p)
	}
	return &out, nil
}

// RemoveCard takes the caller's card off the proposal board, leaving the
// slot empty rather than shifting later cards.
func (s *Service) RemoveCard(ctx context.Context, req RemoveRequest) error {
	if req.RoomID == "" {
		return ErrRoomIDRequired
	}
	id, err := s.identity(req.Token)
	if err != nil {
		return err
	}
	var proposal []string
	err = s.store.RunRoomTx(ctx, req.RoomID, func(tx store.RoomTx) error {
		r := tx.Room()
		if r.Status != game.StatusClue {
			return ErrInvalidStatus
		}
		proposal = game.RemoveProposal(r.Order.Proposal, id.UID, r.Order.Total)
		r.Order.Proposal = proposal
		r.LastActiveAt = s.now()
		tx.SetRoom(r)
		return nil
	})
	if err != nil {
		return mapStoreErr(err)
	}
	p, _ := s.buildPatch(req.RoomID, 0, map[string]any{"order": map[string]any{"proposal": proposal}}, "remove", id.UID)
	s.publish(p)
	return nil
}

// PlayCard commits the caller's card in sequential mode. When the play
// finishes the round the reveal outcome is written in the same
// transaction.
func (s *Service) PlayCard(ctx context.Context, req PlayRequest) (*patch.Patch, error) {
	if req.RoomID == "" {
		return nil, ErrRoomIDRequired
	}
	id, err := s.identity(req.Token)
	if err != nil {
		return nil, err
	}
	var out patch.Patch
	var publish bool
	err = s.store.RunRoomTx(ctx, req.RoomID, func(tx store.RoomTx) error {
		publish = false
		r := tx.Room()
		if r.Status != game.StatusClue {
			return ErrInvalidStatus
		}
		if r.Options.ResolveMode != game.ResolveSequential {
			return ErrInvalidRequest
		}
		if r.Deal == nil {
			return ErrInvalidStatus
		}
		number, dealt := r.Deal.Numbers[id.UID]
		if !dealt {
			return ErrInvalidRequest
		}
		order, finished := game.ApplyPlay(r.Order, id.UID, number, r.Options.AllowContinue)
		r.Order = order
		now := s.now()
		r.LastActiveAt = now
		fields := map[string]any{"order": map[string]any{
			"list":     order.List,
			"failed":   order.Failed,
			"failedAt": order.FailedAt,
		}}
		if finished {
			payload := game.BuildPlayOutcome(order, r.Deal.Numbers, r.Stats, now)
			r.Status = game.StatusReveal
			r.StatusVersion++
			r.Order = payload.Order
			r.Result = &payload.Result
			r.Stats = payload.Stats
			r.LastCommandAt = now
			fields["status"] = string(game.StatusReveal)
			fields["statusVersion"] = r.StatusVersion
		}
		tx.SetRoom(r)
		out, _ = s.buildPatch(req.RoomID, r.StatusVersion, fields, "play", id.UID)
		publish = true
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if publish {
		published := s.publish(out)
		return &published, nil
	}
	return &out, nil
}

// SubmitSorted evaluates a full ordering in sort-submit mode and moves the
// room to reveal. Validation runs before any write, so a bad list is a
// pure no-op.
func (s *Service) SubmitSorted(ctx context.Context, req SubmitRequest) (*patch.Patch, error) {
	if req.RoomID == "" {
		return nil, ErrRoomIDRequired
	}
	id, err := s.identity(req.Token)
	if err != nil {
		return nil, err
	}
	var out patch.Patch
	err = s.store.RunRoomTx(ctx, req.RoomID, func(tx store.RoomTx) error {
		r := tx.Room()
		if r.Status != game.StatusClue {
			return ErrInvalidStatus
		}
		if r.Options.ResolveMode != game.ResolveSortSubmit {
			return ErrInvalidRequest
		}
		if r.Deal == nil {
			return ErrInvalidStatus
		}
		if _, dealt := r.Deal.Numbers[id.UID]; !dealt {
			// Only a round participant may trigger the reveal.
			return ErrInvalidRequest
		}
		roster := make([]string, 0, len(r.Deal.Numbers))
		for uid := range r.Deal.Numbers {
			roster = append(roster, uid)
		}
		if _, err := game.ValidateSubmitList(req.List, roster, r.Order.Total); err != nil {
			return err
		}
		now := s.now()
		payload := game.BuildRevealOutcome(req.List, r.Deal.Numbers, r.Stats, now)
		r.Status = game.StatusReveal
		r.StatusVersion++
		r.Order = payload.Order
		r.Result = &payload.Result
		r.Stats = payload.Stats
		r.LastActiveAt = now
		r.LastCommandAt = now
		tx.SetRoom(r)
		out, _ = s.buildPatch(req.RoomID, r.StatusVersion, map[string]any{
			"status":        string(game.StatusReveal),
			"statusVersion": r.StatusVersion,
			"result":        payload.Result,
		}, "reveal", id.UID)
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	published := s.publish(out)
	return &published, nil
}

// FinishReveal closes the reveal window: reveal -> finished.
func (s *Service) FinishReveal(ctx context.Context, req FinishRevealRequest) (*patch.Patch, error) {
	if req.RoomID == "" {
		return nil, ErrRoomIDRequired
	}
	r, err := s.store.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if _, err := s.hostIdentity(r, req.Token); err != nil {
		return nil, err
	}
	var out patch.Patch
	err = s.store.RunRoomTx(ctx, req.RoomID, func(tx store.RoomTx) error {
		cur := tx.Room()
		if cur.Status != game.StatusReveal {
			return ErrInvalidStatus
		}
		now := s.now()
		cur.Status = game.StatusFinished
		cur.StatusVersion++
		cur.LastActiveAt = now
		cur.LastCommandAt = now
		tx.SetRoom(cur)
		out, _ = s.buildPatch(req.RoomID, cur.StatusVersion, map[string]any{
			"status":        string(game.StatusFinished),
			"statusVersion": cur.StatusVersion,
		}, "finish-reveal", "")
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	published := s.publish(out)
	return &published, nil
}

// RecallSpectators opens the spectator recall gate. Host only, waiting
// only.
func (s *Service) RecallSpectators(ctx context.Context, req RecallRequest) error {
	if req.RoomID == "" {
		return ErrRoomIDRequired
	}
	r, err := s.store.GetRoom(ctx, req.RoomID)
	if err != nil {
		return mapStoreErr(err)
	}
	if _, err := s.hostIdentity(r, req.Token); err != nil {
		return err
	}
	err = s.store.RunRoomTx(ctx, req.RoomID, func(tx store.RoomTx) error {
		cur := tx.Room()
		if cur.Status != game.StatusWaiting {
			return ErrNotWaiting
		}
		cur.UI.RecallOpen = true
		cur.LastCommandAt = s.now()
		tx.SetRoom(cur)
		return nil
	})
	if err != nil {
		return mapStoreErr(err)
	}
	p, _ := s.buildPatch(req.RoomID, 0, map[string]any{"ui": map[string]any{"recallOpen": true}}, "recall", "")
	s.publish(p)
	return nil
}

func isParticipant(players []game.Player, uid string) bool {
	for _, p := range players {
		if p.UID == uid {
			return p.Number != nil
		}
	}
	return false
}
