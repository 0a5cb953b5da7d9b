package room

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/riffluv/ito-sub004/internal/game"
	"github.com/riffluv/ito-sub004/internal/patch"
	"github.com/riffluv/ito-sub004/internal/store"
)

// Reset returns the room to waiting and clears every player's dealt state.
// Safe to retry with the same requestID any number of times: the first
// application wins, replays short-circuit on the idempotency check and
// return the recorded patch.
func (s *Service) Reset(ctx context.Context, req ResetRequest) (*patch.Patch, error) {
	if req.RoomID == "" {
		return nil, ErrRoomIDRequired
	}
	if req.RequestID == "" {
		req.RequestID = store.NewID()
	}
	return s.withConfirm(ctx, req.RoomID, req.RequestID, func() (*patch.Patch, error) {
		return s.resetOnce(ctx, req)
	})
}

func (s *Service) resetOnce(ctx context.Context, req ResetRequest) (*patch.Patch, error) {
	r, err := s.store.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if _, err := s.hostIdentity(r, req.Token); err != nil {
		return nil, err
	}

	release, ok, err := s.store.TryLockRoom(ctx, req.RoomID, "reset:"+req.RequestID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRateLimited
	}
	defer release()

	var out patch.Patch
	applied := false
	err = s.store.RunRoomTx(ctx, req.RoomID, func(tx store.RoomTx) error {
		applied = false
		cur := tx.Room()
		if cur.ResetRequestID == req.RequestID && cur.Status == game.StatusWaiting {
			// Already applied by an earlier delivery of this request.
			rec, err := tx.Command(req.RequestID)
			if err != nil {
				return err
			}
			replay, err := patchFromRecord(rec)
			if err != nil {
				return err
			}
			out = *replay
			return nil
		}

		now := s.now()
		cur.Status = game.StatusWaiting
		cur.StatusVersion++
		cur.ResetRequestID = req.RequestID
		cur.Topic = ""
		cur.TopicBox = ""
		cur.Order = game.NewOrderState(0)
		cur.Result = nil
		cur.Deal = nil
		cur.Round = 0
		cur.UI.RecallOpen = req.RecallSpectators
		cur.LastActiveAt = now
		cur.LastCommandAt = now
		tx.SetRoom(cur)

		// Same transaction as the room write: nobody may observe the room
		// waiting while a player still holds a dealt number.
		for _, p := range tx.Players() {
			p.Number = nil
			p.Clue1 = ""
			p.Clue2 = ""
			p.Ready = false
			p.OrderIndex = 0
			tx.PutPlayer(p)
		}

		fields := map[string]any{
			"status":         string(game.StatusWaiting),
			"statusVersion":  cur.StatusVersion,
			"resetRequestId": req.RequestID,
			"round":          0,
		}
		p, rec := s.buildPatch(req.RoomID, cur.StatusVersion, fields, "reset", req.RequestID)
		tx.PutCommand(rec)
		out = p
		applied = true
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if applied {
		log.Info().Str("room_id", req.RoomID).Str("request_id", req.RequestID).
			Int64("status_version", out.StatusVersion).Msg("room reset")
	}
	published := s.publish(out)
	return &published, nil
}
