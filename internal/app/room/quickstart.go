package room

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/riffluv/ito-sub004/internal/game"
	"github.com/riffluv/ito-sub004/internal/patch"
	"github.com/riffluv/ito-sub004/internal/store"
)

// QuickStart deals numbers and a topic and moves the room into clue. Like
// Reset it is idempotent per requestID and holds the room lock so a racing
// reset fails fast instead of interleaving.
func (s *Service) QuickStart(ctx context.Context, req QuickStartRequest) (*patch.Patch, error) {
	if req.RoomID == "" {
		return nil, ErrRoomIDRequired
	}
	if req.RequestID == "" {
		req.RequestID = store.NewID()
	}
	return s.withConfirm(ctx, req.RoomID, req.RequestID, func() (*patch.Patch, error) {
		return s.quickStartOnce(ctx, req)
	})
}

func (s *Service) quickStartOnce(ctx context.Context, req QuickStartRequest) (*patch.Patch, error) {
	r, err := s.store.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if _, err := s.hostIdentity(r, req.Token); err != nil {
		return nil, err
	}

	release, ok, err := s.store.TryLockRoom(ctx, req.RoomID, "quick-start:"+req.RequestID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRateLimited
	}
	defer release()

	valid := []game.Status{game.StatusWaiting}
	if req.AllowFromFinished {
		valid = append(valid, game.StatusFinished)
	}
	if req.AllowFromClue {
		valid = append(valid, game.StatusClue)
	}

	var out patch.Patch
	applied := false
	err = s.store.RunRoomTx(ctx, req.RoomID, func(tx store.RoomTx) error {
		applied = false
		cur := tx.Room()
		if cur.StartRequestID == req.RequestID && cur.Status == game.StatusClue {
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
		if !game.StatusAllowed(cur.Status, valid...) {
			return ErrInvalidStatus
		}

		players := tx.Players()
		if len(players) < 2 {
			return ErrInvalidRequest
		}
		ids := make([]string, len(players))
		for i, p := range players {
			ids[i] = p.UID
		}
		seed := req.Seed
		if seed == "" {
			seed = store.NewID()
		}
		numbers, err := game.Deal(ids, s.opts.DealMin, s.opts.DealMax, seed)
		if err != nil {
			return ErrInvalidRequest
		}
		topic := req.Topic
		if topic == "" {
			topic = game.PickTopic(cur.TopicOptions, seed)
		}

		var seatHistory [][]string
		if cur.Deal != nil {
			seatHistory = cur.Deal.SeatHistory
		}
		now := s.now()
		cur.Status = game.StatusClue
		cur.StatusVersion++
		cur.StartRequestID = req.RequestID
		cur.Topic = topic
		cur.Round++
		cur.Order = game.NewOrderState(len(ids))
		cur.Result = nil
		cur.Deal = &game.DealState{
			Seed:        seed,
			Min:         s.opts.DealMin,
			Max:         s.opts.DealMax,
			Numbers:     numbers,
			SeatHistory: append(seatHistory, ids),
		}
		cur.UI.RecallOpen = false
		cur.LastActiveAt = now
		cur.LastCommandAt = now
		tx.SetRoom(cur)

		for i, p := range players {
			n := numbers[p.UID]
			p.Number = &n
			p.Clue1 = ""
			p.Clue2 = ""
			p.Ready = false
			p.OrderIndex = i
			tx.PutPlayer(p)
		}

		fields := map[string]any{
			"status":         string(game.StatusClue),
			"statusVersion":  cur.StatusVersion,
			"startRequestId": req.RequestID,
			"round":          cur.Round,
			"topic":          topic,
		}
		p, rec := s.buildPatch(req.RoomID, cur.StatusVersion, fields, "quick-start", req.RequestID)
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
			Int64("status_version", out.StatusVersion).Msg("room quick-started")
	}
	published := s.publish(out)
	return &published, nil
}
