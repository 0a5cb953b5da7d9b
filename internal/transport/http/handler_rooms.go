package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	approom "github.com/riffluv/ito-sub004/internal/app/room"
	"github.com/riffluv/ito-sub004/internal/auth"
	"github.com/riffluv/ito-sub004/internal/game"
)

type RoomHandlers struct {
	svc *approom.Service
}

func NewRoomHandlers(svc *approom.Service) *RoomHandlers {
	return &RoomHandlers{svc: svc}
}

// writeCommandError maps service errors onto the HTTP error contract.
// fallback is the endpoint-specific code for anything unclassified.
func writeCommandError(w http.ResponseWriter, err error, fallback string) {
	metricCommandErrors.Add(1)
	switch {
	case errors.Is(err, approom.ErrRoomIDRequired):
		WriteHTTPError(w, http.StatusBadRequest, "room_id_required")
	case errors.Is(err, auth.ErrAuthRequired):
		WriteHTTPError(w, http.StatusUnauthorized, "auth_required")
	case errors.Is(err, auth.ErrUnauthorized):
		WriteHTTPError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, approom.ErrForbidden):
		WriteHTTPError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, approom.ErrWrongPassword):
		WriteHTTPError(w, http.StatusForbidden, "wrong_password")
	case errors.Is(err, approom.ErrRoomNotFound):
		WriteHTTPError(w, http.StatusNotFound, "room_not_found")
	case errors.Is(err, approom.ErrNotWaiting):
		WriteHTTPError(w, http.StatusConflict, "not_waiting")
	case errors.Is(err, approom.ErrInvalidStatus):
		WriteHTTPError(w, http.StatusConflict, "invalid_status")
	case errors.Is(err, approom.ErrSlotTaken):
		WriteHTTPError(w, http.StatusConflict, "slot_taken")
	case errors.Is(err, approom.ErrRateLimited):
		WriteHTTPError(w, http.StatusTooManyRequests, "rate_limited")
	case errors.Is(err, game.ErrDuplicatePlayer):
		WriteHTTPError(w, http.StatusBadRequest, "duplicate_player")
	case errors.Is(err, game.ErrLengthMismatch):
		WriteHTTPError(w, http.StatusBadRequest, "length_mismatch")
	case errors.Is(err, game.ErrUnknownPlayer):
		WriteHTTPError(w, http.StatusBadRequest, "unknown_player")
	case errors.Is(err, approom.ErrInvalidRequest):
		WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
	default:
		WriteHTTPError(w, http.StatusInternalServerError, fallback)
	}
}

// decodeBody tolerates an empty body, which decodes as the zero request.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
		return false
	}
	return true
}

func (h *RoomHandlers) Create() http.HandlerFunc {
	type body struct {
		HostName string           `json:"hostName"`
		Avatar   string           `json:"avatar"`
		Options  game.RoomOptions `json:"options"`
		Topics   []string         `json:"topics"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		metricCommandTotal.Add(1)
		var b body
		if !decodeBody(w, r, &b) {
			return
		}
		resp, err := h.svc.Create(r.Context(), approom.CreateRequest{
			HostName: b.HostName, Avatar: b.Avatar, Options: b.Options, Topics: b.Topics,
		})
		if err != nil {
			writeCommandError(w, err, "create_failed")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"roomId": resp.RoomID, "uid": resp.UID, "token": resp.Token,
		})
	}
}

func (h *RoomHandlers) Snapshot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := h.svc.Snapshot(r.Context(), chi.URLParam(r, "room_id"))
		if err != nil {
			writeCommandError(w, err, "snapshot_failed")
			return
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func (h *RoomHandlers) Join() http.HandlerFunc {
	type body struct {
		Name     string `json:"name"`
		Avatar   string `json:"avatar"`
		Password string `json:"password"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		metricCommandTotal.Add(1)
		var b body
		if !decodeBody(w, r, &b) {
			return
		}
		resp, err := h.svc.Join(r.Context(), approom.JoinRequest{
			RoomID: chi.URLParam(r, "room_id"), Name: b.Name, Avatar: b.Avatar, Password: b.Password,
		})
		if err != nil {
			writeCommandError(w, err, "join_failed")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"uid": resp.UID, "token": resp.Token})
	}
}

func (h *RoomHandlers) Leave() http.HandlerFunc {
	type body struct {
		Token string `json:"token"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		metricCommandTotal.Add(1)
		var b body
		if !decodeBody(w, r, &b) {
			return
		}
		err := h.svc.Leave(r.Context(), approom.LeaveRequest{
			RoomID: chi.URLParam(r, "room_id"), Token: bearerToken(r, b.Token),
		})
		if err != nil {
			writeCommandError(w, err, "leave_failed")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}

func (h *RoomHandlers) Reset() http.HandlerFunc {
	type body struct {
		Token            string `json:"token"`
		RequestID        string `json:"requestId"`
		SessionID        string `json:"sessionId"`
		RecallSpectators bool   `json:"recallSpectators"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		metricCommandTotal.Add(1)
		var b body
		if !decodeBody(w, r, &b) {
			return
		}
		p, err := h.svc.Reset(r.Context(), approom.ResetRequest{
			RoomID:           chi.URLParam(r, "room_id"),
			Token:            bearerToken(r, b.Token),
			RequestID:        b.RequestID,
			SessionID:        b.SessionID,
			RecallSpectators: b.RecallSpectators,
		})
		if err != nil {
			writeCommandError(w, err, "reset_failed")
			return
		}
		_ = json.NewEncoder(w).Encode(p)
	}
}

func (h *RoomHandlers) QuickStart() http.HandlerFunc {
	type body struct {
		Token             string `json:"token"`
		RequestID         string `json:"requestId"`
		SessionID         string `json:"sessionId"`
		Seed              string `json:"seed"`
		Topic             string `json:"topic"`
		AllowFromFinished bool   `json:"allowFromFinished"`
		AllowFromClue     bool   `json:"allowFromClue"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		metricCommandTotal.Add(1)
		var b body
		if !decodeBody(w, r, &b) {
			return
		}
		p, err := h.svc.QuickStart(r.Context(), approom.QuickStartRequest{
			RoomID:            chi.URLParam(r, "room_id"),
			Token:             bearerToken(r, b.Token),
			RequestID:         b.RequestID,
			SessionID:         b.SessionID,
			Seed:              b.Seed,
			Topic:             b.Topic,
			AllowFromFinished: b.AllowFromFinished,
			AllowFromClue:     b.AllowFromClue,
		})
		if err != nil {
			writeCommandError(w, err, "quick_start_failed")
			return
		}
		_ = json.NewEncoder(w).Encode(p)
	}
}

func (h *RoomHandlers) RecallSpectators() http.HandlerFunc {
	type body struct {
		Token         string `json:"token"`
		ClientVersion string `json:"clientVersion"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		metricCommandTotal.Add(1)
		var b body
		if !decodeBody(w, r, &b) {
			return
		}
		err := h.svc.RecallSpectators(r.Context(), approom.RecallRequest{
			RoomID:        chi.URLParam(r, "room_id"),
			Token:         bearerToken(r, b.Token),
			ClientVersion: b.ClientVersion,
		})
		if err != nil {
			writeCommandError(w, err, "recall_failed")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}

func (h *RoomHandlers) SetClue() http.HandlerFunc {
	type body struct {
		Token string `json:"token"`
		Clue1 string `json:"clue1"`
		Clue2 string `json:"clue2"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var b body
		if !decodeBody(w, r, &b) {
			return
		}
		err := h.svc.SetClue(r.Context(), approom.ClueRequest{
			RoomID: chi.URLParam(r, "room_id"), Token: bearerToken(r, b.Token),
			Clue1: b.Clue1, Clue2: b.Clue2,
		})
		if err != nil {
			writeCommandError(w, err, "clue_failed")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}

func (h *RoomHandlers) SetReady() http.HandlerFunc {
	type body struct {
		Token string `json:"token"`
		Ready bool   `json:"ready"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var b body
		if !decodeBody(w, r, &b) {
			return
		}
		err := h.svc.SetReady(r.Context(), approom.ReadyRequest{
			RoomID: chi.URLParam(r, "room_id"), Token: bearerToken(r, b.Token), Ready: b.Ready,
		})
		if err != nil {
			writeCommandError(w, err, "ready_failed")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}

func (h *RoomHandlers) PlaceCard() http.HandlerFunc {
	type body struct {
		Token       string `json:"token"`
		TargetIndex *int   `json:"targetIndex"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		metricCommandTotal.Add(1)
		var b body
		if !decodeBody(w, r, &b) {
			return
		}
		target := -1
		if b.TargetIndex != nil {
			target = *b.TargetIndex
		}
		resp, err := h.svc.PlaceCard(r.Context(), approom.PlaceRequest{
			RoomID: chi.URLParam(r, "room_id"), Token: bearerToken(r, b.Token), TargetIndex: target,
		})
		if err != nil {
			writeCommandError(w, err, "place_failed")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":     resp.Status,
			"finalIndex": resp.FinalIndex,
			"proposal":   resp.Proposal,
		})
	}
}

func (h *RoomHandlers) RemoveCard() http.HandlerFunc {
	type body struct {
		Token string `json:"token"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		metricCommandTotal.Add(1)
		var b body
		if !decodeBody(w, r, &b) {
			return
		}
		err := h.svc.RemoveCard(r.Context(), approom.RemoveRequest{
			RoomID: chi.URLParam(r, "room_id"), Token: bearerToken(r, b.Token),
		})
		if err != nil {
			writeCommandError(w, err, "remove_failed")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}

func (h *RoomHandlers) PlayCard() http.HandlerFunc {
	type body struct {
		Token string `json:"token"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		metricCommandTotal.Add(1)
		var b body
		if !decodeBody(w, r, &b) {
			return
		}
		p, err := h.svc.PlayCard(r.Context(), approom.PlayRequest{
			RoomID: chi.URLParam(r, "room_id"), Token: bearerToken(r, b.Token),
		})
		if err != nil {
			writeCommandError(w, err, "play_failed")
			return
		}
		_ = json.NewEncoder(w).Encode(p)
	}
}

func (h *RoomHandlers) SubmitSorted() http.HandlerFunc {
	type body struct {
		Token string   `json:"token"`
		List  []string `json:"list"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		metricCommandTotal.Add(1)
		var b body
		if !decodeBody(w, r, &b) {
			return
		}
		p, err := h.svc.SubmitSorted(r.Context(), approom.SubmitRequest{
			RoomID: chi.URLParam(r, "room_id"), Token: bearerToken(r, b.Token), List: b.List,
		})
		if err != nil {
			writeCommandError(w, err, "submit_failed")
			return
		}
		_ = json.NewEncoder(w).Encode(p)
	}
}

func (h *RoomHandlers) FinishReveal() http.HandlerFunc {
	type body struct {
		Token string `json:"token"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		metricCommandTotal.Add(1)
		var b body
		if !decodeBody(w, r, &b) {
			return
		}
		p, err := h.svc.FinishReveal(r.Context(), approom.FinishRevealRequest{
			RoomID: chi.URLParam(r, "room_id"), Token: bearerToken(r, b.Token),
		})
		if err != nil {
			writeCommandError(w, err, "finish_failed")
			return
		}
		_ = json.NewEncoder(w).Encode(p)
	}
}

func (h *RoomHandlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}
