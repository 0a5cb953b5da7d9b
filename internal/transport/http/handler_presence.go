package httptransport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	approom "github.com/riffluv/ito-sub004/internal/app/room"
	"github.com/riffluv/ito-sub004/internal/auth"
	"github.com/riffluv/ito-sub004/internal/presence"
)

// PresenceWSHandler upgrades to a websocket presence connection. The
// token rides the query string because browser websockets cannot set
// headers.
func PresenceWSHandler(pres *presence.Manager, tokens *auth.Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "room_id")
		if roomID == "" {
			WriteHTTPError(w, http.StatusBadRequest, "room_id_required")
			return
		}
		id, err := tokens.Verify(r.URL.Query().Get("token"))
		if err != nil {
			writeCommandError(w, err, "presence_failed")
			return
		}
		metricPresenceUpgradesTotal.Add(1)
		pres.Serve(w, r, roomID, id.UID)
	}
}

// ParticipantsHandler merges the player documents with the live
// presence roster into a "who is online" listing.
func ParticipantsHandler(svc *approom.Service, pres *presence.Manager, lastSeenWindowMS int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "room_id")
		snap, err := svc.Snapshot(r.Context(), roomID)
		if err != nil {
			writeCommandError(w, err, "participants_failed")
			return
		}
		merged := presence.Merge(snap.Players, pres.Present(roomID), time.Now().UnixMilli(), lastSeenWindowMS)
		_ = json.NewEncoder(w).Encode(map[string]any{"participants": merged})
	}
}
