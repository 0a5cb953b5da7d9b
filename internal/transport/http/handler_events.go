package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/riffluv/ito-sub004/internal/patch"
)

var ssePingInterval = 15 * time.Second

// EventsSSEHandler streams synchronization patches for one room. A
// reconnecting client sends Last-Event-ID and gets the missed tail
// replayed before going live.
func EventsSSEHandler(bus *patch.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "room_id")
		if roomID == "" {
			WriteHTTPError(w, http.StatusBadRequest, "room_id_required")
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			WriteHTTPError(w, http.StatusInternalServerError, "stream_not_supported")
			return
		}

		metricSSEConnectionsTotal.Add(1)
		metricSSEConnectionsActive.Add(1)
		defer metricSSEConnectionsActive.Add(-1)

		patch.SetSSEHeaders(w)
		log.Info().
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("room_id", roomID).
			Msg("patch stream opened")

		lastEventID := r.Header.Get("Last-Event-ID")
		for _, p := range bus.ReplayAfter(roomID, lastEventID) {
			if err := patch.WriteSSE(w, p); err != nil {
				return
			}
		}
		flusher.Flush()

		ch := bus.Subscribe(roomID)
		defer bus.Unsubscribe(roomID, ch)
		ticker := time.NewTicker(ssePingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				log.Info().
					Str("request_id", chimw.GetReqID(r.Context())).
					Str("room_id", roomID).
					Msg("patch stream closed")
				return
			case p, ok := <-ch:
				if !ok {
					return
				}
				if err := patch.WriteSSE(w, p); err != nil {
					return
				}
				flusher.Flush()
			case <-ticker.C:
				if err := patch.WriteSSEComment(w, "ping"); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}
