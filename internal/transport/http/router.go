package httptransport

import (
	"expvar"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	approom "github.com/riffluv/ito-sub004/internal/app/room"
	"github.com/riffluv/ito-sub004/internal/auth"
	"github.com/riffluv/ito-sub004/internal/config"
	"github.com/riffluv/ito-sub004/internal/patch"
	"github.com/riffluv/ito-sub004/internal/presence"
)

func NewRouter(svc *approom.Service, bus *patch.Bus, pres *presence.Manager, tokens *auth.Verifier, cfg config.ServerConfig) *chi.Mux {
	rooms := NewRoomHandlers(svc)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware()).Get("/healthz", rooms.Health())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(APILogMiddleware())

			r.Post("/rooms", rooms.Create())
			r.Route("/rooms/{room_id}", func(r chi.Router) {
				r.Get("/snapshot", rooms.Snapshot())
				r.Get("/participants", ParticipantsHandler(svc, pres, cfg.PresenceWindowMS))

				r.Post("/join", rooms.Join())
				r.Post("/leave", rooms.Leave())
				r.Post("/reset", rooms.Reset())
				r.Post("/quick-start", rooms.QuickStart())
				r.Post("/spectators/recall", rooms.RecallSpectators())

				r.Post("/clue", rooms.SetClue())
				r.Post("/ready", rooms.SetReady())
				r.Post("/cards/place", rooms.PlaceCard())
				r.Post("/cards/remove", rooms.RemoveCard())
				r.Post("/cards/play", rooms.PlayCard())
				r.Post("/submit", rooms.SubmitSorted())
				r.Post("/finish-reveal", rooms.FinishReveal())

				r.Get("/events", EventsSSEHandler(bus))
				r.Get("/presence/ws", PresenceWSHandler(pres, tokens))
			})

			r.Group(func(r chi.Router) {
				r.Use(AdminAuthMiddleware(cfg.AdminAPIKey))
				r.Get("/debug/vars", expvar.Handler().ServeHTTP)
			})
		})
	})

	return r
}

func AdminAuthMiddleware(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" || !checkAdminAuth(r, adminKey) {
				WriteHTTPError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkAdminAuth(r *http.Request, adminKey string) bool {
	if v := r.Header.Get("X-Admin-Key"); v == adminKey {
		return true
	}
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) && len(auth) > len(prefix) {
		return auth[len(prefix):] == adminKey
	}
	return false
}

func LogRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 64)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Registered routes (%d):\n", len(routes)))
	for _, rt := range routes {
		b.WriteString(fmt.Sprintf("  %-6s %s\n", rt.Method, rt.Path))
	}
	fmt.Print(b.String())
}
