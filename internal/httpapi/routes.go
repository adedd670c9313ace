package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/cah-client/internal/dispatch"
)

func SetupRoutes(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/status", d.Status)
	r.Get("/notifications", d.ListNotifications)
	if d.Feed != nil {
		r.Get("/events", d.Events)
	}
	r.Get("/decks", d.ListDecks)

	r.Post("/auth/login", d.Login)
	r.Post("/auth/logout", d.Logout)

	r.Get("/lobby", d.Lobby)
	r.Post("/chat", d.intent(globalChat))
	r.Post("/games/refresh", d.intent(fixed(dispatch.ListGames{})))
	r.Post("/games", d.intent(fixed(dispatch.CreateGame{})))
	r.Post("/games/{id}/join", d.intent(joinGame))

	r.Route("/game", func(r chi.Router) {
		r.Get("/", d.Game)
		r.Get("/readiness", d.Readiness)
		r.Post("/leave", d.intent(fixed(dispatch.LeaveGame{})))
		r.Post("/chat", d.intent(gameChat))
		r.Patch("/settings", d.intent(updateSettings))
		r.Put("/decks/{deckID}", d.intent(updateDeck))
		r.Post("/play", d.intent(playCards))
		r.Post("/judge", d.intent(judgeCards))
		r.Post("/start", d.intent(fixed(dispatch.StartGame{})))
		r.Post("/stop", d.intent(fixed(dispatch.StopGame{})))
	})
	return r
}
