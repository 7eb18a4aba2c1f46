// Package routers assembles the chi route table.
package routers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"slidecast/internal/api"
	"slidecast/internal/metrics"
	"slidecast/internal/utils"
	"slidecast/internal/web"
)

func New(handlers *api.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Presenter-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method("GET", "/metrics", metrics.Handler())

	r.Route("/_", func(r chi.Router) {
		// The websocket endpoint must not sit behind the request timeout.
		r.Get("/ws", handlers.WebSocket)

		r.Get("/presenter", handlers.PresenterPage)
		r.Get("/questions", handlers.QuestionsPage)
		r.Handle("/client/*", http.StripPrefix("/_/client/", http.FileServer(web.Static())))

		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/config", handlers.GetConfig)
			r.Put("/config", handlers.SaveConfig)
			r.Post("/config", handlers.SaveConfig)
			r.Get("/notes", handlers.Notes)

			r.Get("/questions", handlers.ListQuestions)
			r.Post("/questions", handlers.SubmitQuestion)
			r.Post("/questions/vote", handlers.VoteQuestion)
			r.Post("/questions/answer", handlers.AnswerQuestion)
			r.Post("/questions/delete", handlers.DeleteQuestion)
		})
	})

	// Everything else is the deck itself.
	r.NotFound(handlers.Deck)

	return r
}
