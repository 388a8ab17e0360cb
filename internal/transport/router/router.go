package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/martpet/hotspace-aws/internal/transport/handler"
)

func NewRouter(h *handler.Handler, metrics http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", h.EnqueueJob)
		r.Get("/dead-letters", h.ListDeadLetters)
		r.Route("/video", func(r chi.Router) {
			r.Post("/jobs", h.SubmitVideo)
			r.Delete("/jobs/{id}", h.CancelVideo)
			r.Post("/events", h.VideoEvent)
		})
	})

	return r
}
