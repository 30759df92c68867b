package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (c controller) Mux() http.Handler {
	r := chi.NewRouter()

	r.Use(c.requestIdMw)
	r.Use(c.requestLoggingMw)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/sign-up", c.signUp)
		r.Post("/auth/sign-in", c.signIn)
		r.Post("/auth/profile", c.updateProfile)
		r.Get("/auth/profile", c.profile)
		r.Get("/search", c.searchVideos)
	})

	r.HandleFunc("/ws", c.serveWS)

	return r
}
