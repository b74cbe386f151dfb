package collector

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Submission routes, named after the collectors whose clients post to them.
const (
	routeSocorro = "/submit"
	routeCaliper = "/crash_upload"
)

func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.limiters != nil {
			r.Use(s.rateLimitMiddleware)
		}

		r.Post(routeSocorro, s.handleSubmit(routeSocorro))
		r.Post(routeCaliper, s.handleSubmit(routeCaliper))
	})

	return r
}

func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}

	origins := s.cfg.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		opts.AllowedOrigins = []string{"*"}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
