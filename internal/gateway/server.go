package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public, no auth required.
	r.Get("/health", g.handleHealth())

	// Decision API, auth required. Not mounted if no auth configured.
	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth, g.logger))
			if g.config.RequestsPerMin > 0 {
				r.Use(rateLimitMiddleware(newRateLimiter(g.config.RequestsPerMin)))
			}

			r.Route("/api", func(r chi.Router) {
				r.Get("/pending", g.handleListPending())
				r.Post("/pending/{server}/resolve", g.handleResolve())
				r.Post("/pending/{server}/cancel", g.handleCancel())
				r.Get("/tools/{tool}", g.handleToolLookup())
				r.Post("/tools/{tool}/resolve", g.handleResolveTool())
				if g.journal != nil {
					r.Get("/decisions", g.handleListDecisions())
				}
			})

			r.Get("/ws/pending", g.stream.ServeHTTP)

			if g.registry != nil {
				r.Handle("/metrics", promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}))
			}
		})
	}

	return r
}
