package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maksimkurb/pbrsync/src/internal/config"
	"github.com/maksimkurb/pbrsync/src/internal/metrics"
)

// NewRouter creates a new HTTP router with all API endpoints. m may be nil
// to disable request counting and the /metrics endpoint.
func NewRouter(rules RuleSource, configHasher *config.ConfigHasher, m *metrics.Registry) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(Recovery)
	r.Use(RequestLog(m))
	r.Use(PrivateSubnetOnly) // Restrict access to private subnets
	r.Use(CORS)

	h := NewHandler(rules, configHasher)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/pbr", h.GetPBR)
		r.Get("/pbr/maps", h.GetMaps)
		r.Get("/pbr/maps/{name}", h.GetMap)
		r.Get("/pbr/interfaces", h.GetInterfaces)
		r.Get("/pbr/interfaces/{name}", h.GetInterface)

		// Health check endpoint
		r.Get("/health", h.CheckHealth)
	})

	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	return r
}
