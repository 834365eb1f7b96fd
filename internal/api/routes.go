package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the operator control surface. apiKey, when
// non-empty, gates every route under /api behind a bearer-token check
// (operators run this behind a private network; the key is a second
// layer, not the only one).
func SetupRoutes(h *Handlers, apiKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Server-Identity", "campaign-sync-engine")
			next.ServeHTTP(w, req)
		})
	})

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		if apiKey != "" {
			r.Use(bearerAuth(apiKey))
		}

		r.Route("/sync", func(r chi.Router) {
			r.Post("/start", h.StartSync)
			r.Post("/stop", h.StopSync)
			r.Get("/status", h.GetSyncStatus)
		})

		r.Route("/validate", func(r chi.Router) {
			r.Get("/connections", h.ValidateConnections)
			r.Post("/groups", h.ValidateGroupsAgainstUpstream)
		})

		r.Post("/transition", h.TransitionCampaigns)

		r.Route("/errors", func(r chi.Router) {
			r.Get("/", h.ListErrors)
			r.Post("/clear", h.ClearErrors)
		})
	})

	return r
}

// bearerAuth rejects requests whose Authorization header doesn't carry
// the configured key.
func bearerAuth(key string) func(http.Handler) http.Handler {
	want := "Bearer " + key
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("Authorization") != want {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
