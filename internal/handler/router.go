// internal/handler/router.go
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unclebandit/fieldsales-recruit/internal/controller"
	"github.com/unclebandit/fieldsales-recruit/internal/logging"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Router struct {
	Users     *controller.UserController
	Campaigns *controller.CampaignController
	Recruits  *controller.RecruitController
	Tokens    TokenParser
	DB        Pinger

	// AllowedOrigins enables CORS for browser clients when non-empty.
	AllowedOrigins []string
}

// Handler builds the HTTP surface.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware)
	r.Use(middleware.Recoverer)
	if len(rt.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", rt.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/register", rt.Users.Register)
	r.Get("/recruit/{code}", rt.Recruits.Show)
	r.Post("/recruit/{code}", rt.Recruits.Redeem)
	r.Route("/api", func(r chi.Router) {
		r.Use(RequireBearer(rt.Tokens))
		r.Post("/register-organization", rt.Campaigns.RegisterOrganization)
	})
	return r
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	if rt.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rt.DB.PingContext(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
