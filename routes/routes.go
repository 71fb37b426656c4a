package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/tachyonlabs/modelgate/handlers"
	"github.com/tachyonlabs/modelgate/middleware"
	"github.com/tachyonlabs/modelgate/services/session"
)

// Dependencies holds everything the router needs
type Dependencies struct {
	ChatHandler     *handlers.ChatHandler
	ProviderHandler *handlers.ProviderHandler
	FlagsHandler    *handlers.FlagsHandler
	HealthHandler   *handlers.HealthHandler
	SessionService  session.Validator
	Logger          *zap.Logger
	AllowedOrigins  []string
}

// New builds the HTTP router
func New(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", deps.HealthHandler.Health)
	r.Get("/ready", deps.HealthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(deps.SessionService, deps.Logger))

		r.Route("/chat", func(r chi.Router) {
			r.Post("/completions", deps.ChatHandler.Complete)
			r.Post("/stream", deps.ChatHandler.Stream)
		})

		r.Route("/provider", func(r chi.Router) {
			r.Get("/", deps.ProviderHandler.Status)
			r.Put("/", deps.ProviderHandler.Switch)
		})

		r.Route("/flags", func(r chi.Router) {
			r.Get("/", deps.FlagsHandler.List)
			r.Get("/{key}", deps.FlagsHandler.Get)
			r.Put("/{key}", deps.FlagsHandler.Set)
		})
	})

	return r
}
