package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dosada05/club-events/handlers"
	"github.com/Dosada05/club-events/middleware"
	"github.com/Dosada05/club-events/services"
)

const requestTimeout = 30 * time.Second

func SetupRoutes(
	router chi.Router,
	logger *slog.Logger,
	identity services.Identity,
	allowedOrigins []string,
	authHandler *handlers.AuthHandler,
	eventHandler *handlers.EventHandler,
	participationHandler *handlers.ParticipationHandler,
	memberHandler *handlers.MemberHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestLogger(logger))
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(identity)

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/ws/events/{eventID}", webSocketHandler.ServeWs)

	router.Route("/api", func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(requestTimeout))

		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("pong"))
		})

		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Get("/profile", authHandler.Profile)
			r.Get("/profile/events", authHandler.ProfileEvents)
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", eventHandler.List)
			r.With(authenticate, middleware.RequireAdmin).Post("/", eventHandler.Create)

			r.Route("/{eventID}", func(r chi.Router) {
				r.Get("/", eventHandler.Get)

				r.Group(func(r chi.Router) {
					r.Use(authenticate)
					r.Post("/participation", participationHandler.Join)
					r.Delete("/participation", participationHandler.Withdraw)
					r.Get("/participants", participationHandler.List)
				})

				r.Group(func(r chi.Router) {
					r.Use(authenticate, middleware.RequireAdmin)
					r.Put("/", eventHandler.Update)
					r.Delete("/", eventHandler.Delete)
					r.Post("/participants", participationHandler.Add)
					r.Delete("/participants/{username}", participationHandler.Remove)
					r.Post("/allocate", eventHandler.Allocate)
				})
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(authenticate, middleware.RequireAdmin)
			r.Get("/", memberHandler.List)
			r.Post("/", memberHandler.Create)
			r.Put("/{username}", memberHandler.Update)
			r.Delete("/{username}", memberHandler.Delete)
		})
	})
}
