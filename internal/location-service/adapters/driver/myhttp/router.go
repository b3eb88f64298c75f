package myhttp

import (
	"net/http"

	"bus-tracker/internal/location-service/adapters/driver/myhttp/handlers"
	"bus-tracker/internal/location-service/adapters/driver/myhttp/middleware"
	"bus-tracker/internal/mylogger"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Routes struct {
	Location       *handlers.LocationHandler
	Health         *handlers.HealthHandler
	Auth           *middleware.AuthMiddleware
	Gateway        http.Handler
	AllowedOrigins []string
}

func NewRouter(log mylogger.Logger, rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", rt.Health.Health())
	r.Handle("/ws", rt.Gateway)

	r.Route("/api/location", func(r chi.Router) {
		r.Get("/active", rt.Location.ActiveLocations())
		r.Get("/nearby", rt.Location.Nearby())
		r.Get("/gtfs-rt", rt.Location.GTFSRealtime())
		r.Get("/{tripId}", rt.Location.GetLocation())

		r.Group(func(r chi.Router) {
			r.Use(rt.Auth.SessionHandler)
			r.Use(rt.Auth.DriverOnly)
			r.Post("/update", rt.Location.UpdateLocation())
			r.Post("/status", rt.Location.UpdateTripStatus())
			r.Delete("/{tripId}", rt.Location.StopTracking())
		})
	})

	return r
}
