package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"

	custommiddleware "github.com/mmeshcher/parkdesk/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса парковки.
func (h *Handler) SetupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5, "application/json"))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Route("/vehicles", func(r chi.Router) {
				r.Get("/", h.ListVehicles)
				r.Post("/", h.AddVehicle)
				r.Get("/parked", h.ListParked)
				r.Get("/lookup", h.Lookup)
				r.Get("/{id}/quote", h.Quote)
				r.Put("/{id}/exit", h.ExitVehicle)
				r.Get("/{id}/receipt", h.Receipt)
			})

			r.Route("/permanent-clients", func(r chi.Router) {
				r.Get("/", h.ListPermanentClients)
				r.Post("/", h.AddPermanentClient)
				r.Put("/{id}", h.UpdatePermanentClient)
				r.Delete("/{id}", h.RemovePermanentClient)
			})

			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.UpdateSettings)

			r.Get("/daily-stats", h.ListDailyStats)
			r.Post("/daily-stats", h.PutDailyStats)
			r.Get("/daily-stats/today", h.TodayStats)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	cors := handlers.CORS(
		handlers.AllowedOrigins(h.corsOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)

	return cors(r)
}
