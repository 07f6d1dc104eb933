// Package api provides HTTP API server components.
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/gateline/gateline/config"
	"github.com/gateline/gateline/pkg/api/handlers"
	"github.com/gateline/gateline/pkg/api/middleware"
	"github.com/gateline/gateline/pkg/logger"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Orders handles purchase and order lookup endpoints
	Orders *handlers.OrdersHandler

	// Events handles catalog and waitlist endpoints
	Events *handlers.EventsHandler

	// Sagas handles saga execution observability endpoints
	Sagas *handlers.SagaHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// WebSocket streams saga and order events
	WebSocket *handlers.WebSocketHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, handlers *Handlers) chi.Router {
	r := chi.NewRouter()

	// Register global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	}

	// Add metrics middleware if provided
	if handlers.Metrics != nil {
		r.Use(middleware.Metrics(handlers.Metrics))
	}

	if cfg.Server.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst)
		r.Use(middleware.RateLimit(limiter))
	}

	r.Use(middleware.CORS(&cfg.Server.CORS))
	r.Use(middleware.Timeout(cfg.Server.HTTP.ReadTimeout))

	// Register routes
	RegisterRoutes(r, handlers)

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, handlers *Handlers) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Order routes
		if handlers.Orders != nil {
			r.Route("/orders", func(r chi.Router) {
				r.Post("/", handlers.Orders.Purchase)
				r.Get("/", handlers.Orders.ListOrders)
				r.Get("/{id}", handlers.Orders.GetOrder)
				r.Get("/{id}/tickets", handlers.Orders.ListTickets)
			})
		}

		// Event catalog and waitlist routes
		if handlers.Events != nil {
			r.Route("/events", func(r chi.Router) {
				r.Post("/", handlers.Events.CreateEvent)
				r.Get("/", handlers.Events.ListEvents)
				r.Get("/{id}", handlers.Events.GetEvent)
				r.Post("/{id}/waitlist", handlers.Events.JoinWaitlist)
				r.Get("/{id}/waitlist", handlers.Events.ListWaitlist)
			})
		}

		// Saga observability routes
		if handlers.Sagas != nil {
			r.Route("/sagas", func(r chi.Router) {
				r.Get("/", handlers.Sagas.ListSagas)
				r.Get("/{id}", handlers.Sagas.GetSaga)
			})
		}
	})

	// Event stream
	if handlers.WebSocket != nil {
		r.Get("/ws/events", handlers.WebSocket.ServeHTTP)
	}

	// Health check routes (not versioned)
	if handlers.Health != nil {
		r.Get("/health", handlers.Health.Health)
		r.Get("/ready", handlers.Health.Ready)
		r.Get("/status", handlers.Health.Status)
	}
}
