/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/trainers/*       Trainer management + live dashboard
  /api/students/*       Student roster, events, assessments
  /api/rules/*          Versioned game rules
  /api/snapshots/*      Monthly performance snapshots
  /api/protocols/*      Assessment protocols
  /api/management       Result-management records
  /api/scenarios/*      Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Trainer routes
		r.Route("/trainers", func(r chi.Router) {
			r.Get("/", h.ListTrainers)
			r.Post("/", h.CreateTrainer)
			r.Get("/{id}", h.GetTrainer)
			r.Put("/{id}", h.UpdateTrainer)
			r.Get("/{id}/dashboard", h.GetTrainerDashboard)
			r.Get("/{id}/snapshots", h.ListTrainerSnapshots)
		})

		// Student routes
		r.Route("/students", func(r chi.Router) {
			r.Get("/", h.ListStudents)
			r.Post("/", h.CreateStudent)
			r.Get("/{id}", h.GetStudent)
			r.Put("/{id}", h.UpdateStudent)
			r.Get("/{id}/events", h.ListStudentEvents)
			r.Get("/{id}/assessments", h.ListStudentAssessments)
			r.Post("/{id}/assessments", h.RecordAssessment)
			r.Get("/{id}/evolution", h.GetStudentEvolution)
		})

		// Rule routes
		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.ListRules)
			r.Post("/", h.CreateRule)
			r.Get("/active", h.GetActiveRule)
			r.Get("/{id}", h.GetRule)
			r.Post("/{id}/activate", h.ActivateRule)
		})

		// Snapshot routes
		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", h.ListSnapshots)
			r.Post("/generate", h.GenerateSnapshot)
			r.Post("/generate-all", h.GenerateAll)
			r.Post("/finalize", h.FinalizeSnapshot)
		})

		// Protocol routes
		r.Route("/protocols", func(r chi.Router) {
			r.Get("/", h.ListProtocols)
			r.Post("/", h.CreateProtocol)
			r.Put("/{id}", h.UpdateProtocol)
		})

		// Result management
		r.Post("/management", h.UpsertManagementRecord)

		// Scenario routes (dev/demo)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
