package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Classification and invocation
		r.Post("/classify", h.ClassifyText)
		r.Post("/invoke", h.InvokeText)

		// Tasks
		r.Post("/tasks", h.CreateTask)
		r.Get("/tasks", h.ListTasks)
		r.Post("/tasks/recover", h.RecoverTasks)
		r.Get("/tasks/{id}", h.GetTask)
		r.Post("/tasks/{id}/resume", h.ResumeTask)
		r.Post("/tasks/{id}/steps/{stepID}/input", h.SubmitStepInput)

		// Routing introspection
		r.Get("/routing/table", h.GetRoutingTable)
		r.Post("/routing/refresh", h.RefreshRouting)
		r.Post("/routing/optimize", h.OptimizeRouting)

		// Metrics
		r.Get("/metrics", h.ListMetrics)
		r.Get("/interactions", h.ListInteractions)
	})
}
