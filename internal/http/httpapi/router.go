package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"brandkit/internal/http/handlers"
	"brandkit/internal/middleware"
)

// NewRouter wires the public API surface.
func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/queues", func(r chi.Router) {
		r.Get("/", app.QueueList)
		r.Get("/{queue}/stats", app.QueueStats)
		r.Post("/{queue}/jobs", app.JobEnqueue)
	})

	r.Route("/v1/jobs/{job_id}", func(r chi.Router) {
		r.Get("/", app.JobStatus)
		r.Get("/events", app.JobEvents)
	})

	r.Get("/v1/brands/{brand_id}/events", app.BrandEvents)

	r.Route("/v1/wizard", func(r chi.Router) {
		r.Post("/activity", app.WizardActivity)
		r.Get("/resume", app.WizardResume)
	})

	return r
}
