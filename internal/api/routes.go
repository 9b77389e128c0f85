package api

import "github.com/go-chi/chi/v5"

// Handlers groups the gateway endpoints mounted under /api/v1.
type Handlers struct {
	Systems   *SystemsHandler
	PTZ       *PTZHandler
	Telemetry *TelemetryHandler
}

func (h Handlers) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/systems", h.Systems.List)
		r.Route("/systems/{id}", func(r chi.Router) {
			r.Get("/", h.Systems.Get)
			r.Get("/previews", h.Systems.Previews)
			r.Get("/stream", h.Systems.Stream)
			r.Post("/modules/{module}/home", h.PTZ.Home)
			r.Get("/modules/{module}/ptz", h.PTZ.Control)
		})
		r.Post("/telemetry", h.Telemetry.Record)
	})
}
