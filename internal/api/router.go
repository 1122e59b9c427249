// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/shiptrack/internal/middleware"
)

// Router builds the chi route tree.
type Router struct {
	handler *Handler
	chi     *ChiMiddleware
}

// NewRouter creates a Router. A nil middleware config uses the defaults.
func NewRouter(handler *Handler, cfg *ChiMiddlewareConfig) *Router {
	return &Router{handler: handler, chi: NewChiMiddleware(cfg)}
}

// SetupChi returns the complete HTTP handler.
func (rt *Router) SetupChi() http.Handler {
	r := chi.NewRouter()
	h := rt.handler

	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(rt.chi.CORS())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)

		r.Group(func(r chi.Router) {
			r.Use(rt.chi.HealthRateLimit())
			r.Get("/health/live", h.HealthLive)
			r.Get("/health/ready", h.HealthReady)
		})

		r.Group(func(r chi.Router) {
			r.Use(rt.chi.RateLimit())

			r.Route("/view", func(r chi.Router) {
				r.Get("/", h.View)
				r.Get("/locations", h.ViewLocations)
				r.Get("/path", h.ViewPath)
				r.Get("/series/{metric}", h.ViewSeries)
				r.Get("/alerts", h.ViewAlerts)
				r.Get("/events", h.ViewEvents)
			})

			r.Route("/subject", func(r chi.Router) {
				r.Get("/", h.GetSubject)
				r.Put("/", h.PutSubject)
				r.Post("/reload", h.ReloadSubject)
			})

			r.Route("/connection", func(r chi.Router) {
				r.Get("/", h.GetConnection)
				r.Post("/reconnect", h.Reconnect)
				r.Post("/disconnect", h.Disconnect)
			})

			r.Route("/credential", func(r chi.Router) {
				r.Get("/", h.GetCredential)
				r.Put("/", h.PutCredential)
				r.Delete("/", h.DeleteCredential)
			})

			r.Route("/trackers", func(r chi.Router) {
				r.Get("/", h.ListTrackers)
				r.Post("/", h.CreateTracker)
				r.Delete("/{id}", h.DeleteTracker)
			})

			r.Route("/shipments", func(r chi.Router) {
				r.Get("/", h.ListShipments)
				r.Post("/", h.CreateShipment)
				r.Get("/{id}", h.GetShipment)
				r.Delete("/{id}", h.DeleteShipment)
				r.Get("/{id}/alert-presets", h.GetAlertPresets)
				r.Put("/{id}/alert-presets", h.PutAlertPresets)
			})

			r.Get("/assets/{id}", h.GetAsset)
			r.Get("/analytics", h.Analytics)
			r.Get("/alerts", h.AlertHistory)
		})

		// The websocket is long-lived; rate limiting applies to the upgrade only.
		r.With(rt.chi.RateLimit()).Get("/ws", h.WebSocket)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
