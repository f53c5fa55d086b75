package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperengineering/deep/internal/metrics"
)

// RouterConfig carries the settings of the HTTP surface.
type RouterConfig struct {
	JWTSecret   string
	CORSOrigins []string
	Metrics     *metrics.Metrics
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware(cfg.Metrics))
	r.Use(RecoveryMiddleware)
	r.Use(CORSMiddleware(cfg.CORSOrigins))

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/health", h.Health)

		// Protected routes act as the token subject
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.JWTSecret))

			r.Post("/projects", h.CreateProject)
			r.Route("/projects/{projectID}", func(r chi.Router) {
				r.Get("/", h.GetProject)
				r.Put("/framework", h.AttachFramework)
				r.Get("/members", h.ListMembers)
				r.Post("/members", h.AddMember)
				r.Patch("/members/{userID}", h.ChangeRole)
				r.Delete("/members/{userID}", h.RemoveMember)
				r.Post("/user-groups", h.AttachGroup)
				r.Delete("/user-groups/{groupID}", h.DetachGroup)
				r.Post("/join-requests", h.RequestJoin)
			})

			r.Route("/join-requests/{requestID}", func(r chi.Router) {
				r.Post("/accept", h.AcceptJoinRequest)
				r.Post("/reject", h.RejectJoinRequest)
				r.Post("/cancel", h.CancelJoinRequest)
			})

			r.Post("/user-groups", h.CreateGroup)
			r.Post("/user-groups/{groupID}/members", h.AddGroupMember)
			r.Delete("/user-groups/{groupID}/members/{userID}", h.RemoveGroupMember)

			r.Post("/frameworks", h.CreateFramework)
			r.Route("/frameworks/{frameworkID}", func(r chi.Router) {
				r.Get("/", h.GetFramework)
				r.Post("/members", h.AddFrameworkMember)
				r.Get("/widgets", h.ListWidgets)
				r.Post("/widgets", h.CreateWidget)
				r.Get("/filters", h.ListFilters)
				r.Get("/exportables", h.ListExportables)
				r.Post("/sync", h.SyncFramework)
			})
			r.Put("/widgets/{widgetID}", h.UpdateWidget)
			r.Delete("/widgets/{widgetID}", h.DeleteWidget)

			r.Post("/leads", h.CreateLead)
			r.Get("/leads/{leadID}", h.GetLead)
			r.Post("/leads/{leadID}/extract", h.ExtractLead)

			r.Post("/entries", h.CreateEntry)
			r.Route("/entries/{entryID}", func(r chi.Router) {
				r.Get("/", h.GetEntry)
				r.Put("/attributes/{widgetID}", h.SetAttribute)
				r.Get("/filter-data", h.EntryFilterData)
				r.Get("/export-data", h.EntryExportData)
			})
		})
	})

	return r
}
