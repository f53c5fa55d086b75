package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/deep/internal/membership"
	"github.com/hyperengineering/deep/internal/project"
	"github.com/hyperengineering/deep/internal/types"
	"github.com/hyperengineering/deep/internal/widget"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// StatsSource reports aggregate counts for the health endpoint.
type StatsSource interface {
	GetStats(ctx context.Context) (*types.StoreStats, error)
}

// Handler implements the API handlers
type Handler struct {
	stats    StatsSource
	registry *widget.Registry
	projects *project.Service
	members  *membership.Service
	version  string
}

// NewHandler creates a new Handler.
func NewHandler(stats StatsSource, registry *widget.Registry, projects *project.Service, members *membership.Service, version string) *Handler {
	return &Handler{
		stats:    stats,
		registry: registry,
		projects: projects,
		members:  members,
		version:  version,
	}
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GetStats(r.Context())
	if err != nil {
		MapError(w, r, err)
		return
	}

	widgetTypes := h.registry.Types()
	if widgetTypes == nil {
		widgetTypes = []string{}
	}
	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:      "healthy",
		Version:     h.version,
		WidgetTypes: widgetTypes,
		Projects:    stats.Projects,
		Entries:     stats.Entries,
	})
}

// actor returns the authenticated user of r.
func actor(r *http.Request) string {
	return MustUserIDFromContext(r.Context())
}

// decodeJSON decodes the request body into v. It writes a 400 problem and
// returns false when the body is not valid JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeBody(w, r, v, false)
}

// decodeOptionalJSON is decodeJSON but accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeBody(w, r, v, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err))
	return false
}

// writeJSON writes v as a JSON response with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "component", "api", "error", err)
	}
}

// nonNil keeps empty lists serialized as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
