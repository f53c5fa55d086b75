package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/deep/internal/types"
)

type createProjectRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	IsPrivate   bool    `json:"is_private"`
	FrameworkID *string `json:"analysis_framework_id"`
}

// CreateProject handles POST /api/v1/projects
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p := &types.Project{
		Title:       req.Title,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
		FrameworkID: req.FrameworkID,
	}
	if err := h.projects.CreateProject(r.Context(), actor(r), p); err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetProject handles GET /api/v1/projects/{projectID}
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.projects.GetProject(r.Context(), actor(r), chi.URLParam(r, "projectID"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type attachFrameworkRequest struct {
	FrameworkID string `json:"analysis_framework_id"`
}

// AttachFramework handles PUT /api/v1/projects/{projectID}/framework
func (h *Handler) AttachFramework(w http.ResponseWriter, r *http.Request) {
	var req attachFrameworkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FrameworkID == "" {
		WriteProblem(w, r, http.StatusBadRequest, "analysis_framework_id is required")
		return
	}
	p, err := h.projects.AttachFramework(r.Context(), actor(r), chi.URLParam(r, "projectID"), req.FrameworkID)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type createFrameworkRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	ProjectID   *string `json:"project_id"`
	IsPrivate   bool    `json:"is_private"`
}

// CreateFramework handles POST /api/v1/frameworks
func (h *Handler) CreateFramework(w http.ResponseWriter, r *http.Request) {
	var req createFrameworkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	f := &types.AnalysisFramework{
		Title:       req.Title,
		Description: req.Description,
		ProjectID:   req.ProjectID,
		IsPrivate:   req.IsPrivate,
	}
	if err := h.projects.CreateFramework(r.Context(), actor(r), f); err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// GetFramework handles GET /api/v1/frameworks/{frameworkID}
func (h *Handler) GetFramework(w http.ResponseWriter, r *http.Request) {
	f, err := h.projects.GetFramework(r.Context(), actor(r), chi.URLParam(r, "frameworkID"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type frameworkMemberRequest struct {
	UserID string `json:"user_id"`
	RoleID string `json:"role_id"`
}

// AddFrameworkMember handles POST /api/v1/frameworks/{frameworkID}/members
func (h *Handler) AddFrameworkMember(w http.ResponseWriter, r *http.Request) {
	var req frameworkMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		WriteProblem(w, r, http.StatusBadRequest, "user_id is required")
		return
	}
	m, err := h.projects.AddFrameworkMember(r.Context(), actor(r), chi.URLParam(r, "frameworkID"), req.UserID, req.RoleID)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type widgetRequest struct {
	WidgetType string          `json:"widget_id"`
	Key        string          `json:"key"`
	Title      string          `json:"title"`
	Properties json.RawMessage `json:"properties"`
}

func (req widgetRequest) widget() *types.Widget {
	return &types.Widget{
		WidgetType: req.WidgetType,
		Key:        req.Key,
		Title:      req.Title,
		Properties: req.Properties,
	}
}

// CreateWidget handles POST /api/v1/frameworks/{frameworkID}/widgets
func (h *Handler) CreateWidget(w http.ResponseWriter, r *http.Request) {
	var req widgetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	wd := req.widget()
	wd.FrameworkID = chi.URLParam(r, "frameworkID")
	if err := h.projects.SaveWidget(r.Context(), actor(r), wd); err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}

// UpdateWidget handles PUT /api/v1/widgets/{widgetID}
func (h *Handler) UpdateWidget(w http.ResponseWriter, r *http.Request) {
	var req widgetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	wd := req.widget()
	wd.ID = chi.URLParam(r, "widgetID")
	if err := h.projects.SaveWidget(r.Context(), actor(r), wd); err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

// DeleteWidget handles DELETE /api/v1/widgets/{widgetID}
func (h *Handler) DeleteWidget(w http.ResponseWriter, r *http.Request) {
	if err := h.projects.DeleteWidget(r.Context(), actor(r), chi.URLParam(r, "widgetID")); err != nil {
		MapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListWidgets handles GET /api/v1/frameworks/{frameworkID}/widgets
func (h *Handler) ListWidgets(w http.ResponseWriter, r *http.Request) {
	widgets, err := h.projects.ListWidgets(r.Context(), actor(r), chi.URLParam(r, "frameworkID"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(widgets))
}

// ListFilters handles GET /api/v1/frameworks/{frameworkID}/filters
func (h *Handler) ListFilters(w http.ResponseWriter, r *http.Request) {
	filters, err := h.projects.ListFilters(r.Context(), actor(r), chi.URLParam(r, "frameworkID"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(filters))
}

// ListExportables handles GET /api/v1/frameworks/{frameworkID}/exportables
func (h *Handler) ListExportables(w http.ResponseWriter, r *http.Request) {
	exps, err := h.projects.ListExportables(r.Context(), actor(r), chi.URLParam(r, "frameworkID"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(exps))
}

// SyncFramework handles POST /api/v1/frameworks/{frameworkID}/sync
func (h *Handler) SyncFramework(w http.ResponseWriter, r *http.Request) {
	frameworkID := chi.URLParam(r, "frameworkID")
	if err := h.projects.RequestFrameworkSync(r.Context(), actor(r), frameworkID); err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": string(types.JobPending)})
}

type createLeadRequest struct {
	ProjectID  string               `json:"project_id"`
	Title      string               `json:"title"`
	SourceType types.LeadSourceType `json:"source_type"`
	URL        string               `json:"url"`
	Body       string               `json:"body"`
}

// CreateLead handles POST /api/v1/leads
func (h *Handler) CreateLead(w http.ResponseWriter, r *http.Request) {
	var req createLeadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	l := &types.Lead{
		ProjectID:  req.ProjectID,
		Title:      req.Title,
		SourceType: req.SourceType,
		URL:        req.URL,
		Body:       req.Body,
	}
	if err := h.projects.CreateLead(r.Context(), actor(r), l); err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// GetLead handles GET /api/v1/leads/{leadID}
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	l, err := h.projects.GetLead(r.Context(), actor(r), chi.URLParam(r, "leadID"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// ExtractLead handles POST /api/v1/leads/{leadID}/extract
func (h *Handler) ExtractLead(w http.ResponseWriter, r *http.Request) {
	if err := h.projects.RequestLeadExtraction(r.Context(), actor(r), chi.URLParam(r, "leadID")); err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": string(types.JobPending)})
}

type createEntryRequest struct {
	LeadID          string          `json:"lead_id"`
	EntryType       types.EntryType `json:"entry_type"`
	Excerpt         string          `json:"excerpt"`
	Image           string          `json:"image"`
	InformationDate *string         `json:"information_date"`
	Order           int             `json:"order"`
}

// CreateEntry handles POST /api/v1/entries
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e := &types.Entry{
		LeadID:          req.LeadID,
		EntryType:       req.EntryType,
		Excerpt:         req.Excerpt,
		Image:           req.Image,
		InformationDate: req.InformationDate,
		Order:           req.Order,
	}
	if err := h.projects.CreateEntry(r.Context(), actor(r), e); err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// GetEntry handles GET /api/v1/entries/{entryID}
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := h.projects.GetEntry(r.Context(), actor(r), chi.URLParam(r, "entryID"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// SetAttribute handles PUT /api/v1/entries/{entryID}/attributes/{widgetID}.
// The request body is the raw attribute value.
func (h *Handler) SetAttribute(w http.ResponseWriter, r *http.Request) {
	var value json.RawMessage
	if !decodeJSON(w, r, &value) {
		return
	}
	a, err := h.projects.SetAttribute(r.Context(), actor(r), chi.URLParam(r, "entryID"), chi.URLParam(r, "widgetID"), value)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// EntryFilterData handles GET /api/v1/entries/{entryID}/filter-data
func (h *Handler) EntryFilterData(w http.ResponseWriter, r *http.Request) {
	fds, err := h.projects.EntryFilterData(r.Context(), actor(r), chi.URLParam(r, "entryID"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(fds))
}

// EntryExportData handles GET /api/v1/entries/{entryID}/export-data
func (h *Handler) EntryExportData(w http.ResponseWriter, r *http.Request) {
	eds, err := h.projects.EntryExportData(r.Context(), actor(r), chi.URLParam(r, "entryID"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(eds))
}
