package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/deep/internal/types"
)

type memberRequest struct {
	UserID string `json:"user_id"`
	RoleID string `json:"role_id"`
}

// ListMembers handles GET /api/v1/projects/{projectID}/members
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.ListMembers(r.Context(), actor(r), chi.URLParam(r, "projectID"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(members))
}

// AddMember handles POST /api/v1/projects/{projectID}/members
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		WriteProblem(w, r, http.StatusBadRequest, "user_id is required")
		return
	}
	m, err := h.members.AddMember(r.Context(), actor(r), chi.URLParam(r, "projectID"), req.UserID, req.RoleID)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ChangeRole handles PATCH /api/v1/projects/{projectID}/members/{userID}
func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RoleID == "" {
		WriteProblem(w, r, http.StatusBadRequest, "role_id is required")
		return
	}
	m, err := h.members.ChangeRole(r.Context(), actor(r), chi.URLParam(r, "projectID"), chi.URLParam(r, "userID"), req.RoleID)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// RemoveMember handles DELETE /api/v1/projects/{projectID}/members/{userID}
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	res, err := h.members.RemoveMember(r.Context(), actor(r), chi.URLParam(r, "projectID"), chi.URLParam(r, "userID"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type attachGroupRequest struct {
	GroupID string  `json:"group_id"`
	RoleID  *string `json:"role_id"`
}

// AttachGroup handles POST /api/v1/projects/{projectID}/user-groups
func (h *Handler) AttachGroup(w http.ResponseWriter, r *http.Request) {
	var req attachGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.GroupID == "" {
		WriteProblem(w, r, http.StatusBadRequest, "group_id is required")
		return
	}
	pug, err := h.members.AttachGroup(r.Context(), actor(r), chi.URLParam(r, "projectID"), req.GroupID, req.RoleID)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pug)
}

// DetachGroup handles DELETE /api/v1/projects/{projectID}/user-groups/{groupID}
func (h *Handler) DetachGroup(w http.ResponseWriter, r *http.Request) {
	res, err := h.members.DetachGroup(r.Context(), actor(r), chi.URLParam(r, "projectID"), chi.URLParam(r, "groupID"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type joinRequestBody struct {
	RoleID *string `json:"role_id"`
}

// RequestJoin handles POST /api/v1/projects/{projectID}/join-requests
func (h *Handler) RequestJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequestBody
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	jr, err := h.members.RequestJoin(r.Context(), actor(r), chi.URLParam(r, "projectID"), req.RoleID)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, jr)
}

// AcceptJoinRequest handles POST /api/v1/join-requests/{requestID}/accept
func (h *Handler) AcceptJoinRequest(w http.ResponseWriter, r *http.Request) {
	var req joinRequestBody
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	var roleID string
	if req.RoleID != nil {
		roleID = *req.RoleID
	}
	m, err := h.members.AcceptJoinRequest(r.Context(), actor(r), chi.URLParam(r, "requestID"), roleID)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// RejectJoinRequest handles POST /api/v1/join-requests/{requestID}/reject
func (h *Handler) RejectJoinRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.members.RejectJoinRequest(r.Context(), actor(r), chi.URLParam(r, "requestID")); err != nil {
		MapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelJoinRequest handles POST /api/v1/join-requests/{requestID}/cancel
func (h *Handler) CancelJoinRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.members.CancelJoinRequest(r.Context(), actor(r), chi.URLParam(r, "requestID")); err != nil {
		MapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createGroupRequest struct {
	Title string `json:"title"`
}

// CreateGroup handles POST /api/v1/user-groups
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	g, err := h.members.CreateGroup(r.Context(), actor(r), req.Title)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

type groupMemberRequest struct {
	UserID string          `json:"user_id"`
	Role   types.GroupRole `json:"role"`
}

// AddGroupMember handles POST /api/v1/user-groups/{groupID}/members
func (h *Handler) AddGroupMember(w http.ResponseWriter, r *http.Request) {
	var req groupMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		WriteProblem(w, r, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Role == "" {
		req.Role = types.GroupNormal
	}
	if req.Role != types.GroupNormal && req.Role != types.GroupAdmin {
		WriteProblem(w, r, http.StatusBadRequest, "role must be admin or normal")
		return
	}
	gm, err := h.members.AddGroupMember(r.Context(), actor(r), chi.URLParam(r, "groupID"), req.UserID, req.Role)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gm)
}

// RemoveGroupMember handles DELETE /api/v1/user-groups/{groupID}/members/{userID}
func (h *Handler) RemoveGroupMember(w http.ResponseWriter, r *http.Request) {
	res, err := h.members.RemoveGroupMember(r.Context(), actor(r), chi.URLParam(r, "groupID"), chi.URLParam(r, "userID"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
