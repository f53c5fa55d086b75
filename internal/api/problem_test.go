package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperengineering/deep/internal/access"
	"github.com/hyperengineering/deep/internal/pipeline"
	"github.com/hyperengineering/deep/internal/store"
	"github.com/hyperengineering/deep/internal/validation"
)

func TestWriteProblem_BodyFormat(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/projects/p1", nil)

	WriteProblem(w, r, http.StatusNotFound, "Resource not found")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want application/problem+json", ct)
	}

	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	want := Problem{
		Type:     "https://deep.dev/errors/not-found",
		Title:    "Not Found",
		Status:   404,
		Detail:   "Resource not found",
		Instance: "/api/v1/projects/p1",
	}
	if p != want {
		t.Errorf("problem = %+v, want %+v", p, want)
	}
}

func TestWriteProblem_UnknownStatus(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	WriteProblem(w, r, http.StatusTeapot, "short and stout")

	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if p.Type != "https://deep.dev/errors/unknown" {
		t.Errorf("type = %q, want unknown", p.Type)
	}
	if p.Title != http.StatusText(http.StatusTeapot) {
		t.Errorf("title = %q", p.Title)
	}
}

func TestWriteProblemWithErrors_422(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/projects", nil)

	errs := []validation.ValidationError{{Field: "title", Message: "is required"}}
	WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}

	var p ProblemWithErrors
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if p.Type != "https://deep.dev/errors/validation-error" {
		t.Errorf("type = %q", p.Type)
	}
	if len(p.Errors) != 1 || p.Errors[0].Field != "title" {
		t.Errorf("errors = %+v, want one title error", p.Errors)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail string
	}{
		{"not found", fmt.Errorf("get project: %w", store.ErrNotFound), http.StatusNotFound, "Resource not found"},
		{"duplicate", fmt.Errorf("create: %w", store.ErrDuplicate), http.StatusConflict, "Resource already exists"},
		{
			"framework mismatch",
			&store.ConsistencyError{EntryID: "e1", WidgetID: "w1", EntryFrameworkID: "af1", WidgetFrameworkID: "af2"},
			http.StatusBadRequest,
			"entry e1 (framework af1) and widget w1 (framework af2)",
		},
		{"invalid attribute", fmt.Errorf("%w: widget date: bad", pipeline.ErrInvalidAttribute), http.StatusUnprocessableEntity, "widget date"},
		{"bad request", fmt.Errorf("%w: no framework membership", access.ErrBadRequest), http.StatusBadRequest, "no framework membership"},
		{"permission", &access.PermissionError{UserID: "u1", Action: "modify project p1"}, http.StatusForbidden, "user u1 may not modify project p1"},
		{"bare forbidden", access.ErrForbidden, http.StatusForbidden, "Forbidden"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/v1/x", nil)

			MapError(w, r, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var p Problem
			if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
				t.Fatalf("failed to unmarshal: %v", err)
			}
			if !strings.Contains(p.Detail, tt.wantDetail) {
				t.Errorf("detail = %q, want containing %q", p.Detail, tt.wantDetail)
			}
		})
	}
}

func TestMapError_ValidationErrors(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/leads", nil)

	err := fmt.Errorf("create lead: %w", validation.Errors{{Field: "url", Message: "is required"}})
	MapError(w, r, err)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	var p ProblemWithErrors
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if len(p.Errors) != 1 || p.Errors[0].Field != "url" {
		t.Errorf("errors = %+v", p.Errors)
	}
}

func TestMapError_UnknownDoesNotLeak(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/x", nil)

	MapError(w, r, errors.New("sqlite: /var/lib/deep/deep.db locked"))

	if strings.Contains(w.Body.String(), "/var/lib/deep") {
		t.Errorf("internal error leaked: %s", w.Body.String())
	}
}
