package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/deep/internal/access"
	"github.com/hyperengineering/deep/internal/pipeline"
	"github.com/hyperengineering/deep/internal/store"
	"github.com/hyperengineering/deep/internal/validation"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

type problemType struct {
	typeURI string
	title   string
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]problemType{
	http.StatusUnauthorized:        {"https://deep.dev/errors/unauthorized", "Unauthorized"},
	http.StatusBadRequest:          {"https://deep.dev/errors/bad-request", "Bad Request"},
	http.StatusNotFound:            {"https://deep.dev/errors/not-found", "Not Found"},
	http.StatusInternalServerError: {"https://deep.dev/errors/internal-error", "Internal Server Error"},
	http.StatusUnprocessableEntity: {"https://deep.dev/errors/validation-error", "Validation Error"},
	http.StatusConflict:            {"https://deep.dev/errors/conflict", "Conflict"},
	http.StatusForbidden:           {"https://deep.dev/errors/forbidden", "Forbidden"},
}

func lookupProblemType(status int) problemType {
	if pt, ok := problemTypes[status]; ok {
		return pt
	}
	return problemType{typeURI: "https://deep.dev/errors/unknown", title: http.StatusText(status)}
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	pt := lookupProblemType(status)
	writeProblemBody(w, status, Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	})
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	pt := lookupProblemType(http.StatusUnprocessableEntity)
	writeProblemBody(w, http.StatusUnprocessableEntity, ProblemWithErrors{
		Problem: Problem{
			Type:     pt.typeURI,
			Title:    pt.title,
			Status:   http.StatusUnprocessableEntity,
			Detail:   detail,
			Instance: r.URL.Path,
		},
		Errors: errs,
	})
}

func writeProblemBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// MapError converts domain errors to Problem Details responses. Unknown
// errors are logged and answered with a generic 500.
func MapError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validation.Errors
	var consistency *store.ConsistencyError
	var denied *access.PermissionError

	switch {
	case errors.As(err, &verrs):
		WriteProblemWithErrors(w, r, "Request contains invalid fields", verrs)
	case errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Resource not found")
	case errors.Is(err, store.ErrDuplicate):
		WriteProblem(w, r, http.StatusConflict, "Resource already exists")
	case errors.As(err, &consistency):
		WriteProblem(w, r, http.StatusBadRequest, consistency.Error())
	case errors.Is(err, store.ErrFrameworkMismatch):
		WriteProblem(w, r, http.StatusBadRequest, "Entry and widget belong to different analysis frameworks")
	case errors.Is(err, pipeline.ErrInvalidAttribute):
		WriteProblem(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, access.ErrBadRequest):
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &denied):
		WriteProblem(w, r, http.StatusForbidden, denied.Error())
	case errors.Is(err, access.ErrForbidden):
		WriteProblem(w, r, http.StatusForbidden, "Forbidden")
	default:
		slog.Error("request failed",
			"component", "api",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		// Never expose internal error details to client
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
