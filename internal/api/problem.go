package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nickd290/jobtrail/internal/domain"
)

// ProblemDetail is an RFC 7807 error body.
type ProblemDetail struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Instance  string `json:"instance,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	// Field names the offending request field for bad input.
	Field string `json:"field,omitempty"`
}

// Error implements the error interface.
func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func writeProblem(w http.ResponseWriter, r *http.Request, p ProblemDetail) {
	if p.Type == "" {
		p.Type = fmt.Sprintf("https://jobtrail.dev/problems/%d", p.Status)
	}
	if p.Title == "" {
		p.Title = http.StatusText(p.Status)
	}
	p.Instance = r.URL.Path
	p.RequestID = RequestID(r.Context())

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, field, detail string) {
	writeProblem(w, r, ProblemDetail{Status: http.StatusBadRequest, Field: field, Detail: detail})
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, ProblemDetail{Status: http.StatusUnauthorized, Detail: detail})
}

func writeTooManyRequests(w http.ResponseWriter, r *http.Request, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	writeProblem(w, r, ProblemDetail{
		Status: http.StatusTooManyRequests,
		Detail: "Rate limit exceeded. Retry after the specified interval.",
	})
}

// writeError maps a service error onto a problem response. Storage and other
// unexpected errors are logged and never exposed to the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var fe *domain.FieldError
	switch {
	case errors.As(err, &fe):
		writeBadRequest(w, r, fe.Field, fe.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeBadRequest(w, r, "", err.Error())
	case domain.IsNotFound(err):
		writeProblem(w, r, ProblemDetail{Status: http.StatusNotFound, Detail: notFoundDetail(err)})
	case errors.Is(err, domain.ErrStageConflict):
		writeProblem(w, r, ProblemDetail{
			Status: http.StatusConflict,
			Detail: "job stage changed concurrently; retry the request",
		})
	default:
		logger.Error("internal server error",
			"error", err,
			"path", r.URL.Path,
			"request_id", RequestID(r.Context()),
		)
		writeProblem(w, r, ProblemDetail{
			Status: http.StatusInternalServerError,
			Detail: "An unexpected error occurred. Please try again later.",
		})
	}
}

func notFoundDetail(err error) string {
	switch {
	case errors.Is(err, domain.ErrThreadNotFound):
		return "thread not found"
	case errors.Is(err, domain.ErrJobNotFound):
		return "job not found"
	default:
		return "event not found"
	}
}
