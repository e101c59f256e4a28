package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nickd290/jobtrail/internal/domain"
	"github.com/nickd290/jobtrail/internal/ledger"
	"github.com/nickd290/jobtrail/internal/match"
	"github.com/nickd290/jobtrail/internal/pattern"
	"github.com/nickd290/jobtrail/internal/thread"
)

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		switch {
		case errors.As(err, &mbe):
			writeProblem(w, r, ProblemDetail{
				Status: http.StatusRequestEntityTooLarge,
				Detail: fmt.Sprintf("request body exceeds %d bytes", mbe.Limit),
			})
		case errors.Is(err, io.EOF):
			writeBadRequest(w, r, "", "request body is empty")
		default:
			writeBadRequest(w, r, "", "malformed JSON: "+err.Error())
		}
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type threadRequest struct {
	ThreadID         string     `json:"threadId"`
	FirstMessageID   string     `json:"firstMessageId"`
	Subject          string     `json:"subject"`
	From             string     `json:"from"`
	CustomerPONumber string     `json:"customerPONumber"`
	LastMessageAt    *time.Time `json:"lastMessageAt"`
}

type threadResponse struct {
	thread.View
	JobNumber string `json:"jobNumber,omitempty"`
}

func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	var req threadRequest
	if !s.decode(w, r, &req) {
		return
	}
	v, err := s.threads.Upsert(r.Context(), thread.UpsertInput{
		ThreadID:       req.ThreadID,
		FirstMessageID: req.FirstMessageID,
		Subject:        req.Subject,
		From:           req.From,
		PONumber:       req.CustomerPONumber,
		LastMessageAt:  req.LastMessageAt,
	})
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	resp := threadResponse{View: *v}
	if v.Job != nil {
		resp.JobNumber = v.Job.JobNumber
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var in ledger.CreateInput
	if !s.decode(w, r, &in) {
		return
	}
	res, err := s.ledger.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req match.Request
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ThreadID) == "" {
		writeError(w, r, s.logger, domain.Missing("threadId"))
		return
	}
	res, err := s.matcher.Match(r.Context(), req)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type linkRequest struct {
	ThreadID string `json:"threadId"`
	JobID    string `json:"jobId"`
}

type linkResponse struct {
	ThreadID   string `json:"threadId"`
	JobID      string `json:"jobId"`
	Reassigned int    `json:"reassigned"`
}

func (s *Server) handleLinkThread(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if !s.decode(w, r, &req) {
		return
	}
	n, err := s.threads.Link(r.Context(), req.ThreadID, req.JobID)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, linkResponse{ThreadID: req.ThreadID, JobID: req.JobID, Reassigned: n})
}

type needsReviewResponse struct {
	Events        []domain.Event  `json:"events"`
	OrphanThreads []domain.Thread `json:"orphanThreads"`
}

func (s *Server) handleNeedsReview(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, r, "limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := s.ledger.NeedsReview(r.Context(), limit)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	orphans, err := s.threads.Orphans(r.Context(), limit)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, needsReviewResponse{Events: events, OrphanThreads: orphans})
}

type resolveRequest struct {
	EventID string `json:"eventId"`
	JobID   string `json:"jobId"`
	Note    string `json:"note"`
}

func (s *Server) handleResolveReview(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !s.decode(w, r, &req) {
		return
	}
	e, err := s.ledger.ResolveReview(r.Context(), req.EventID, req.JobID, req.Note)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type classifyRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Subject == "" && req.Body == "" {
		writeBadRequest(w, r, "subject", "subject or body is required")
		return
	}
	writeJSON(w, http.StatusOK, pattern.Classify(req.Subject, req.Body))
}

type healthResponse struct {
	Status           string `json:"status"`
	SecretConfigured bool   `json:"secretConfigured"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", SecretConfigured: s.secret != ""})
}
