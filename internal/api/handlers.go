package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"shellgw/internal/interp"
	"shellgw/internal/jobstore"
)

// handleCommand handles POST /command. The handler's declared mode decides
// the shape of the response: sync commands return output inline, async
// commands return a job id and a poll reference.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Line) == "" {
		s.writeError(w, http.StatusBadRequest, "line is required")
		return
	}

	result, err := s.dispatch.Dispatch(r.Context(), req.Line)
	if err != nil {
		var perr *interp.ParseError
		switch {
		case errors.As(err, &perr):
			s.writeError(w, http.StatusBadRequest, perr.Error())
		case errors.Is(err, interp.ErrUnknownVerb):
			s.writeError(w, http.StatusNotFound, err.Error())
		default:
			s.logger.Error("dispatch failed", "error", err)
			s.writeError(w, http.StatusInternalServerError, "dispatch failed")
		}
		return
	}

	if result.Async {
		respondJSON(w, http.StatusAccepted, AsyncResponse{
			JobID: result.JobID,
			Poll:  "/job/" + result.JobID,
		})
		return
	}

	respondJSON(w, http.StatusOK, SyncResponse{
		Output:     result.Output,
		StatusCode: result.StatusCode,
	})
}

// handleGetJob handles GET /job/{jobID}. An unknown id is 404, distinct from
// a job that exists but has produced no output yet.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	include := parseInclude(r.URL.Query().Get("include"))
	lastLength, err := parseLastLength(r.URL.Query().Get("last_length"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "last_length must be a non-negative integer")
		return
	}

	view, err := s.jobs.GetStatus(r.Context(), jobID, include, lastLength)
	if errors.Is(err, jobstore.ErrJobNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to read job", "job_id", jobID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read job")
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// handleListJobs handles GET /jobs, insertion-ordered.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	include := parseInclude(r.URL.Query().Get("include"))

	views, err := s.jobs.GetAllStatuses(r.Context(), include)
	if err != nil {
		s.logger.Error("failed to list jobs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if views == nil {
		views = []*jobstore.JobView{}
	}
	respondJSON(w, http.StatusOK, views)
}

// handleClearJobs handles DELETE /jobs (test/ops use only).
func (s *Server) handleClearJobs(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.ClearAllJobs(r.Context()); err != nil {
		s.logger.Error("failed to clear jobs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to clear jobs")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	counts, err := s.jobs.CountByStatus(r.Context())
	if err != nil {
		s.logger.Error("failed to count jobs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to count jobs")
		return
	}

	jobs := make(map[string]int, len(counts))
	for status, n := range counts {
		jobs[string(status)] = n
	}

	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Workers:       s.config.Workers,
		Jobs:          jobs,
	})
}

func parseInclude(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	include := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			include = append(include, p)
		}
	}
	return include
}

func parseLastLength(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid last_length")
	}
	return n, nil
}

// respondJSON is a helper to write JSON responses.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
