package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/kemsu-schedule/schedule-bot/internal/application/query"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/subscriber"
	"github.com/kemsu-schedule/schedule-bot/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROBES
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "kemsu schedule bot",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":   "/healthz",
			"ready":    "/readyz",
			"groups":   "/v1/groups",
			"schedule": "/v1/schedule/{group}",
			"status":   "/v1/status",
		},
	})
}

// handleHealth is the liveness probe: the process is up and serving.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"uptime":  s.Uptime().Round(time.Second).String(),
		"version": s.config.Version,
	})
}

// handleReady is the readiness probe: a snapshot is loaded and the
// dependencies answer.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// API v1
// ══════════════════════════════════════════════════════════════════════════════

// handleGroups returns the institute index of the current snapshot.
func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.deps.Catalog.Catalog(r.Context())
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}

// handleSchedule renders one group's schedule as plain text, exactly as the
// bot would send it.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	group, err := subscriber.NormalizeGroupInput(r.PathValue("group"))
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}

	dto, err := s.deps.Schedule.Handle(r.Context(), query.GetScheduleQuery{Group: group.String()})
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}

	w.Header().Set("X-Document-Version", strconv.FormatInt(dto.Version, 10))
	if !dto.Found {
		writeText(w, http.StatusNotFound, dto.Text)
		return
	}
	writeText(w, http.StatusOK, dto.Text)
}

// handleStatus reports the document and subscriber counters.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Status.Handle(r.Context())
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}

	data := map[string]any{"document": status}
	if s.deps.BotStats != nil {
		data["bot"] = s.deps.BotStats()
	}
	if s.deps.Jobs != nil {
		data["jobs"] = s.deps.Jobs()
	}
	writeJSON(w, http.StatusOK, data)
}

// writeQueryError maps domain errors to HTTP statuses.
func (s *Server) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrInvalidGroupCode):
		writeJSONError(w, http.StatusBadRequest, "invalid_group", "Group code must look like ИС-951")
	case errors.Is(err, shared.ErrDocumentNotLoaded):
		writeJSONError(w, http.StatusServiceUnavailable, "document_not_loaded", "Timetable is not loaded yet")
	default:
		s.logger.ErrorContext(r.Context(), "http query failed",
			"path", r.URL.Path,
			"request_id", handlers.RequestID(r.Context()),
			"error", err,
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}
