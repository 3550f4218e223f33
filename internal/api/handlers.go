package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/netneural/mqtt-ingest/internal/models"
	"github.com/netneural/mqtt-ingest/internal/storage"
)

// HandleHealth reports process and database health
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// HandleListActivity lists activity log entries with optional filters
func (s *Server) HandleListActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	var filters storage.ActivityLogFilters

	if v := query.Get("organization_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid organization_id")
			return
		}
		filters.OrganizationID = &id
	}

	if v := query.Get("integration_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid integration_id")
			return
		}
		filters.IntegrationID = &id
	}

	if v := query.Get("status"); v != "" {
		status := models.ActivityStatus(v)
		filters.Status = &status
	}

	if v := query.Get("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid start_time")
			return
		}
		filters.StartTime = &t
	}

	if v := query.Get("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid end_time")
			return
		}
		filters.EndTime = &t
	}

	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit == 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(query.Get("offset"))

	entries, total, err := s.store.ListActivityLogs(ctx, filters, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   total,
	})
}

// HandleListSessions reports the live broker sessions and their states
func (s *Server) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.registry.All()

	type sessionInfo struct {
		IntegrationID string `json:"integration_id"`
		State         string `json:"state"`
	}

	infos := make([]sessionInfo, 0, len(sessions))
	for id, session := range sessions {
		infos = append(infos, sessionInfo{
			IntegrationID: id.String(),
			State:         string(session.State()),
		})
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": infos,
		"total":    len(infos),
	})
}

// respondJSON responds with JSON
func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
