package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/carepulse/carepulse/internal/dispatch"
	"github.com/carepulse/carepulse/internal/models"
)

// DefaultAnalyticsWindowDays is used when the days query parameter is absent.
const DefaultAnalyticsWindowDays = 30

// httpStatusForError maps the domain error taxonomy onto HTTP status codes.
// Partial transport failure is not an error; it surfaces as success:false
// entries inside a 200 response.
func httpStatusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNoRecipients):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrInvalidRequest), errors.Is(err, models.ErrInvalidSchedule):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// sendCommunicationsHandler handles POST /communications/send. It validates
// the request, resolves recipients, and either dispatches immediately or
// persists scheduled rows when schedule_for is set.
func (s *Server) sendCommunicationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.sendCommunicationsHandler: processing send request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.sendCommunicationsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.BulkSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sendCommunicationsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if err := req.Validate(); err != nil {
		slog.Warn("Server.sendCommunicationsHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	body, err := s.resolveBody(req)
	if err != nil {
		slog.Warn("Server.sendCommunicationsHandler: failed to resolve message body", "error", err)
		writeJSONResponse(w, httpStatusForError(err), models.Error(err.Error()))
		return
	}

	recipients, err := s.resolver.Resolve(req)
	if err != nil {
		slog.Warn("Server.sendCommunicationsHandler: recipient resolution failed", "error", err)
		writeJSONResponse(w, httpStatusForError(err), models.Error(err.Error()))
		return
	}

	if req.ScheduleFor != nil {
		result, err := s.sched.Schedule(req, body, recipients, time.Now())
		if err != nil {
			slog.Warn("Server.sendCommunicationsHandler: scheduling failed", "error", err)
			writeJSONResponse(w, httpStatusForError(err), models.Error(err.Error()))
			return
		}
		slog.Info("Server.sendCommunicationsHandler: communications scheduled", "count", result.ScheduledCount)
		writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage(result.Message, result))
		return
	}

	result := s.engine.Dispatch(r.Context(), dispatch.Job{
		Recipients: recipients,
		Channel:    req.Type,
		Body:       body,
		TemplateID: req.TemplateID,
		Custom:     req.CustomVariables,
	})
	slog.Info("Server.sendCommunicationsHandler: bulk send processed",
		"total", result.TotalPatients, "success", result.SuccessCount, "failure", result.FailureCount)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage(result.Message, result))
}

// resolveBody returns the pre-substitution message body: the referenced
// template's body, or the literal custom message.
func (s *Server) resolveBody(req models.BulkSendRequest) (string, error) {
	if req.TemplateID == "" {
		return req.CustomMessage, nil
	}
	tpl, err := s.st.GetTemplate(req.TemplateID)
	if err != nil {
		return "", err
	}
	if tpl == nil {
		return "", models.ErrNotFound
	}
	return tpl.Body, nil
}

// analyticsHandler handles GET /analytics?days=N.
func (s *Server) analyticsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.analyticsHandler: processing analytics request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	days := DefaultAnalyticsWindowDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			slog.Warn("Server.analyticsHandler: invalid days parameter", "days", raw)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid days parameter"))
			return
		}
		days = parsed
	}

	snapshot, err := s.agg.Snapshot(days, time.Now())
	if err != nil {
		slog.Warn("Server.analyticsHandler: snapshot failed", "error", err, "days", days)
		writeJSONResponse(w, httpStatusForError(err), models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(snapshot))
}

// scheduledHandler routes /scheduled and /scheduled/{id}.
func (s *Server) scheduledHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.scheduledHandler: processing scheduled request", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/scheduled")
	path = strings.TrimPrefix(path, "/")
	segments := strings.Split(path, "/")

	if len(segments) == 0 || segments[0] == "" {
		switch r.Method {
		case http.MethodGet:
			s.listScheduledHandler(w, r)
		default:
			w.Header().Set("Allow", http.MethodGet)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	scheduledID := segments[0]
	if len(segments) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.getScheduledHandler(w, r, scheduledID)
		case http.MethodDelete:
			s.cancelScheduledHandler(w, r, scheduledID)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown scheduled endpoint"))
}

// listScheduledHandler handles GET /scheduled
func (s *Server) listScheduledHandler(w http.ResponseWriter, r *http.Request) {
	scheduled, err := s.st.ListScheduledCommunications()
	if err != nil {
		slog.Error("Server.listScheduledHandler: failed to list scheduled communications", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list scheduled communications"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"scheduled": scheduled,
		"count":     len(scheduled),
	}))
}

// getScheduledHandler handles GET /scheduled/{id}
func (s *Server) getScheduledHandler(w http.ResponseWriter, r *http.Request, scheduledID string) {
	sc, err := s.st.GetScheduledCommunication(scheduledID)
	if err != nil {
		slog.Error("Server.getScheduledHandler: lookup failed", "error", err, "scheduledID", scheduledID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to look up scheduled communication"))
		return
	}
	if sc == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Scheduled communication not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sc))
}

// cancelScheduledHandler handles DELETE /scheduled/{id}
func (s *Server) cancelScheduledHandler(w http.ResponseWriter, r *http.Request, scheduledID string) {
	sc, err := s.st.GetScheduledCommunication(scheduledID)
	if err != nil {
		slog.Error("Server.cancelScheduledHandler: lookup failed", "error", err, "scheduledID", scheduledID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to look up scheduled communication"))
		return
	}
	if sc == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Scheduled communication not found"))
		return
	}
	if err := s.st.DeleteScheduledCommunication(scheduledID); err != nil {
		slog.Error("Server.cancelScheduledHandler: failed to cancel", "error", err, "scheduledID", scheduledID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to cancel scheduled communication"))
		return
	}
	slog.Info("Server.cancelScheduledHandler: scheduled communication cancelled", "scheduledID", scheduledID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Scheduled communication cancelled", nil))
}

// healthHandler provides a health check endpoint for monitoring.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	statusCode := http.StatusOK
	if scheduled, err := s.st.ListScheduledCommunications(); err != nil {
		slog.Warn("Server.healthHandler: store check failed", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to query store"
		statusCode = http.StatusServiceUnavailable
	} else {
		healthData["scheduled_pending"] = len(scheduled)
	}

	writeJSONResponse(w, statusCode, healthData)
}
