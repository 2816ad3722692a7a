// Package api exposes HTTP handlers for the gait service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"example.com/gait/internal/auth"
	"example.com/gait/internal/domain"
	"example.com/gait/internal/observability"
	"example.com/gait/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/sessions", h.sessions)
	mux.HandleFunc("/v1/gait/can-analyze", h.canAnalyze)
	mux.HandleFunc("/v1/analyses", h.listAnalyses)
	mux.HandleFunc("/v1/analyses/", h.analysisByID)
	mux.HandleFunc("/v1/plans/today", h.todaysPlan)
	mux.HandleFunc("/v1/plans/", h.planOperations)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeGaitWrite)
	if !ok {
		return
	}

	var req SubmitSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	result, err := h.service.SubmitSession(r.Context(), claims.TenantID, req.WalkingSession, req.Profile)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	observability.RecordSubmission("accepted")
	if !result.Persisted {
		observability.RecordAnalysisPersistFailure()
	}

	writeJSON(w, http.StatusOK, SubmitSessionResponse{
		Accepted:         true,
		Analysis:         result.Analysis,
		Plan:             result.Plan,
		PlanGeneration:   string(result.PlanGeneration),
		Persisted:        result.Persisted,
		ProblemsDegraded: result.ProblemsDegraded,
	})
}

func (h *Handler) writeSubmitError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		observability.RecordSubmission("rejected")
		writeJSON(w, http.StatusUnprocessableEntity, RejectionResponse{
			Accepted:       false,
			Rejected:       true,
			Validation:     validation.Result,
			Recommendation: validation.Result.Recommendation,
		})
		return
	}

	var gated *domain.GateDeniedError
	if errors.As(err, &gated) {
		observability.RecordSubmission("gated")
		writeJSON(w, http.StatusConflict, gated.Decision)
		return
	}

	if errors.Is(err, domain.ErrMetricsUnavailable) {
		observability.RecordSubmission("unavailable")
		writeError(w, http.StatusServiceUnavailable, "metrics_unavailable", "gait metrics analysis is temporarily unavailable")
		return
	}

	observability.RecordSubmission("error")
	writeError(w, http.StatusInternalServerError, "server_error", err.Error())
}

func (h *Handler) canAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	decision, err := h.service.CanPerformGaitAnalysis(r.Context(), claims.TenantID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (h *Handler) listAnalyses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	analyses, next, err := h.service.ListAnalyses(r.Context(), claims.TenantID, userID, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ListAnalysesResponse{
		Items:      analyses,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) analysisByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/analyses/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing analysis id")
		return
	}

	analysis, err := h.service.GetAnalysis(r.Context(), claims.TenantID, id)
	if err != nil {
		if errors.Is(err, domain.ErrAnalysisNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "analysis not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (h *Handler) todaysPlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	plan, err := h.service.TodaysPlan(r.Context(), claims.TenantID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrPlanNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no current plan for user")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, PlanResponse{Plan: plan})
}

// planOperations dispatches /v1/plans/{id}/exercises/{exercise_id}/complete,
// /v1/plans/{id}/exercises/{exercise_id}/undo, and /v1/plans/{id}/complete-all.
func (h *Handler) planOperations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeGaitWrite)
	if !ok {
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v1/plans/"), "/")
	switch {
	case len(parts) == 2 && parts[1] == "complete-all":
		h.markAllComplete(w, r, claims.TenantID, parts[0])
	case len(parts) == 4 && parts[1] == "exercises" && parts[3] == "complete":
		h.completeExercise(w, r, claims.TenantID, parts[0], parts[2])
	case len(parts) == 4 && parts[1] == "exercises" && parts[3] == "undo":
		h.undoExercise(w, r, claims.TenantID, parts[0], parts[2])
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown plan operation")
	}
}

func (h *Handler) completeExercise(w http.ResponseWriter, r *http.Request, tenantID, planID, exerciseID string) {
	var req CompleteExerciseRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	plan, alreadyComplete, err := h.service.MarkExerciseComplete(r.Context(), tenantID, planID, exerciseID, req.Rating, req.Note)
	if err != nil {
		writePlanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PlanResponse{Plan: plan, AlreadyComplete: alreadyComplete})
}

func (h *Handler) undoExercise(w http.ResponseWriter, r *http.Request, tenantID, planID, exerciseID string) {
	plan, err := h.service.UndoExerciseComplete(r.Context(), tenantID, planID, exerciseID)
	if err != nil {
		writePlanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PlanResponse{Plan: plan})
}

func (h *Handler) markAllComplete(w http.ResponseWriter, r *http.Request, tenantID, planID string) {
	plan, err := h.service.MarkAllComplete(r.Context(), tenantID, planID)
	if err != nil {
		writePlanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PlanResponse{Plan: plan})
}

func writePlanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrPlanNotFound):
		writeError(w, http.StatusNotFound, "not_found", "plan not found")
	case errors.Is(err, domain.ErrExerciseNotFound):
		writeError(w, http.StatusNotFound, "not_found", "exercise not found in plan")
	case errors.Is(err, domain.ErrNotComplete):
		writeError(w, http.StatusConflict, "not_complete", "exercise has not been completed")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

func requireReadScope(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(auth.ScopeGaitRead) && !claims.HasScope(auth.ScopeGaitWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+auth.ScopeGaitRead+" required")
		return nil, false
	}
	return claims, true
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
