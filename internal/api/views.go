package api

import (
	"errors"
	"strings"

	"example.com/gait/internal/domain"
)

// SubmitSessionRequest is the payload for POST /v1/sessions: the raw sensor
// bundle plus an optional user profile for plan personalization.
type SubmitSessionRequest struct {
	domain.WalkingSession
	Profile domain.UserProfile `json:"profile"`
}

// Validate ensures request correctness.
func (r SubmitSessionRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if strings.TrimSpace(r.SessionID) == "" {
		return errors.New("session_id is required")
	}
	return nil
}

// SubmitSessionResponse describes an accepted submission.
type SubmitSessionResponse struct {
	Accepted         bool                 `json:"accepted"`
	Analysis         *domain.GaitAnalysis `json:"analysis,omitempty"`
	Plan             *domain.ExercisePlan `json:"plan,omitempty"`
	PlanGeneration   string               `json:"plan_generation,omitempty"`
	Persisted        bool                 `json:"persisted"`
	ProblemsDegraded bool                 `json:"problems_degraded,omitempty"`
}

// RejectionResponse describes a session that failed quality validation.
type RejectionResponse struct {
	Accepted       bool                    `json:"accepted"`
	Rejected       bool                    `json:"rejected"`
	Validation     domain.ValidationResult `json:"validation"`
	Recommendation string                  `json:"recommendation,omitempty"`
}

// CompleteExerciseRequest is the optional body for exercise completion.
type CompleteExerciseRequest struct {
	Rating *int   `json:"rating,omitempty"`
	Note   string `json:"note,omitempty"`
}

// Validate ensures the difficulty rating, when present, is within 1-5.
func (r CompleteExerciseRequest) Validate() error {
	if r.Rating != nil && (*r.Rating < 1 || *r.Rating > 5) {
		return errors.New("rating must be between 1 and 5")
	}
	return nil
}

// PlanResponse wraps a plan mutation or retrieval result.
type PlanResponse struct {
	Plan            *domain.ExercisePlan `json:"plan"`
	AlreadyComplete bool                 `json:"already_complete,omitempty"`
}

// ListAnalysesResponse packages list results.
type ListAnalysesResponse struct {
	Items      []domain.GaitAnalysis `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}
