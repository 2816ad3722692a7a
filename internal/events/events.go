// Package events defines the domain event payloads published by the gait service.
package events

import "time"

// AnalysisCreated is emitted when a walking session is accepted and its
// analysis persisted.
type AnalysisCreated struct {
	AnalysisID   string    `json:"analysis_id"`
	TenantID     string    `json:"tenant_id"`
	UserID       string    `json:"user_id"`
	SessionID    string    `json:"session_id"`
	StepCount    int       `json:"step_count"`
	DataQuality  string    `json:"data_quality"`
	ProblemCount int       `json:"problem_count"`
	RiskLevel    string    `json:"risk_level"`
	CreatedAt    time.Time `json:"created_at"`
}

// PlanCreated is emitted when a new exercise plan is generated for a user.
type PlanCreated struct {
	PlanID         string    `json:"plan_id"`
	TenantID       string    `json:"tenant_id"`
	UserID         string    `json:"user_id"`
	AnalysisID     string    `json:"analysis_id"`
	TotalExercises int       `json:"total_exercises"`
	CreatedAt      time.Time `json:"created_at"`
}

// PlanStateChanged tracks plan lifecycle transitions (completed, superseded,
// retested) for downstream consumers.
type PlanStateChanged struct {
	PlanID               string    `json:"plan_id"`
	TenantID             string    `json:"tenant_id"`
	UserID               string    `json:"user_id"`
	Status               string    `json:"status"`
	CompletionPercentage float64   `json:"completion_percentage"`
	Reason               string    `json:"reason,omitempty"`
	OccurredAt           time.Time `json:"occurred_at"`
}
