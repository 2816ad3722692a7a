package domain

import (
	"fmt"
	"time"
)

// CheckResult reports one quality threshold check.
type CheckResult struct {
	Value    float64 `json:"value"`
	Required float64 `json:"required"`
	Passed   bool    `json:"passed"`
}

// ValidationResult is the structured outcome of session quality validation.
type ValidationResult struct {
	Valid          bool        `json:"valid"`
	Duration       CheckResult `json:"duration"`
	Steps          CheckResult `json:"steps"`
	Recommendation string      `json:"recommendation,omitempty"`
}

// SessionValidator rejects sessions below minimum quality thresholds before
// any collaborator is called.
type SessionValidator struct {
	MinDuration time.Duration
	MinSteps    int
}

// NewSessionValidator applies the clinical minimums: 30 seconds of walking
// and 20 steps.
func NewSessionValidator() SessionValidator {
	return SessionValidator{MinDuration: 30 * time.Second, MinSteps: 20}
}

// Validate screens the raw sensor bundle. A session with no samples on any
// primary channel fails both checks without derived-metric computation.
func (v SessionValidator) Validate(session WalkingSession) ValidationResult {
	if !session.HasPrimaryChannel() {
		return v.result(0, 0)
	}
	return v.result(session.Duration().Seconds(), float64(session.EstimatedSteps()))
}

// ValidateMetrics re-checks the thresholds against the metrics the analysis
// engine actually computed. Its notion of a usable recording is
// authoritative over the raw-input heuristic.
func (v SessionValidator) ValidateMetrics(metrics GaitMetrics) ValidationResult {
	return v.result(metrics.DurationSeconds, float64(metrics.StepCount))
}

func (v SessionValidator) result(durationSeconds, steps float64) ValidationResult {
	res := ValidationResult{
		Duration: CheckResult{
			Value:    durationSeconds,
			Required: v.MinDuration.Seconds(),
			Passed:   durationSeconds >= v.MinDuration.Seconds(),
		},
		Steps: CheckResult{
			Value:    steps,
			Required: float64(v.MinSteps),
			Passed:   steps >= float64(v.MinSteps),
		},
	}
	res.Valid = res.Duration.Passed && res.Steps.Passed
	if !res.Valid {
		res.Recommendation = v.recommendation(res)
	}
	return res
}

func (v SessionValidator) recommendation(res ValidationResult) string {
	switch {
	case !res.Duration.Passed && !res.Steps.Passed:
		return fmt.Sprintf("Walk for at least %.0f seconds and take at least %d steps, then try again.", v.MinDuration.Seconds(), v.MinSteps)
	case !res.Duration.Passed:
		return fmt.Sprintf("Recording too short: walk for at least %.0f seconds.", v.MinDuration.Seconds())
	default:
		return fmt.Sprintf("Too few steps detected: take at least %d steps during the recording.", v.MinSteps)
	}
}
