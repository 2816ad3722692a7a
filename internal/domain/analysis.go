package domain

import "time"

// GaitMetrics is the fixed metrics record computed by the analysis engine
// for one accepted session.
type GaitMetrics struct {
	StepCount           int     `json:"step_count"`
	DurationSeconds     float64 `json:"duration_seconds"`
	Cadence             float64 `json:"cadence"`
	StrideLength        float64 `json:"stride_length"`
	Velocity            float64 `json:"velocity"`
	Symmetry            float64 `json:"symmetry"`
	Stability           float64 `json:"stability"`
	StepRegularity      float64 `json:"step_regularity"`
	VerticalOscillation float64 `json:"vertical_oscillation"`
	HeadingVariation    float64 `json:"heading_variation"`
	ElevationChange     float64 `json:"elevation_change"`
	PedometerStepCount  int     `json:"pedometer_step_count"`
}

// PhaseSegment is one stride-phase interval reported by the analysis engine.
type PhaseSegment struct {
	Phase string  `json:"phase"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Severity tiers a detected problem.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
)

// DetectedProblem is a clinically flagged deviation from normative gait metrics.
type DetectedProblem struct {
	Problem         string   `json:"problem"`
	Severity        Severity `json:"severity"`
	Value           float64  `json:"value"`
	NormalMin       float64  `json:"normal_min"`
	NormalMax       float64  `json:"normal_max"`
	Percentile      float64  `json:"percentile"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// ProblemSummary rolls detected problems up into an overall assessment.
type ProblemSummary struct {
	OverallStatus string           `json:"overall_status"`
	RiskLevel     string           `json:"risk_level"`
	TotalProblems int              `json:"total_problems"`
	BySeverity    map[Severity]int `json:"by_severity"`
}

// BuildProblemSummary derives a summary from a problem list. Used when the
// detector is unavailable and its own summary is missing.
func BuildProblemSummary(problems []DetectedProblem) ProblemSummary {
	summary := ProblemSummary{
		OverallStatus: "normal",
		RiskLevel:     "low",
		TotalProblems: len(problems),
		BySeverity:    make(map[Severity]int),
	}
	for _, p := range problems {
		summary.BySeverity[p.Severity]++
	}
	if len(problems) > 0 {
		summary.OverallStatus = "problems_detected"
	}
	switch {
	case summary.BySeverity[SeverityHigh] > 0:
		summary.RiskLevel = "high"
	case summary.BySeverity[SeverityModerate] > 0:
		summary.RiskLevel = "moderate"
	}
	return summary
}

// GaitAnalysis is the immutable persisted result of one accepted session:
// computed metrics plus (possibly empty) clinical interpretation.
type GaitAnalysis struct {
	ID             string            `json:"analysis_id"`
	UserID         string            `json:"user_id"`
	SessionID      string            `json:"session_id"`
	Metrics        GaitMetrics       `json:"metrics"`
	SensorsUsed    []string          `json:"sensors_used"`
	DataQuality    string            `json:"data_quality"`
	PhaseSegments  []PhaseSegment    `json:"phase_segments,omitempty"`
	Problems       []DetectedProblem `json:"problems"`
	ProblemSummary ProblemSummary    `json:"problem_summary"`
	CreatedAt      time.Time         `json:"created_at"`
}
