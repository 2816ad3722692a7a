package domain

import "context"

// MetricsResult is the analysis engine's response for one session.
type MetricsResult struct {
	Metrics          GaitMetrics    `json:"metrics"`
	PhaseSegments    []PhaseSegment `json:"phase_segments,omitempty"`
	SensorsUsed      []string       `json:"sensors_used,omitempty"`
	DataQuality      string         `json:"data_quality,omitempty"`
	AnalysisDuration float64        `json:"analysis_duration_seconds,omitempty"`
}

// DetectionResult is the problem detector's clinical interpretation of a
// metrics record.
type DetectionResult struct {
	Problems []DetectedProblem `json:"problems"`
	Summary  ProblemSummary    `json:"summary"`
}

// RecommendedExercise is one exercise proposed by the recommendation engine.
type RecommendedExercise struct {
	ExerciseID   string   `json:"exercise_id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	TargetMetric string   `json:"target_metric,omitempty"`
	Sets         int      `json:"sets,omitempty"`
	Reps         int      `json:"reps,omitempty"`
	HoldSeconds  int      `json:"hold_seconds,omitempty"`
	Frequency    string   `json:"frequency,omitempty"`
	Difficulty   string   `json:"difficulty,omitempty"`
	Equipment    []string `json:"equipment,omitempty"`
	Instructions []string `json:"instructions,omitempty"`
	Precautions  []string `json:"precautions,omitempty"`
	Benefits     []string `json:"benefits,omitempty"`
}

// ProblemExercises groups recommended exercises under the problem they target.
type ProblemExercises struct {
	Problem   string                `json:"problem"`
	Exercises []RecommendedExercise `json:"exercises"`
}

// RecommendationStatusNoProblems marks a maintenance-only recommendation.
const RecommendationStatusNoProblems = "no_problems"

// Recommendation is the recommendation engine's response.
type Recommendation struct {
	Status               string                `json:"status,omitempty"`
	Groups               []ProblemExercises    `json:"recommendations,omitempty"`
	WeeklySchedule       map[string][]string   `json:"weekly_schedule,omitempty"`
	EstimatedTimeline    string                `json:"estimated_timeline,omitempty"`
	DailyTimeCommitment  string                `json:"daily_time_commitment,omitempty"`
	MaintenanceExercises []RecommendedExercise `json:"maintenance_exercises,omitempty"`
}

// MetricsAnalyzer turns raw sensor bundles into gait metrics. Required:
// a failed call aborts the whole submission.
type MetricsAnalyzer interface {
	Analyze(ctx context.Context, session WalkingSession) (*MetricsResult, error)
}

// ProblemDetector interprets metrics clinically. Best-effort: failures
// degrade to an empty problem list.
type ProblemDetector interface {
	Detect(ctx context.Context, metrics GaitMetrics) (*DetectionResult, error)
}

// ExerciseRecommender builds a personalized exercise set from detected
// problems. Best-effort: failures leave the analysis standing with plan
// generation reported as failed.
type ExerciseRecommender interface {
	Recommend(ctx context.Context, problems []DetectedProblem, profile UserProfile) (*Recommendation, error)
}
