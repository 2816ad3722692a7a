// Package domain defines the orchestration core of the gait assessment
// service: session validation, collaborator coordination, the exercise plan
// lifecycle, and retest gating.
package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrMetricsUnavailable is returned when the metrics analysis engine is
	// unreachable or errors. Metrics are required; there is no fallback.
	ErrMetricsUnavailable = errors.New("gait metrics analysis unavailable")
	// ErrAnalysisNotFound is returned when an analysis cannot be located.
	ErrAnalysisNotFound = errors.New("gait analysis not found")
)

// ValidationError carries the structured rejection of an unusable session.
type ValidationError struct {
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("session rejected: duration %.1fs (need %.0fs), steps %.0f (need %.0f)",
		e.Result.Duration.Value, e.Result.Duration.Required, e.Result.Steps.Value, e.Result.Steps.Required)
}

// GateDeniedError signals that the user must finish their exercises before
// re-running the assessment. A policy outcome, not a fault.
type GateDeniedError struct {
	Decision GateDecision
}

func (e *GateDeniedError) Error() string {
	return fmt.Sprintf("gait analysis gated: %s (%d exercises remaining)", e.Decision.Reason, e.Decision.ExercisesRemaining)
}

// Cursor models the pagination token for analysis listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// AnalysisRepository captures persistence operations for gait analyses.
type AnalysisRepository interface {
	CreateAnalysis(ctx context.Context, tenantID string, analysis GaitAnalysis) error
	GetAnalysis(ctx context.Context, tenantID, analysisID string) (*GaitAnalysis, error)
	ListAnalysesByUser(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]GaitAnalysis, *Cursor, error)
}

// PlanRepository captures persistence operations for exercise plans. Every
// mutation is a single atomic read-modify-write keyed by plan id; the
// supersede-and-create sequence is one store operation.
type PlanRepository interface {
	// CreatePlanSuperseding atomically demotes any other active plan for the
	// plan's user and inserts the new plan as active.
	CreatePlanSuperseding(ctx context.Context, tenantID string, plan ExercisePlan) error
	GetPlan(ctx context.Context, tenantID, planID string) (*ExercisePlan, error)
	// FindActivePlan returns the user's most recent active plan, or nil.
	FindActivePlan(ctx context.Context, tenantID, userID string) (*ExercisePlan, error)
	// FindRetestCandidate returns the user's most recent completed plan that
	// unlocked a retest not yet consumed, or nil.
	FindRetestCandidate(ctx context.Context, tenantID, userID string) (*ExercisePlan, error)
	// UpdatePlan loads the plan, applies mutate, and saves — atomically. If
	// mutate errors nothing is written; the loaded plan is still returned so
	// callers can report current state.
	UpdatePlan(ctx context.Context, tenantID, planID string, mutate func(*ExercisePlan) error) (*ExercisePlan, error)
}

// PlanGenerationStatus reports the plan-generation leg of a submission.
type PlanGenerationStatus string

const (
	PlanGenerationCreated   PlanGenerationStatus = "created"
	PlanGenerationNotNeeded PlanGenerationStatus = "not_needed"
	PlanGenerationFailed    PlanGenerationStatus = "failed"
)

// SubmitResult is the outcome of an accepted session submission. The caller
// always gets a fully populated analysis; degraded legs are flagged, never
// left ambiguous.
type SubmitResult struct {
	Analysis         *GaitAnalysis
	Plan             *ExercisePlan
	PlanGeneration   PlanGenerationStatus
	Persisted        bool
	ProblemsDegraded bool
}

// Service orchestrates the walking-assessment workflow.
type Service struct {
	analyses    AnalysisRepository
	plans       PlanRepository
	analyzer    MetricsAnalyzer
	detector    ProblemDetector
	recommender ExerciseRecommender
	validator   SessionValidator
	logger      *log.Logger
	now         func() time.Time
}

// NewService constructs a Service.
func NewService(analyses AnalysisRepository, plans PlanRepository, analyzer MetricsAnalyzer, detector ProblemDetector, recommender ExerciseRecommender, validator SessionValidator) *Service {
	return &Service{
		analyses:    analyses,
		plans:       plans,
		analyzer:    analyzer,
		detector:    detector,
		recommender: recommender,
		validator:   validator,
		logger:      log.New(log.Writer(), "[gait] ", log.LstdFlags),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CanPerformGaitAnalysis answers the retest gate for a user. The most recent
// active plan blocks until every exercise is complete; a finished plan
// awaiting its retest allows one; otherwise analysis is free.
func (s *Service) CanPerformGaitAnalysis(ctx context.Context, tenantID, userID string) (GateDecision, error) {
	active, err := s.plans.FindActivePlan(ctx, tenantID, userID)
	if err != nil {
		return GateDecision{}, err
	}
	if active != nil {
		if active.AllExercisesCompleted {
			return gateAllow(GateReasonExercisesCompleted, active.ID), nil
		}
		return gateDeny(active), nil
	}

	candidate, err := s.plans.FindRetestCandidate(ctx, tenantID, userID)
	if err != nil {
		return GateDecision{}, err
	}
	if candidate != nil {
		return gateAllow(GateReasonExercisesCompleted, candidate.ID), nil
	}

	return gateAllow(GateReasonNoActivePlan, ""), nil
}

// SubmitSession runs the full assessment flow: gate, validate, analyze,
// detect, persist, and generate a plan when problems were found.
//
// Failure semantics per leg: the gate and both validations reject before any
// collaborator spend; the metrics engine is required; problem detection and
// plan generation degrade; persistence failure is logged but the in-memory
// result is still returned.
func (s *Service) SubmitSession(ctx context.Context, tenantID string, session WalkingSession, profile UserProfile) (*SubmitResult, error) {
	gate, err := s.CanPerformGaitAnalysis(ctx, tenantID, session.UserID)
	if err != nil {
		return nil, err
	}
	if !gate.Allowed {
		return nil, &GateDeniedError{Decision: gate}
	}

	if raw := s.validator.Validate(session); !raw.Valid {
		return nil, &ValidationError{Result: raw}
	}

	metrics, err := s.analyzer.Analyze(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetricsUnavailable, err)
	}

	// The engine's own notion of a usable recording is authoritative over
	// the raw-input heuristic.
	if computed := s.validator.ValidateMetrics(metrics.Metrics); !computed.Valid {
		return nil, &ValidationError{Result: computed}
	}

	result := &SubmitResult{}

	problems, summary, degraded := s.detectProblems(ctx, metrics.Metrics)
	result.ProblemsDegraded = degraded

	analysis := s.buildAnalysis(session, metrics, problems, summary)
	result.Analysis = &analysis

	if err := s.analyses.CreateAnalysis(ctx, tenantID, analysis); err != nil {
		s.logger.Printf("analysis persistence failed (session=%s, user=%s): %v", session.SessionID, session.UserID, err)
	} else {
		result.Persisted = true
	}

	s.consumeRetest(ctx, tenantID, gate, analysis.ID)

	result.Plan, result.PlanGeneration = s.generatePlan(ctx, tenantID, analysis, profile)
	return result, nil
}

// detectProblems calls the problem detector, degrading to an empty problem
// list when it is unavailable.
func (s *Service) detectProblems(ctx context.Context, metrics GaitMetrics) ([]DetectedProblem, ProblemSummary, bool) {
	detection, err := s.detector.Detect(ctx, metrics)
	if err != nil {
		s.logger.Printf("problem detection unavailable, continuing with metrics only: %v", err)
		return []DetectedProblem{}, BuildProblemSummary(nil), true
	}
	problems := detection.Problems
	if problems == nil {
		problems = []DetectedProblem{}
	}
	summary := detection.Summary
	if summary.BySeverity == nil {
		summary = BuildProblemSummary(problems)
	}
	return problems, summary, false
}

func (s *Service) buildAnalysis(session WalkingSession, metrics *MetricsResult, problems []DetectedProblem, summary ProblemSummary) GaitAnalysis {
	sensors := metrics.SensorsUsed
	if len(sensors) == 0 {
		sensors = session.SensorsPresent()
	}
	return GaitAnalysis{
		ID:             uuid.NewString(),
		UserID:         session.UserID,
		SessionID:      session.SessionID,
		Metrics:        metrics.Metrics,
		SensorsUsed:    sensors,
		DataQuality:    metrics.DataQuality,
		PhaseSegments:  metrics.PhaseSegments,
		Problems:       problems,
		ProblemSummary: summary,
		CreatedAt:      s.now(),
	}
}

// consumeRetest marks the finished plan that unlocked this analysis as
// retested. Best-effort: a failure here must not disturb the submission.
func (s *Service) consumeRetest(ctx context.Context, tenantID string, gate GateDecision, analysisID string) {
	if gate.Reason != GateReasonExercisesCompleted || gate.PlanID == "" {
		return
	}
	_, err := s.plans.UpdatePlan(ctx, tenantID, gate.PlanID, func(plan *ExercisePlan) error {
		if plan.GaitRetested {
			return nil
		}
		plan.ConsumeRetest(analysisID, s.now())
		return nil
	})
	if err != nil {
		s.logger.Printf("failed to mark plan %s retested: %v", gate.PlanID, err)
	}
}

// generatePlan materializes a new active plan from the analysis's detected
// problems. Degrades rather than failing the submission.
func (s *Service) generatePlan(ctx context.Context, tenantID string, analysis GaitAnalysis, profile UserProfile) (*ExercisePlan, PlanGenerationStatus) {
	if analysis.ProblemSummary.TotalProblems == 0 {
		return nil, PlanGenerationNotNeeded
	}

	profile = profile.WithDefaults()
	recommendation, err := s.recommender.Recommend(ctx, analysis.Problems, profile)
	if err != nil {
		s.logger.Printf("exercise recommendation unavailable (analysis=%s): %v", analysis.ID, err)
		return nil, PlanGenerationFailed
	}
	if recommendation.Status == RecommendationStatusNoProblems || len(recommendation.Groups) == 0 {
		return nil, PlanGenerationNotNeeded
	}

	plan := s.buildPlan(analysis, profile, recommendation)
	if err := s.plans.CreatePlanSuperseding(ctx, tenantID, plan); err != nil {
		s.logger.Printf("plan persistence failed (analysis=%s): %v", analysis.ID, err)
		return nil, PlanGenerationFailed
	}
	return &plan, PlanGenerationCreated
}

// buildPlan flattens per-problem exercise groups into one ordered assignment
// list, each entry tagged with the problem it targets.
func (s *Service) buildPlan(analysis GaitAnalysis, profile UserProfile, rec *Recommendation) ExercisePlan {
	assignments := make([]ExerciseAssignment, 0)
	for _, group := range rec.Groups {
		for _, ex := range group.Exercises {
			assignments = append(assignments, ExerciseAssignment{
				ExerciseID:    ex.ExerciseID,
				Name:          ex.Name,
				Description:   ex.Description,
				TargetMetric:  ex.TargetMetric,
				TargetProblem: group.Problem,
				Sets:          ex.Sets,
				Reps:          ex.Reps,
				HoldSeconds:   ex.HoldSeconds,
				Frequency:     ex.Frequency,
				Difficulty:    ex.Difficulty,
				Equipment:     ex.Equipment,
				Instructions:  ex.Instructions,
				Precautions:   ex.Precautions,
				Benefits:      ex.Benefits,
			})
		}
	}

	now := s.now()
	return ExercisePlan{
		ID:                  uuid.NewString(),
		UserID:              analysis.UserID,
		AnalysisID:          analysis.ID,
		Problems:            analysis.Problems,
		Assignments:         assignments,
		Status:              PlanStatusActive,
		TotalExercises:      len(assignments),
		EstimatedTimeline:   rec.EstimatedTimeline,
		DailyTimeCommitment: rec.DailyTimeCommitment,
		Profile:             profile,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// GetAnalysis fetches a persisted analysis by id.
func (s *Service) GetAnalysis(ctx context.Context, tenantID, analysisID string) (*GaitAnalysis, error) {
	analysis, err := s.analyses.GetAnalysis(ctx, tenantID, analysisID)
	if err != nil {
		return nil, err
	}
	if analysis == nil {
		return nil, ErrAnalysisNotFound
	}
	return analysis, nil
}

// ListAnalyses fetches a user's analyses, most recent first.
func (s *Service) ListAnalyses(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]GaitAnalysis, *Cursor, error) {
	return s.analyses.ListAnalysesByUser(ctx, tenantID, userID, cursor, limit)
}

// TodaysPlan returns the user's current active plan, or the finished plan
// awaiting retest when no plan is active.
func (s *Service) TodaysPlan(ctx context.Context, tenantID, userID string) (*ExercisePlan, error) {
	plan, err := s.plans.FindActivePlan(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if plan != nil {
		return plan, nil
	}
	plan, err = s.plans.FindRetestCandidate(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}

// MarkExerciseComplete records completion of one exercise. Idempotent: a
// replay returns the unchanged plan with alreadyComplete set.
func (s *Service) MarkExerciseComplete(ctx context.Context, tenantID, planID, exerciseID string, rating *int, note string) (*ExercisePlan, bool, error) {
	plan, err := s.plans.UpdatePlan(ctx, tenantID, planID, func(p *ExercisePlan) error {
		return p.MarkExercise(exerciseID, s.now(), rating, note)
	})
	if errors.Is(err, ErrAlreadyComplete) {
		return plan, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return plan, false, nil
}

// UndoExerciseComplete reverses a completion and re-derives the aggregates.
func (s *Service) UndoExerciseComplete(ctx context.Context, tenantID, planID, exerciseID string) (*ExercisePlan, error) {
	return s.plans.UpdatePlan(ctx, tenantID, planID, func(p *ExercisePlan) error {
		return p.UndoExercise(exerciseID, s.now())
	})
}

// MarkAllComplete completes every remaining exercise in one atomic mutation,
// behaviorally equivalent to marking each in sequence.
func (s *Service) MarkAllComplete(ctx context.Context, tenantID, planID string) (*ExercisePlan, error) {
	return s.plans.UpdatePlan(ctx, tenantID, planID, func(p *ExercisePlan) error {
		p.MarkAllExercises(s.now())
		return nil
	})
}

// GetPlan fetches a plan by id.
func (s *Service) GetPlan(ctx context.Context, tenantID, planID string) (*ExercisePlan, error) {
	plan, err := s.plans.GetPlan(ctx, tenantID, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}
