package domain

import (
	"errors"
	"time"
)

var (
	// ErrPlanNotFound is returned when a plan cannot be located.
	ErrPlanNotFound = errors.New("exercise plan not found")
	// ErrExerciseNotFound is returned when a plan holds no assignment for the exercise id.
	ErrExerciseNotFound = errors.New("exercise not found in plan")
	// ErrAlreadyComplete signals an idempotent replay of a completion.
	ErrAlreadyComplete = errors.New("exercise already completed")
	// ErrNotComplete is returned when undoing an exercise that was never completed.
	ErrNotComplete = errors.New("exercise not completed")
)

// PlanStatus is the lifecycle state of an exercise plan.
type PlanStatus string

const (
	PlanStatusActive    PlanStatus = "active"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusSkipped   PlanStatus = "skipped"
	PlanStatusExpired   PlanStatus = "expired"
)

// ExerciseAssignment is one recommended exercise instance inside a plan,
// carrying display metadata plus per-assignment completion state.
type ExerciseAssignment struct {
	ExerciseID    string   `json:"exercise_id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	TargetMetric  string   `json:"target_metric,omitempty"`
	TargetProblem string   `json:"target_problem,omitempty"`
	Sets          int      `json:"sets,omitempty"`
	Reps          int      `json:"reps,omitempty"`
	HoldSeconds   int      `json:"hold_seconds,omitempty"`
	Frequency     string   `json:"frequency,omitempty"`
	Difficulty    string   `json:"difficulty,omitempty"`
	Equipment     []string `json:"equipment,omitempty"`
	Instructions  []string `json:"instructions,omitempty"`
	Precautions   []string `json:"precautions,omitempty"`
	Benefits      []string `json:"benefits,omitempty"`

	Completed        bool       `json:"completed"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	DifficultyRating *int       `json:"difficulty_rating,omitempty"`
	Note             string     `json:"note,omitempty"`
}

// ExercisePlan is one assignment of recommended exercises tied to a single
// gait analysis. At most one plan per user may be active at any time.
type ExercisePlan struct {
	ID          string               `json:"plan_id"`
	UserID      string               `json:"user_id"`
	AnalysisID  string               `json:"analysis_id"`
	Problems    []DetectedProblem    `json:"problems"`
	Assignments []ExerciseAssignment `json:"assignments"`
	Status      PlanStatus           `json:"status"`

	TotalExercises        int     `json:"total_exercises"`
	ExercisesCompleted    int     `json:"exercises_completed"`
	CompletionPercentage  float64 `json:"completion_percentage"`
	AllExercisesCompleted bool    `json:"all_exercises_completed"`

	CanRetestGait    bool   `json:"can_retest_gait"`
	GaitRetested     bool   `json:"gait_retested"`
	RetestAnalysisID string `json:"retest_analysis_id,omitempty"`

	EstimatedTimeline   string      `json:"estimated_timeline,omitempty"`
	DailyTimeCommitment string      `json:"daily_time_commitment,omitempty"`
	Profile             UserProfile `json:"profile"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	SupersededAt *time.Time `json:"superseded_at,omitempty"`
}

// Recompute re-derives all plan-level aggregates from the assignment list.
// Called after every assignment mutation so the completion invariants hold
// inside the same store write.
func (p *ExercisePlan) Recompute(now time.Time) {
	p.TotalExercises = len(p.Assignments)
	done := 0
	for _, a := range p.Assignments {
		if a.Completed {
			done++
		}
	}
	p.ExercisesCompleted = done

	if p.TotalExercises > 0 {
		p.CompletionPercentage = 100 * float64(done) / float64(p.TotalExercises)
	} else {
		p.CompletionPercentage = 0
	}
	p.AllExercisesCompleted = p.TotalExercises > 0 && done == p.TotalExercises

	if p.AllExercisesCompleted {
		if p.CompletedAt == nil {
			completed := now
			p.CompletedAt = &completed
		}
		if p.Status == PlanStatusActive {
			p.Status = PlanStatusCompleted
		}
		// A consumed retest stands: completing again never re-arms the gate.
		p.CanRetestGait = !p.GaitRetested
	} else {
		p.CanRetestGait = false
		// Reverse the completion-driven transition, but never resurrect a
		// plan that was demoted by a newer plan.
		if p.Status == PlanStatusCompleted && p.SupersededAt == nil {
			p.Status = PlanStatusActive
			p.CompletedAt = nil
		}
	}
	p.UpdatedAt = now
}

// MarkExercise records completion of one assignment and re-derives the
// aggregates. Returns ErrAlreadyComplete on idempotent replay without
// touching any state.
func (p *ExercisePlan) MarkExercise(exerciseID string, now time.Time, rating *int, note string) error {
	assignment := p.findAssignment(exerciseID)
	if assignment == nil {
		return ErrExerciseNotFound
	}
	if assignment.Completed {
		return ErrAlreadyComplete
	}

	completed := now
	assignment.Completed = true
	assignment.CompletedAt = &completed
	if rating != nil {
		r := *rating
		assignment.DifficultyRating = &r
	}
	if note != "" {
		assignment.Note = note
	}

	p.Recompute(now)
	return nil
}

// UndoExercise clears the completion state of one assignment and re-derives
// the aggregates.
func (p *ExercisePlan) UndoExercise(exerciseID string, now time.Time) error {
	assignment := p.findAssignment(exerciseID)
	if assignment == nil {
		return ErrExerciseNotFound
	}
	if !assignment.Completed {
		return ErrNotComplete
	}

	assignment.Completed = false
	assignment.CompletedAt = nil
	assignment.DifficultyRating = nil
	assignment.Note = ""

	p.Recompute(now)
	return nil
}

// MarkAllExercises completes every remaining assignment in one mutation.
// Equivalent to marking each remaining exercise in sequence.
func (p *ExercisePlan) MarkAllExercises(now time.Time) {
	for i := range p.Assignments {
		if p.Assignments[i].Completed {
			continue
		}
		completed := now
		p.Assignments[i].Completed = true
		p.Assignments[i].CompletedAt = &completed
	}
	p.Recompute(now)
}

// ConsumeRetest records that the user ran their unlocked re-assessment.
func (p *ExercisePlan) ConsumeRetest(analysisID string, now time.Time) {
	p.GaitRetested = true
	p.RetestAnalysisID = analysisID
	p.CanRetestGait = false
	p.UpdatedAt = now
}

// Supersede demotes the plan in favor of a newer one.
func (p *ExercisePlan) Supersede(now time.Time) {
	superseded := now
	p.SupersededAt = &superseded
	p.Status = PlanStatusCompleted
	p.UpdatedAt = now
}

// ExercisesRemaining counts assignments not yet completed.
func (p *ExercisePlan) ExercisesRemaining() int {
	return p.TotalExercises - p.ExercisesCompleted
}

func (p *ExercisePlan) findAssignment(exerciseID string) *ExerciseAssignment {
	for i := range p.Assignments {
		if p.Assignments[i].ExerciseID == exerciseID {
			return &p.Assignments[i]
		}
	}
	return nil
}
