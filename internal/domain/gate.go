package domain

// GateReason explains a gate decision to the caller.
type GateReason string

const (
	GateReasonNoActivePlan          GateReason = "no_active_plan"
	GateReasonExercisesCompleted    GateReason = "exercises_completed"
	GateReasonExercisesNotCompleted GateReason = "exercises_not_completed"
)

// GateDecision answers whether a user may run another walking assessment.
// When the decision allows a retest of a finished plan, PlanID carries the
// plan whose retest the next analysis will consume.
type GateDecision struct {
	Allowed              bool       `json:"allowed"`
	Reason               GateReason `json:"reason"`
	PlanID               string     `json:"plan_id,omitempty"`
	ExercisesRemaining   int        `json:"exercises_remaining"`
	CompletionPercentage float64    `json:"completion_percentage"`
}

func gateAllow(reason GateReason, planID string) GateDecision {
	return GateDecision{Allowed: true, Reason: reason, PlanID: planID}
}

func gateDeny(plan *ExercisePlan) GateDecision {
	return GateDecision{
		Allowed:              false,
		Reason:               GateReasonExercisesNotCompleted,
		PlanID:               plan.ID,
		ExercisesRemaining:   plan.ExercisesRemaining(),
		CompletionPercentage: plan.CompletionPercentage,
	}
}
