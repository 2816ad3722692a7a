// Package memory provides an in-memory store for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"example.com/gait/internal/domain"
)

// Repository implements the analysis and plan repositories with in-process
// maps. Per-plan atomicity is provided by the repository mutex, standing in
// for the store's per-document atomicity.
type Repository struct {
	mu       sync.Mutex
	analyses map[string]domain.GaitAnalysis
	plans    map[string]domain.ExercisePlan
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		analyses: make(map[string]domain.GaitAnalysis),
		plans:    make(map[string]domain.ExercisePlan),
	}
}

// CreateAnalysis stores an analysis record.
func (r *Repository) CreateAnalysis(ctx context.Context, tenantID string, analysis domain.GaitAnalysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyses[key(tenantID, analysis.ID)] = analysis
	return nil
}

// GetAnalysis retrieves an analysis by id, or nil.
func (r *Repository) GetAnalysis(ctx context.Context, tenantID, analysisID string) (*domain.GaitAnalysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if analysis, ok := r.analyses[key(tenantID, analysisID)]; ok {
		return &analysis, nil
	}
	return nil, nil
}

// ListAnalysesByUser returns a user's analyses, most recent first.
func (r *Repository) ListAnalysesByUser(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.GaitAnalysis, *domain.Cursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	results := make([]domain.GaitAnalysis, 0)
	for k, analysis := range r.analyses {
		if analysis.UserID != userID || k != key(tenantID, analysis.ID) {
			continue
		}
		results = append(results, analysis)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID > results[j].ID
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	if cursor != nil {
		filtered := results[:0]
		for _, analysis := range results {
			if analysis.CreatedAt.Before(cursor.CreatedAt) || (analysis.CreatedAt.Equal(cursor.CreatedAt) && analysis.ID < cursor.ID) {
				filtered = append(filtered, analysis)
			}
		}
		results = filtered
	}

	if limit > 0 && len(results) > limit {
		results = results[:limit]
		last := results[len(results)-1]
		return results, &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return results, nil, nil
}

// CreatePlanSuperseding demotes any other active plan for the user and
// inserts the new plan, under one lock acquisition.
func (r *Repository) CreatePlanSuperseding(ctx context.Context, tenantID string, plan domain.ExercisePlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, existing := range r.plans {
		if k == key(tenantID, existing.ID) && existing.UserID == plan.UserID && existing.Status == domain.PlanStatusActive && existing.ID != plan.ID {
			existing.Supersede(plan.CreatedAt)
			r.plans[k] = existing
		}
	}

	r.plans[key(tenantID, plan.ID)] = plan
	return nil
}

// GetPlan retrieves a plan by id, or nil.
func (r *Repository) GetPlan(ctx context.Context, tenantID, planID string) (*domain.ExercisePlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if plan, ok := r.plans[key(tenantID, planID)]; ok {
		copied := clonePlan(plan)
		return &copied, nil
	}
	return nil, nil
}

// FindActivePlan returns the user's most recent active plan, or nil.
func (r *Repository) FindActivePlan(ctx context.Context, tenantID, userID string) (*domain.ExercisePlan, error) {
	return r.findLatest(tenantID, userID, func(p domain.ExercisePlan) bool {
		return p.Status == domain.PlanStatusActive
	})
}

// FindRetestCandidate returns the user's most recent completed plan whose
// retest is unlocked but not yet consumed, or nil.
func (r *Repository) FindRetestCandidate(ctx context.Context, tenantID, userID string) (*domain.ExercisePlan, error) {
	return r.findLatest(tenantID, userID, func(p domain.ExercisePlan) bool {
		return p.Status == domain.PlanStatusCompleted && p.CanRetestGait && !p.GaitRetested
	})
}

func (r *Repository) findLatest(tenantID, userID string, match func(domain.ExercisePlan) bool) (*domain.ExercisePlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *domain.ExercisePlan
	for k, plan := range r.plans {
		if k != key(tenantID, plan.ID) || plan.UserID != userID || !match(plan) {
			continue
		}
		if latest == nil || plan.CreatedAt.After(latest.CreatedAt) {
			copied := clonePlan(plan)
			latest = &copied
		}
	}
	return latest, nil
}

// UpdatePlan applies mutate to the stored plan under the repository lock.
// If mutate errors nothing is written; the loaded plan is still returned.
func (r *Repository) UpdatePlan(ctx context.Context, tenantID, planID string, mutate func(*domain.ExercisePlan) error) (*domain.ExercisePlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.plans[key(tenantID, planID)]
	if !ok {
		return nil, domain.ErrPlanNotFound
	}

	plan := clonePlan(stored)
	if err := mutate(&plan); err != nil {
		unchanged := clonePlan(stored)
		return &unchanged, err
	}

	r.plans[key(tenantID, planID)] = plan
	result := clonePlan(plan)
	return &result, nil
}

// clonePlan deep-copies the assignment list so callers and aborted
// mutations cannot reach the stored slice.
func clonePlan(p domain.ExercisePlan) domain.ExercisePlan {
	out := p
	out.Assignments = make([]domain.ExerciseAssignment, len(p.Assignments))
	copy(out.Assignments, p.Assignments)
	return out
}

func key(tenantID, id string) string {
	return tenantID + "/" + id
}
