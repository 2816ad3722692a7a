package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/gait/internal/domain"
)

const tenant = "clinic-1"

func testPlan(id, userID string, createdAt time.Time, exercises int) domain.ExercisePlan {
	assignments := make([]domain.ExerciseAssignment, 0, exercises)
	for i := 0; i < exercises; i++ {
		assignments = append(assignments, domain.ExerciseAssignment{
			ExerciseID: fmt.Sprintf("ex-%d", i+1),
			Name:       fmt.Sprintf("Exercise %d", i+1),
		})
	}
	plan := domain.ExercisePlan{
		ID:          id,
		UserID:      userID,
		AnalysisID:  "analysis-" + id,
		Assignments: assignments,
		Status:      domain.PlanStatusActive,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	plan.Recompute(createdAt)
	return plan
}

func TestCreatePlanSupersedingDemotesActive(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	base := time.Date(2026, time.March, 12, 8, 0, 0, 0, time.UTC)

	first := testPlan("plan-1", "user-1", base, 2)
	require.NoError(t, repo.CreatePlanSuperseding(ctx, tenant, first))

	second := testPlan("plan-2", "user-1", base.Add(time.Hour), 3)
	require.NoError(t, repo.CreatePlanSuperseding(ctx, tenant, second))

	active, err := repo.FindActivePlan(ctx, tenant, "user-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, "plan-2", active.ID)

	old, err := repo.GetPlan(ctx, tenant, "plan-1")
	require.NoError(t, err)
	require.Equal(t, domain.PlanStatusCompleted, old.Status)
	require.NotNil(t, old.SupersededAt)
}

func TestCreatePlanSupersedingScopesByUserAndTenant(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	base := time.Date(2026, time.March, 12, 8, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreatePlanSuperseding(ctx, tenant, testPlan("plan-1", "user-1", base, 1)))
	require.NoError(t, repo.CreatePlanSuperseding(ctx, "clinic-2", testPlan("plan-2", "user-1", base, 1)))
	require.NoError(t, repo.CreatePlanSuperseding(ctx, tenant, testPlan("plan-3", "user-2", base, 1)))

	// Plans for other tenants and users stay active.
	plan, err := repo.FindActivePlan(ctx, tenant, "user-1")
	require.NoError(t, err)
	require.Equal(t, "plan-1", plan.ID)

	plan, err = repo.FindActivePlan(ctx, "clinic-2", "user-1")
	require.NoError(t, err)
	require.Equal(t, "plan-2", plan.ID)

	plan, err = repo.FindActivePlan(ctx, tenant, "user-2")
	require.NoError(t, err)
	require.Equal(t, "plan-3", plan.ID)
}

func TestUpdatePlanAbortLeavesStoreUntouched(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	base := time.Date(2026, time.March, 12, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreatePlanSuperseding(ctx, tenant, testPlan("plan-1", "user-1", base, 2)))

	boom := errors.New("mutate failed")
	returned, err := repo.UpdatePlan(ctx, tenant, "plan-1", func(p *domain.ExercisePlan) error {
		// Mutate first, then fail: nothing may leak into the store.
		require.NoError(t, p.MarkExercise("ex-1", base.Add(time.Hour), nil, ""))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NotNil(t, returned)
	require.Equal(t, 0, returned.ExercisesCompleted)

	stored, err := repo.GetPlan(ctx, tenant, "plan-1")
	require.NoError(t, err)
	require.Equal(t, 0, stored.ExercisesCompleted)
	require.False(t, stored.Assignments[0].Completed)
}

func TestUpdatePlanUnknownID(t *testing.T) {
	repo := NewRepository()
	_, err := repo.UpdatePlan(context.Background(), tenant, "missing", func(*domain.ExercisePlan) error { return nil })
	require.ErrorIs(t, err, domain.ErrPlanNotFound)
}

func TestGetPlanReturnsIsolatedCopy(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	base := time.Date(2026, time.March, 12, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreatePlanSuperseding(ctx, tenant, testPlan("plan-1", "user-1", base, 1)))

	loaded, err := repo.GetPlan(ctx, tenant, "plan-1")
	require.NoError(t, err)
	loaded.Assignments[0].Completed = true

	fresh, err := repo.GetPlan(ctx, tenant, "plan-1")
	require.NoError(t, err)
	require.False(t, fresh.Assignments[0].Completed)
}

func TestFindRetestCandidate(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	base := time.Date(2026, time.March, 12, 8, 0, 0, 0, time.UTC)

	plan := testPlan("plan-1", "user-1", base, 1)
	plan.MarkAllExercises(base.Add(time.Hour))
	require.NoError(t, repo.CreatePlanSuperseding(ctx, tenant, plan))

	candidate, err := repo.FindRetestCandidate(ctx, tenant, "user-1")
	require.NoError(t, err)
	require.NotNil(t, candidate)
	require.Equal(t, "plan-1", candidate.ID)

	// Once the retest is consumed the candidate disappears.
	_, err = repo.UpdatePlan(ctx, tenant, "plan-1", func(p *domain.ExercisePlan) error {
		p.ConsumeRetest("analysis-2", base.Add(2*time.Hour))
		return nil
	})
	require.NoError(t, err)

	candidate, err = repo.FindRetestCandidate(ctx, tenant, "user-1")
	require.NoError(t, err)
	require.Nil(t, candidate)
}

func TestListAnalysesByUserPagination(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	base := time.Date(2026, time.March, 12, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.CreateAnalysis(ctx, tenant, domain.GaitAnalysis{
			ID:        fmt.Sprintf("analysis-%d", i),
			UserID:    "user-1",
			SessionID: fmt.Sprintf("session-%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	page, next, err := repo.ListAnalysesByUser(ctx, tenant, "user-1", nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotNil(t, next)
	require.Equal(t, "analysis-4", page[0].ID)
	require.Equal(t, "analysis-3", page[1].ID)

	rest, _, err := repo.ListAnalysesByUser(ctx, tenant, "user-1", next, 10)
	require.NoError(t, err)
	require.Len(t, rest, 3)
	require.Equal(t, "analysis-2", rest[0].ID)
}
