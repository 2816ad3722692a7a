package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/gait/internal/domain"
	"example.com/gait/internal/events"
	"example.com/gait/internal/observability"
)

// Repository provides Postgres-backed persistence for gait analyses,
// exercise plans, and outbox events. Analyses and plans are stored as jsonb
// documents alongside the columns the queries filter on.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateAnalysis persists the analysis and records the creation event inside
// a single transaction.
func (r *Repository) CreateAnalysis(ctx context.Context, tenantID string, analysis domain.GaitAnalysis) error {
	document, err := json.Marshal(analysis)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}

	const insertAnalysis = `INSERT INTO gait_analyses (analysis_id, tenant_id, user_id, session_id, created_at, document)
        VALUES ($1,$2,$3,$4,$5,$6)`

	_, err = tx.Exec(ctx, insertAnalysis,
		analysis.ID,
		tenantID,
		analysis.UserID,
		analysis.SessionID,
		analysis.CreatedAt,
		document,
	)
	if err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, tenantID, "gait_analysis", analysis.ID, "gait.analysis.created", tenantID+":"+analysis.UserID, events.AnalysisCreated{
		AnalysisID:   analysis.ID,
		TenantID:     tenantID,
		UserID:       analysis.UserID,
		SessionID:    analysis.SessionID,
		StepCount:    analysis.Metrics.StepCount,
		DataQuality:  analysis.DataQuality,
		ProblemCount: analysis.ProblemSummary.TotalProblems,
		RiskLevel:    analysis.ProblemSummary.RiskLevel,
		CreatedAt:    analysis.CreatedAt,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordAnalysisPersisted(analysis.CreatedAt)
	return nil
}

// GetAnalysis retrieves an analysis by id, or nil when absent.
func (r *Repository) GetAnalysis(ctx context.Context, tenantID, analysisID string) (*domain.GaitAnalysis, error) {
	const query = `SELECT document FROM gait_analyses WHERE tenant_id=$1 AND analysis_id=$2`

	var document []byte
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, query, tenantID, analysisID).Scan(&document)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var analysis domain.GaitAnalysis
	if err := json.Unmarshal(document, &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

// ListAnalysesByUser returns a user's analyses ordered most recent first.
func (r *Repository) ListAnalysesByUser(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.GaitAnalysis, *domain.Cursor, error) {
	args := []interface{}{tenantID, userID, limit}
	query := `SELECT document FROM gait_analyses WHERE tenant_id=$1 AND user_id=$2`
	if cursor != nil {
		query += ` AND (created_at, analysis_id) < ($4, $5)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	query += ` ORDER BY created_at DESC, analysis_id DESC LIMIT $3`

	results := make([]domain.GaitAnalysis, 0, limit)
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var document []byte
			if err := rows.Scan(&document); err != nil {
				return err
			}
			var analysis domain.GaitAnalysis
			if err := json.Unmarshal(document, &analysis); err != nil {
				return err
			}
			results = append(results, analysis)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit && limit > 0 {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, nextCursor, nil
}

// CreatePlanSuperseding demotes any other active plan for the plan's user
// and inserts the new plan, all inside one transaction so a half-written
// state is never visible.
func (r *Repository) CreatePlanSuperseding(ctx context.Context, tenantID string, plan domain.ExercisePlan) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}

	const selectActive = `SELECT document FROM exercise_plans
        WHERE tenant_id=$1 AND user_id=$2 AND status='active' AND plan_id<>$3
        FOR UPDATE`

	rows, err := tx.Query(ctx, selectActive, tenantID, plan.UserID, plan.ID)
	if err != nil {
		return err
	}
	superseded := make([]domain.ExercisePlan, 0, 1)
	for rows.Next() {
		var document []byte
		if err = rows.Scan(&document); err != nil {
			rows.Close()
			return err
		}
		var existing domain.ExercisePlan
		if err = json.Unmarshal(document, &existing); err != nil {
			rows.Close()
			return err
		}
		superseded = append(superseded, existing)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return err
	}

	for i := range superseded {
		superseded[i].Supersede(plan.CreatedAt)
		if err = savePlan(ctx, tx, tenantID, superseded[i]); err != nil {
			return err
		}
		if err = insertOutbox(ctx, tx, tenantID, "exercise_plan", superseded[i].ID, "gait.plan.state_changed", superseded[i].ID, events.PlanStateChanged{
			PlanID:               superseded[i].ID,
			TenantID:             tenantID,
			UserID:               superseded[i].UserID,
			Status:               string(superseded[i].Status),
			CompletionPercentage: superseded[i].CompletionPercentage,
			Reason:               "superseded",
			OccurredAt:           plan.CreatedAt,
		}); err != nil {
			return err
		}
	}

	if err = insertPlan(ctx, tx, tenantID, plan); err != nil {
		return err
	}
	if err = insertOutbox(ctx, tx, tenantID, "exercise_plan", plan.ID, "gait.plan.created", tenantID+":"+plan.UserID, events.PlanCreated{
		PlanID:         plan.ID,
		TenantID:       tenantID,
		UserID:         plan.UserID,
		AnalysisID:     plan.AnalysisID,
		TotalExercises: plan.TotalExercises,
		CreatedAt:      plan.CreatedAt,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordPlanCreated()
	return nil
}

// GetPlan retrieves a plan by id, or nil when absent.
func (r *Repository) GetPlan(ctx context.Context, tenantID, planID string) (*domain.ExercisePlan, error) {
	const query = `SELECT document FROM exercise_plans WHERE tenant_id=$1 AND plan_id=$2`

	var document []byte
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, query, tenantID, planID).Scan(&document)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var plan domain.ExercisePlan
	if err := json.Unmarshal(document, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// FindActivePlan returns the user's most recent active plan, or nil.
func (r *Repository) FindActivePlan(ctx context.Context, tenantID, userID string) (*domain.ExercisePlan, error) {
	const query = `SELECT document FROM exercise_plans
        WHERE tenant_id=$1 AND user_id=$2 AND status='active'
        ORDER BY created_at DESC LIMIT 1`
	return r.findPlan(ctx, tenantID, query, tenantID, userID)
}

// FindRetestCandidate returns the user's most recent completed plan whose
// unlocked retest has not been consumed, or nil.
func (r *Repository) FindRetestCandidate(ctx context.Context, tenantID, userID string) (*domain.ExercisePlan, error) {
	const query = `SELECT document FROM exercise_plans
        WHERE tenant_id=$1 AND user_id=$2 AND status='completed'
          AND can_retest_gait AND NOT gait_retested
        ORDER BY created_at DESC LIMIT 1`
	return r.findPlan(ctx, tenantID, query, tenantID, userID)
}

func (r *Repository) findPlan(ctx context.Context, tenantID, query string, args ...interface{}) (*domain.ExercisePlan, error) {
	var document []byte
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, query, args...).Scan(&document)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var plan domain.ExercisePlan
	if err := json.Unmarshal(document, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// UpdatePlan applies mutate to the plan row under a row lock, so concurrent
// completion taps serialize on the store rather than on application state.
// When mutate errors nothing is written and the loaded plan is returned.
func (r *Repository) UpdatePlan(ctx context.Context, tenantID, planID string, mutate func(*domain.ExercisePlan) error) (*domain.ExercisePlan, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	const query = `SELECT document FROM exercise_plans WHERE tenant_id=$1 AND plan_id=$2 FOR UPDATE`
	var document []byte
	if err := tx.QueryRow(ctx, query, tenantID, planID).Scan(&document); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, err
	}

	var plan domain.ExercisePlan
	if err := json.Unmarshal(document, &plan); err != nil {
		return nil, err
	}
	previousStatus := plan.Status
	previouslyRetested := plan.GaitRetested

	if mutateErr := mutate(&plan); mutateErr != nil {
		// Nothing is written; hand back the stored state.
		var loaded domain.ExercisePlan
		if err := json.Unmarshal(document, &loaded); err != nil {
			return nil, mutateErr
		}
		return &loaded, mutateErr
	}

	if err := savePlan(ctx, tx, tenantID, plan); err != nil {
		return nil, err
	}

	if reason, changed := planStateChange(previousStatus, previouslyRetested, plan); changed {
		if err := insertOutbox(ctx, tx, tenantID, "exercise_plan", plan.ID, "gait.plan.state_changed", plan.ID, events.PlanStateChanged{
			PlanID:               plan.ID,
			TenantID:             tenantID,
			UserID:               plan.UserID,
			Status:               string(plan.Status),
			CompletionPercentage: plan.CompletionPercentage,
			Reason:               reason,
			OccurredAt:           plan.UpdatedAt,
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if previousStatus == domain.PlanStatusActive && plan.Status == domain.PlanStatusCompleted && plan.SupersededAt == nil {
		observability.RecordPlanCompleted()
	}
	return &plan, nil
}

// planStateChange decides whether a plan mutation warrants a state_changed
// event and with which reason. Retest consumption flips GaitRetested without
// touching Status, so it is detected separately from lifecycle transitions.
func planStateChange(prevStatus domain.PlanStatus, prevRetested bool, plan domain.ExercisePlan) (string, bool) {
	switch {
	case plan.GaitRetested && !prevRetested:
		return "retested", true
	case plan.Status == prevStatus:
		return "", false
	case plan.Status == domain.PlanStatusActive:
		return "completion_undone", true
	default:
		return "completion", true
	}
}

func insertPlan(ctx context.Context, tx pgx.Tx, tenantID string, plan domain.ExercisePlan) error {
	document, err := json.Marshal(plan)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO exercise_plans (plan_id, tenant_id, user_id, analysis_id, status, can_retest_gait, gait_retested, created_at, updated_at, document)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	_, err = tx.Exec(ctx, stmt,
		plan.ID,
		tenantID,
		plan.UserID,
		plan.AnalysisID,
		plan.Status,
		plan.CanRetestGait,
		plan.GaitRetested,
		plan.CreatedAt,
		plan.UpdatedAt,
		document,
	)
	return err
}

func savePlan(ctx context.Context, tx pgx.Tx, tenantID string, plan domain.ExercisePlan) error {
	document, err := json.Marshal(plan)
	if err != nil {
		return err
	}

	const stmt = `UPDATE exercise_plans
        SET status=$3, can_retest_gait=$4, gait_retested=$5, updated_at=$6, document=$7
        WHERE tenant_id=$1 AND plan_id=$2`

	_, err = tx.Exec(ctx, stmt,
		tenantID,
		plan.ID,
		plan.Status,
		plan.CanRetestGait,
		plan.GaitRetested,
		plan.UpdatedAt,
		document,
	)
	return err
}

// inTenantTx runs fn inside a transaction with the tenant configured for
// row-level security.
func (r *Repository) inTenantTx(ctx context.Context, tenantID string, fn func(pgx.Tx) error) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	"gait.analysis.created": {
		Topic:         "gait_analysis_events",
		SchemaSubject: "gait_analysis_events-value",
	},
	"gait.plan.created": {
		Topic:         "gait_plan_events",
		SchemaSubject: "gait_plan_events-value",
	},
	"gait.plan.state_changed": {
		Topic:         "gait_plan_events",
		SchemaSubject: "gait_plan_events-value",
	},
}

func insertOutbox(ctx context.Context, tx pgx.Tx, tenantID, aggregateType, aggregateID, eventType, partitionKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s:%d", aggregateID, eventType, time.Now().UnixNano())

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		tenantID,
		aggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}
