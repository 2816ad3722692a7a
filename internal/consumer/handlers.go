package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/gait/internal/events"
)

// EventLogHandler appends consumed events to Postgres for downstream auditing.
type EventLogHandler struct {
	pool *pgxpool.Pool
}

// NewEventLogHandler constructs a handler backed by the provided pool.
func NewEventLogHandler(pool *pgxpool.Pool) *EventLogHandler {
	return &EventLogHandler{pool: pool}
}

// Handle stores the event payload in the gait_event_log table.
func (h *EventLogHandler) Handle(ctx context.Context, msg Message) error {
	conn, err := h.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx,
		`INSERT INTO gait_event_log (event_type, tenant_id, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		msg.EventType,
		msg.TenantID,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		msg.Timestamp,
	)
	return err
}

// ActivityProjectionHandler maintains a per-user rollup of analysis and plan
// activity so clinician dashboards avoid scanning the event log.
type ActivityProjectionHandler struct {
	pool *pgxpool.Pool
}

// NewActivityProjectionHandler constructs a projection handler.
func NewActivityProjectionHandler(pool *pgxpool.Pool) *ActivityProjectionHandler {
	return &ActivityProjectionHandler{pool: pool}
}

// Handle applies one event to the gait_user_activity projection. Unknown event
// types are ignored so new producers never wedge the consumer.
func (h *ActivityProjectionHandler) Handle(ctx context.Context, msg Message) error {
	switch msg.EventType {
	case "gait.analysis.created":
		var payload events.AnalysisCreated
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		return h.exec(ctx, msg.TenantID,
			`INSERT INTO gait_user_activity (tenant_id, user_id, analyses_total, last_analysis_at, updated_at)
             VALUES ($1, $2, 1, $3, NOW())
             ON CONFLICT (tenant_id, user_id) DO UPDATE
             SET analyses_total = gait_user_activity.analyses_total + 1,
                 last_analysis_at = EXCLUDED.last_analysis_at,
                 updated_at = NOW()`,
			msg.TenantID, payload.UserID, payload.CreatedAt)

	case "gait.plan.created":
		var payload events.PlanCreated
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		return h.exec(ctx, msg.TenantID,
			`INSERT INTO gait_user_activity (tenant_id, user_id, plans_total, active_plan_id, updated_at)
             VALUES ($1, $2, 1, $3, NOW())
             ON CONFLICT (tenant_id, user_id) DO UPDATE
             SET plans_total = gait_user_activity.plans_total + 1,
                 active_plan_id = EXCLUDED.active_plan_id,
                 updated_at = NOW()`,
			msg.TenantID, payload.UserID, payload.PlanID)

	case "gait.plan.state_changed":
		var payload events.PlanStateChanged
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		if payload.Status != "completed" {
			return nil
		}
		return h.exec(ctx, msg.TenantID,
			`UPDATE gait_user_activity
             SET plans_completed = plans_completed + 1,
                 active_plan_id = NULL,
                 updated_at = NOW()
             WHERE tenant_id = $1 AND user_id = $2`,
			msg.TenantID, payload.UserID)
	}

	return nil
}

func (h *ActivityProjectionHandler) exec(ctx context.Context, tenantID, query string, args ...any) error {
	conn, err := h.pool.Acquire(ctx)
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
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MultiHandler fans one message out to several handlers in order. The first
// error stops the chain so the message is retried as a whole.
type MultiHandler []Handler

// Handle dispatches to each wrapped handler.
func (m MultiHandler) Handle(ctx context.Context, msg Message) error {
	for _, h := range m {
		if err := h.Handle(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}
