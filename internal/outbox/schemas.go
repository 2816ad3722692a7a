package outbox

const analysisCreatedSchema = `{
  "type": "object",
  "title": "GaitAnalysisCreated",
  "properties": {
    "analysis_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "session_id": {"type": "string"},
    "step_count": {"type": "integer"},
    "data_quality": {"type": "string"},
    "problem_count": {"type": "integer"},
    "risk_level": {"type": "string"},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["analysis_id", "tenant_id", "user_id", "session_id", "step_count", "problem_count", "created_at"],
  "additionalProperties": false
}`

const planCreatedSchema = `{
  "type": "object",
  "title": "ExercisePlanCreated",
  "properties": {
    "plan_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "analysis_id": {"type": "string"},
    "total_exercises": {"type": "integer"},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["plan_id", "tenant_id", "user_id", "analysis_id", "total_exercises", "created_at"],
  "additionalProperties": false
}`

const planStateChangedSchema = `{
  "type": "object",
  "title": "ExercisePlanStateChanged",
  "properties": {
    "plan_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "status": {"type": "string"},
    "completion_percentage": {"type": "number"},
    "reason": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["plan_id", "tenant_id", "user_id", "status", "occurred_at"],
  "additionalProperties": false
}`
