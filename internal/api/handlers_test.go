package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"example.com/gait/internal/auth"
	"example.com/gait/internal/domain"
	"example.com/gait/internal/persistence/memory"
)

type fakeAnalyzer struct {
	result *domain.MetricsResult
	err    error
}

func (f *fakeAnalyzer) Analyze(context.Context, domain.WalkingSession) (*domain.MetricsResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeDetector struct {
	result *domain.DetectionResult
}

func (f *fakeDetector) Detect(context.Context, domain.GaitMetrics) (*domain.DetectionResult, error) {
	if f.result == nil {
		return nil, errors.New("detector down")
	}
	return f.result, nil
}

type fakeRecommender struct {
	result *domain.Recommendation
}

func (f *fakeRecommender) Recommend(context.Context, []domain.DetectedProblem, domain.UserProfile) (*domain.Recommendation, error) {
	if f.result == nil {
		return nil, errors.New("recommender down")
	}
	return f.result, nil
}

func goodMetrics() *domain.MetricsResult {
	return &domain.MetricsResult{
		Metrics: domain.GaitMetrics{
			StepCount:       28,
			DurationSeconds: 40,
			Cadence:         98,
		},
		SensorsUsed: []string{"accelerometer"},
		DataQuality: "good",
	}
}

func cadenceProblem() *domain.DetectionResult {
	problems := []domain.DetectedProblem{
		{Problem: "low_cadence", Severity: domain.SeverityModerate, Value: 82},
	}
	return &domain.DetectionResult{Problems: problems, Summary: domain.BuildProblemSummary(problems)}
}

func oneExerciseRecommendation() *domain.Recommendation {
	return &domain.Recommendation{
		Groups: []domain.ProblemExercises{
			{
				Problem: "low_cadence",
				Exercises: []domain.RecommendedExercise{
					{ExerciseID: "ex-1", Name: "Metronome walking"},
				},
			},
		},
	}
}

func testHandler(repo *memory.Repository, analyzer domain.MetricsAnalyzer, detector domain.ProblemDetector, recommender domain.ExerciseRecommender) *Handler {
	service := domain.NewService(repo, repo, analyzer, detector, recommender, domain.NewSessionValidator())
	return NewHandler(service)
}

func writeClaims() *auth.Claims {
	return &auth.Claims{
		Subject:  "tester",
		TenantID: "tenant-1",
		Scopes: map[string]struct{}{
			auth.ScopeGaitWrite: {},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func readClaims() *auth.Claims {
	return &auth.Claims{
		Subject:  "tester",
		TenantID: "tenant-1",
		Scopes: map[string]struct{}{
			auth.ScopeGaitRead: {},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func authed(req *http.Request, claims *auth.Claims) *http.Request {
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func submitBody(t *testing.T, durationSeconds float64, steps int) []byte {
	t.Helper()
	payload := SubmitSessionRequest{
		WalkingSession: domain.WalkingSession{
			SessionID: "session-1",
			UserID:    "user-1",
			Accelerometer: []domain.SensorSample{
				{Timestamp: 0, X: 0.1, Y: 9.8, Z: 0.2},
				{Timestamp: durationSeconds, X: 0.2, Y: 9.7, Z: 0.1},
			},
			PedometerSteps: steps,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return body
}

func TestSubmitSessionSuccess(t *testing.T) {
	repo := memory.NewRepository()
	handler := testHandler(repo, &fakeAnalyzer{result: goodMetrics()}, &fakeDetector{result: cadenceProblem()}, &fakeRecommender{result: oneExerciseRecommendation()})

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(submitBody(t, 40, 28))), writeClaims())
	rr := httptest.NewRecorder()
	handler.sessions(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp SubmitSessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Accepted {
		t.Fatal("expected accepted submission")
	}
	if !resp.Persisted {
		t.Fatal("expected persisted analysis")
	}
	if resp.PlanGeneration != "created" {
		t.Fatalf("expected plan_generation=created got %q", resp.PlanGeneration)
	}
	if resp.Plan == nil || len(resp.Plan.Assignments) != 1 {
		t.Fatalf("expected plan with one assignment, got %+v", resp.Plan)
	}
}

func TestSubmitSessionRejectedReturns422(t *testing.T) {
	repo := memory.NewRepository()
	handler := testHandler(repo, &fakeAnalyzer{result: goodMetrics()}, &fakeDetector{result: cadenceProblem()}, &fakeRecommender{result: oneExerciseRecommendation()})

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(submitBody(t, 12, 28))), writeClaims())
	rr := httptest.NewRecorder()
	handler.sessions(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp RejectionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Rejected || resp.Accepted {
		t.Fatalf("expected rejection payload, got %+v", resp)
	}
	if resp.Recommendation == "" {
		t.Fatal("expected actionable recommendation text")
	}
	if resp.Validation.Duration.Passed {
		t.Fatal("expected duration check to fail")
	}
}

func TestSubmitSessionGatedReturns409(t *testing.T) {
	repo := memory.NewRepository()
	handler := testHandler(repo, &fakeAnalyzer{result: goodMetrics()}, &fakeDetector{result: cadenceProblem()}, &fakeRecommender{result: oneExerciseRecommendation()})

	first := authed(httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(submitBody(t, 40, 28))), writeClaims())
	rr := httptest.NewRecorder()
	handler.sessions(rr, first)
	if rr.Code != http.StatusOK {
		t.Fatalf("seed submission failed: %d %s", rr.Code, rr.Body.String())
	}

	second := authed(httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(submitBody(t, 40, 28))), writeClaims())
	rr = httptest.NewRecorder()
	handler.sessions(rr, second)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", rr.Code, rr.Body.String())
	}

	var decision domain.GateDecision
	if err := json.Unmarshal(rr.Body.Bytes(), &decision); err != nil {
		t.Fatalf("unmarshal decision: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected denied decision")
	}
	if decision.Reason != domain.GateReasonExercisesNotCompleted {
		t.Fatalf("unexpected reason %q", decision.Reason)
	}

	// A freshly created plan has zero progress. The zero values still have to
	// show up in the response body so clients can render the denial.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &raw); err != nil {
		t.Fatalf("unmarshal raw decision: %v", err)
	}
	for _, key := range []string{"exercises_remaining", "completion_percentage"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("missing %q in denial body: %s", key, rr.Body.String())
		}
	}
}

func TestSubmitSessionMetricsDownReturns503(t *testing.T) {
	repo := memory.NewRepository()
	handler := testHandler(repo, &fakeAnalyzer{err: errors.New("dial tcp: refused")}, &fakeDetector{}, &fakeRecommender{})

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(submitBody(t, 40, 28))), writeClaims())
	rr := httptest.NewRecorder()
	handler.sessions(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSubmitSessionRequiresWriteScope(t *testing.T) {
	repo := memory.NewRepository()
	handler := testHandler(repo, &fakeAnalyzer{result: goodMetrics()}, &fakeDetector{}, &fakeRecommender{})

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(submitBody(t, 40, 28))), readClaims())
	rr := httptest.NewRecorder()
	handler.sessions(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSubmitSessionMissingClaims(t *testing.T) {
	repo := memory.NewRepository()
	handler := testHandler(repo, &fakeAnalyzer{result: goodMetrics()}, &fakeDetector{}, &fakeRecommender{})

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(submitBody(t, 40, 28)))
	rr := httptest.NewRecorder()
	handler.sessions(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCanAnalyzeNoPlan(t *testing.T) {
	repo := memory.NewRepository()
	handler := testHandler(repo, &fakeAnalyzer{result: goodMetrics()}, &fakeDetector{}, &fakeRecommender{})

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/gait/can-analyze?user_id=user-1", nil), readClaims())
	rr := httptest.NewRecorder()
	handler.canAnalyze(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var decision domain.GateDecision
	if err := json.Unmarshal(rr.Body.Bytes(), &decision); err != nil {
		t.Fatalf("unmarshal decision: %v", err)
	}
	if !decision.Allowed || decision.Reason != domain.GateReasonNoActivePlan {
		t.Fatalf("unexpected decision %+v", decision)
	}
}

func TestTodaysPlanNotFound(t *testing.T) {
	repo := memory.NewRepository()
	handler := testHandler(repo, &fakeAnalyzer{result: goodMetrics()}, &fakeDetector{}, &fakeRecommender{})

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/plans/today?user_id=user-1", nil), readClaims())
	rr := httptest.NewRecorder()
	handler.todaysPlan(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d: %s", rr.Code, rr.Body.String())
	}
}

func seedPlan(t *testing.T, repo *memory.Repository, exercises ...string) domain.ExercisePlan {
	t.Helper()
	now := time.Date(2026, time.March, 12, 8, 0, 0, 0, time.UTC)
	assignments := make([]domain.ExerciseAssignment, 0, len(exercises))
	for _, id := range exercises {
		assignments = append(assignments, domain.ExerciseAssignment{ExerciseID: id, Name: id})
	}
	plan := domain.ExercisePlan{
		ID:          "plan-1",
		UserID:      "user-1",
		AnalysisID:  "analysis-1",
		Assignments: assignments,
		Status:      domain.PlanStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	plan.Recompute(now)
	if err := repo.CreatePlanSuperseding(context.Background(), "tenant-1", plan); err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return plan
}

func TestCompleteExerciseRoundTrip(t *testing.T) {
	repo := memory.NewRepository()
	handler := testHandler(repo, &fakeAnalyzer{result: goodMetrics()}, &fakeDetector{}, &fakeRecommender{})
	seedPlan(t, repo, "ex-1", "ex-2")

	complete := func(path string) *httptest.ResponseRecorder {
		req := authed(httptest.NewRequest(http.MethodPost, path, nil), writeClaims())
		rr := httptest.NewRecorder()
		handler.planOperations(rr, req)
		return rr
	}

	rr := complete("/v1/plans/plan-1/exercises/ex-1/complete")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp PlanResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Plan.ExercisesCompleted != 1 || resp.AlreadyComplete {
		t.Fatalf("unexpected plan state %+v", resp)
	}

	// Replay is idempotent.
	rr = complete("/v1/plans/plan-1/exercises/ex-1/complete")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay got %d: %s", rr.Code, rr.Body.String())
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.AlreadyComplete || resp.Plan.ExercisesCompleted != 1 {
		t.Fatalf("expected already_complete replay, got %+v", resp)
	}

	// Undo reverses the completion.
	rr = complete("/v1/plans/plan-1/exercises/ex-1/undo")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Plan.ExercisesCompleted != 0 {
		t.Fatalf("expected undo to clear completion, got %+v", resp.Plan)
	}

	// Undoing again conflicts.
	rr = complete("/v1/plans/plan-1/exercises/ex-1/undo")
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCompleteExerciseRatingValidation(t *testing.T) {
	repo := memory.NewRepository()
	handler := testHandler(repo, &fakeAnalyzer{result: goodMetrics()}, &fakeDetector{}, &fakeRecommender{})
	seedPlan(t, repo, "ex-1")

	body := bytes.NewReader([]byte(`{"rating": 9}`))
	req := authed(httptest.NewRequest(http.MethodPost, "/v1/plans/plan-1/exercises/ex-1/complete", body), writeClaims())
	rr := httptest.NewRecorder()
	handler.planOperations(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestMarkAllCompleteFinishesPlan(t *testing.T) {
	repo := memory.NewRepository()
	handler := testHandler(repo, &fakeAnalyzer{result: goodMetrics()}, &fakeDetector{}, &fakeRecommender{})
	seedPlan(t, repo, "ex-1", "ex-2", "ex-3")

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/plans/plan-1/complete-all", nil), writeClaims())
	rr := httptest.NewRecorder()
	handler.planOperations(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp PlanResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Plan.Status != domain.PlanStatusCompleted {
		t.Fatalf("expected completed plan got %q", resp.Plan.Status)
	}
	if !resp.Plan.CanRetestGait {
		t.Fatal("expected retest unlocked")
	}
}

func TestPlanOperationsUnknownPlan(t *testing.T) {
	repo := memory.NewRepository()
	handler := testHandler(repo, &fakeAnalyzer{result: goodMetrics()}, &fakeDetector{}, &fakeRecommender{})

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/plans/missing/complete-all", nil), writeClaims())
	rr := httptest.NewRecorder()
	handler.planOperations(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestPlanOperationsUnknownRoute(t *testing.T) {
	repo := memory.NewRepository()
	handler := testHandler(repo, &fakeAnalyzer{result: goodMetrics()}, &fakeDetector{}, &fakeRecommender{})
	seedPlan(t, repo, "ex-1")

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/plans/plan-1/exercises/ex-1/promote", nil), writeClaims())
	rr := httptest.NewRecorder()
	handler.planOperations(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestListAnalysesRequiresUserID(t *testing.T) {
	repo := memory.NewRepository()
	handler := testHandler(repo, &fakeAnalyzer{result: goodMetrics()}, &fakeDetector{}, &fakeRecommender{})

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/analyses", nil), readClaims())
	rr := httptest.NewRecorder()
	handler.listAnalyses(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAnalysisByIDNotFound(t *testing.T) {
	repo := memory.NewRepository()
	handler := testHandler(repo, &fakeAnalyzer{result: goodMetrics()}, &fakeDetector{}, &fakeRecommender{})

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/analyses/missing", nil), readClaims())
	rr := httptest.NewRecorder()
	handler.analysisByID(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d: %s", rr.Code, rr.Body.String())
	}
}
