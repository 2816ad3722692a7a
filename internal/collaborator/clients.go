// Package collaborator provides HTTP clients for the external analysis
// services the orchestrator coordinates: the gait metrics engine, the
// clinical problem detector, and the exercise recommender. Each client
// carries its own request timeout; callers decide whether a failure aborts
// or degrades.
package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"example.com/gait/internal/domain"
	"example.com/gait/internal/observability"
)

// MetricsClient calls the gait metrics analysis engine.
type MetricsClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewMetricsClient constructs a client. Metrics analysis is the expensive,
// required leg of the flow, so its timeout is generous (30s by default).
func NewMetricsClient(baseURL string, timeout time.Duration) *MetricsClient {
	return &MetricsClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Analyze submits the raw sensor bundle and returns the computed metrics.
func (c *MetricsClient) Analyze(ctx context.Context, session domain.WalkingSession) (*domain.MetricsResult, error) {
	var result domain.MetricsResult
	if err := postJSON(ctx, c.httpClient, c.baseURL+"/v1/analyze", session, &result); err != nil {
		observability.RecordCollaboratorFailure("metrics_analyzer")
		return nil, fmt.Errorf("metrics analyzer: %w", err)
	}
	return &result, nil
}

// DetectorClient calls the clinical problem detector.
type DetectorClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDetectorClient constructs a client. Detection is best-effort, so the
// timeout is short (5s by default) to bound the degraded path.
func NewDetectorClient(baseURL string, timeout time.Duration) *DetectorClient {
	return &DetectorClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Detect interprets a metrics record clinically.
func (c *DetectorClient) Detect(ctx context.Context, metrics domain.GaitMetrics) (*domain.DetectionResult, error) {
	var result domain.DetectionResult
	if err := postJSON(ctx, c.httpClient, c.baseURL+"/v1/detect", metrics, &result); err != nil {
		observability.RecordCollaboratorFailure("problem_detector")
		return nil, fmt.Errorf("problem detector: %w", err)
	}
	return &result, nil
}

// RecommenderClient calls the exercise recommendation engine.
type RecommenderClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRecommenderClient constructs a client (10s timeout by default).
func NewRecommenderClient(baseURL string, timeout time.Duration) *RecommenderClient {
	return &RecommenderClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type recommendRequest struct {
	Problems []domain.DetectedProblem `json:"problems"`
	Profile  domain.UserProfile       `json:"profile"`
}

// Recommend builds a personalized exercise set from detected problems.
func (c *RecommenderClient) Recommend(ctx context.Context, problems []domain.DetectedProblem, profile domain.UserProfile) (*domain.Recommendation, error) {
	var result domain.Recommendation
	req := recommendRequest{Problems: problems, Profile: profile}
	if err := postJSON(ctx, c.httpClient, c.baseURL+"/v1/recommend", req, &result); err != nil {
		observability.RecordCollaboratorFailure("exercise_recommender")
		return nil, fmt.Errorf("exercise recommender: %w", err)
	}
	return &result, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, detail)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
