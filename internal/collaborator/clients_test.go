package collaborator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/gait/internal/domain"
)

func TestMetricsClientAnalyze(t *testing.T) {
	var gotPath string
	var gotSession domain.WalkingSession

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotSession))
		json.NewEncoder(w).Encode(domain.MetricsResult{
			Metrics: domain.GaitMetrics{
				StepCount:       26,
				DurationSeconds: 38.2,
				Cadence:         101.5,
			},
			DataQuality: "good",
			SensorsUsed: []string{"accelerometer"},
		})
	}))
	defer server.Close()

	client := NewMetricsClient(server.URL, 5*time.Second)
	result, err := client.Analyze(context.Background(), domain.WalkingSession{
		SessionID:      "session-1",
		UserID:         "user-1",
		PedometerSteps: 26,
	})
	require.NoError(t, err)

	require.Equal(t, "/v1/analyze", gotPath)
	require.Equal(t, "session-1", gotSession.SessionID)
	require.Equal(t, 26, result.Metrics.StepCount)
	require.Equal(t, "good", result.DataQuality)
}

func TestMetricsClientErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine overloaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewMetricsClient(server.URL, 5*time.Second)
	_, err := client.Analyze(context.Background(), domain.WalkingSession{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "metrics analyzer")
}

func TestDetectorClientDetect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/detect", r.URL.Path)
		problems := []domain.DetectedProblem{
			{Problem: "low_cadence", Severity: domain.SeverityModerate, Value: 80},
		}
		json.NewEncoder(w).Encode(domain.DetectionResult{
			Problems: problems,
			Summary:  domain.BuildProblemSummary(problems),
		})
	}))
	defer server.Close()

	client := NewDetectorClient(server.URL, 5*time.Second)
	result, err := client.Detect(context.Background(), domain.GaitMetrics{Cadence: 80})
	require.NoError(t, err)
	require.Len(t, result.Problems, 1)
	require.Equal(t, "moderate", result.Summary.RiskLevel)
}

func TestDetectorClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewDetectorClient(server.URL, 50*time.Millisecond)
	_, err := client.Detect(context.Background(), domain.GaitMetrics{})
	require.Error(t, err)
}

func TestRecommenderClientRecommend(t *testing.T) {
	var gotBody recommendRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/recommend", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(domain.Recommendation{
			Groups: []domain.ProblemExercises{
				{
					Problem: "low_cadence",
					Exercises: []domain.RecommendedExercise{
						{ExerciseID: "ex-1", Name: "Metronome walking"},
					},
				},
			},
			EstimatedTimeline: "4-6 weeks",
		})
	}))
	defer server.Close()

	client := NewRecommenderClient(server.URL, 5*time.Second)
	problems := []domain.DetectedProblem{{Problem: "low_cadence", Severity: domain.SeverityModerate}}
	profile := domain.UserProfile{}.WithDefaults()

	result, err := client.Recommend(context.Background(), problems, profile)
	require.NoError(t, err)

	require.Len(t, gotBody.Problems, 1)
	require.Equal(t, "beginner", gotBody.Profile.FitnessLevel)
	require.Len(t, result.Groups, 1)
	require.Equal(t, "4-6 weeks", result.EstimatedTimeline)
}
