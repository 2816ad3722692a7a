package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sessionsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gait_service",
		Subsystem: "sessions",
		Name:      "submissions_total",
		Help:      "Walking-session submissions by outcome (accepted, rejected, gated, unavailable).",
	}, []string{"outcome"})

	collaboratorFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gait_service",
		Subsystem: "collaborators",
		Name:      "failures_total",
		Help:      "Collaborator call failures by service.",
	}, []string{"collaborator"})

	plansCreatedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gait_service",
		Subsystem: "plans",
		Name:      "created_total",
		Help:      "Exercise plans generated.",
	})

	plansCompletedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gait_service",
		Subsystem: "plans",
		Name:      "completed_total",
		Help:      "Exercise plans that reached full completion.",
	})

	analysisPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gait_service",
		Subsystem: "persistence",
		Name:      "last_analysis_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent gait analysis persisted.",
	})

	persistFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gait_service",
		Subsystem: "persistence",
		Name:      "analysis_failures_total",
		Help:      "Analysis persistence failures tolerated by the degrade path.",
	})
)

func init() {
	prometheus.MustRegister(sessionsCounter, collaboratorFailures, plansCreatedCounter, plansCompletedCounter, analysisPersistGauge, persistFailureCounter)
}

// RecordSubmission counts one session submission outcome.
func RecordSubmission(outcome string) {
	sessionsCounter.WithLabelValues(outcome).Inc()
}

// RecordCollaboratorFailure counts a failed collaborator call.
func RecordCollaboratorFailure(collaborator string) {
	collaboratorFailures.WithLabelValues(collaborator).Inc()
}

// RecordPlanCreated counts a generated plan.
func RecordPlanCreated() {
	plansCreatedCounter.Inc()
}

// RecordPlanCompleted counts a plan reaching 100% completion.
func RecordPlanCompleted() {
	plansCompletedCounter.Inc()
}

// RecordAnalysisPersisted updates the persistence watermark gauge.
func RecordAnalysisPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	analysisPersistGauge.Set(float64(ts.Unix()))
}

// RecordAnalysisPersistFailure counts a tolerated persistence failure.
func RecordAnalysisPersistFailure() {
	persistFailureCounter.Inc()
}
