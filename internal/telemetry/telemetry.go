package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Telemetry holds the service counters exposed on /metrics.
type Telemetry struct {
	SessionsStarted    prometheus.Counter
	SessionsConcluded  prometheus.Counter
	TurnsGenerated     prometheus.Counter
	TurnFailures       prometheus.Counter
	InsightsExtracted  prometheus.Counter
	ExtractionFailures prometheus.Counter
}

// New registers the counters with the given registerer; pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Telemetry {
	t := &Telemetry{
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "insightloop_sessions_started_total",
			Help: "Interview sessions created.",
		}),
		SessionsConcluded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "insightloop_sessions_concluded_total",
			Help: "Interview sessions transitioned to concluded.",
		}),
		TurnsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "insightloop_turns_generated_total",
			Help: "Agent turns produced by the turn policy.",
		}),
		TurnFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "insightloop_turn_failures_total",
			Help: "Turn policy calls that failed and fell back to the recovery message.",
		}),
		InsightsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "insightloop_insights_extracted_total",
			Help: "Insight records successfully extracted and persisted.",
		}),
		ExtractionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "insightloop_extraction_failures_total",
			Help: "Insight extraction attempts rejected or failed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			t.SessionsStarted, t.SessionsConcluded,
			t.TurnsGenerated, t.TurnFailures,
			t.InsightsExtracted, t.ExtractionFailures,
		)
	}
	return t
}
