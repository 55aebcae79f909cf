package listing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	responsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontpage_listing_responses_total",
		Help: "Listing responses by the path that produced them",
	}, []string{"source"})

	responseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "frontpage_listing_response_duration_seconds",
		Help:    "Time from request start to the listing response being written",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 20},
	})

	cascadeRank = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontpage_listing_cascade_hits_total",
		Help: "Strategy that satisfied the cascade",
	}, []string{"strategy"})

	attemptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frontpage_listing_attempt_duration_seconds",
		Help:    "Duration of a single cascade find call",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 3, 5},
	}, []string{"strategy", "outcome"})

	lateCompletions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frontpage_listing_late_completions_total",
		Help: "Pipeline runs that finished after another path had already responded",
	})

	normalizeStubs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frontpage_listing_stub_records_total",
		Help: "Documents replaced by a stub record during normalization",
	})
)
