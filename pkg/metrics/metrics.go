package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	callsync = "callsync"

	// Upload metrics
	uploadsTotal = "uploads_total"

	// Recording search metrics
	recordingSearchesTotal = "recording_searches_total"

	// Labels
	uploadKindLabel    = "kind"
	uploadResultLabel  = "result"
	searchOutcomeLabel = "outcome"
)

var uploadsTotalLabels = []string{
	uploadKindLabel,
	uploadResultLabel,
}

var recordingSearchesTotalLabels = []string{
	searchOutcomeLabel,
}

/**
* Metrics definition
**/
var uploadsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: callsync,
		Name:      uploadsTotal,
		Help:      "number of upload attempts that resolved, by job kind and result",
	},
	uploadsTotalLabels,
)

var recordingSearchesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: callsync,
		Name:      recordingSearchesTotal,
		Help:      "number of recording searches that finished, by outcome",
	},
	recordingSearchesTotalLabels,
)

func IncreaseUploadsTotalMetric(kind, result string) {
	labels := prometheus.Labels{
		uploadKindLabel:   kind,
		uploadResultLabel: result,
	}
	uploadsTotalMetric.With(labels).Inc()
}

func IncreaseRecordingSearchesTotalMetric(outcome string) {
	labels := prometheus.Labels{
		searchOutcomeLabel: outcome,
	}
	recordingSearchesTotalMetric.With(labels).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(uploadsTotalMetric)
	prometheus.MustRegister(recordingSearchesTotalMetric)
}
