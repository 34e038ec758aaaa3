package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	sweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matk_sweeps_total",
			Help: "Total number of finished sweeps by final status.",
		},
		[]string{"status"},
	)

	samplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matk_samples_total",
			Help: "Total number of evaluated samples by outcome.",
		},
		[]string{"status"},
	)

	activeWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "matk_active_workers",
			Help: "Number of workers currently inside a model invocation.",
		},
	)

	sampleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matk_sample_duration_seconds",
			Help:    "Model invocation duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(sweepsTotal)
	prometheus.MustRegister(samplesTotal)
	prometheus.MustRegister(activeWorkers)
	prometheus.MustRegister(sampleDuration)
}
