package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	jobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthstat_jobs_submitted_total",
			Help: "Total number of jobs accepted by the worker pool.",
		},
		[]string{"kind"},
	)

	jobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthstat_jobs_finished_total",
			Help: "Total number of jobs that reached a terminal status.",
		},
		[]string{"kind", "status"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthstat_job_duration_seconds",
			Help:    "Time from claim to terminal status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	jobsQueued = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "healthstat_jobs_queued",
		Help: "Jobs waiting in the queue.",
	})

	workersBusy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "healthstat_workers_busy",
		Help: "Workers currently running a job.",
	})

	persistFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "healthstat_result_persist_failures_total",
		Help: "Terminal outcomes that could not be written to the result store.",
	})
)

func init() {
	prometheus.MustRegister(jobsSubmittedTotal)
	prometheus.MustRegister(jobsFinishedTotal)
	prometheus.MustRegister(jobDuration)
	prometheus.MustRegister(jobsQueued)
	prometheus.MustRegister(workersBusy)
	prometheus.MustRegister(persistFailuresTotal)
}
