package worker

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Общий реестр для всех метрик этого воркера
	registry = prometheus.NewRegistry()

	// Мы используем promauto.With(registry) чтобы метрики регистрировались в нашем
	// локальном реестре, а не в глобальном prometheus.DefaultRegistry
	tasksReceived = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "vibedoc_worker_tasks_received_total",
			Help: "Total number of tasks received by the plan generation worker.",
		},
	)
	tasksFailed = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibedoc_worker_tasks_failed_total",
			Help: "Total number of tasks failed, partitioned by failure reason.",
		},
		[]string{"reason"},
	)
	tasksSucceeded = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "vibedoc_worker_tasks_succeeded_total",
			Help: "Total number of tasks successfully processed.",
		},
	)
	taskDuration = promauto.With(registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vibedoc_worker_task_duration_seconds",
			Help:    "Histogram of full task processing durations.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s .. ~512s
		},
	)
	qualityScores = promauto.With(registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vibedoc_worker_plan_quality_score",
			Help:    "Histogram of quality scores of generated plans.",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		},
	)
)

func MetricsIncrementTasksReceived()            { tasksReceived.Inc() }
func MetricsIncrementTasksSucceeded()           { tasksSucceeded.Inc() }
func MetricsIncrementTaskFailed(reason string)  { tasksFailed.WithLabelValues(reason).Inc() }
func MetricsRecordTaskDuration(d time.Duration) { taskDuration.Observe(d.Seconds()) }
func MetricsRecordQualityScore(score int)       { qualityScores.Observe(float64(score)) }

// metricsMux собирает обработчики служебного порта воркера:
// /metrics для Prometheus и /health для liveness-проб контейнера.
func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// ServeMetrics поднимает HTTP-сервер с /metrics и /health.
// Блокирует, вызывать в отдельной горутине.
func ServeMetrics(port string) error {
	log.Printf("[Metrics] Служебный сервер воркера слушает на :%s (/metrics, /health)", port)
	return http.ListenAndServe(":"+port, metricsMux())
}
