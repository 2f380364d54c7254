package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики ядра выполнения. Регистрируются в prometheus.DefaultRegisterer
// и отдаются через promhttp.Handler() на /metrics.
var (
	// ExecutionsTotal — execution, достигшие финального состояния.
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stencil_executions_total",
		Help: "Executions that reached a terminal state",
	}, []string{"state"})

	// TaskRunsTotal — переходы task run в финальное состояние.
	TaskRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stencil_taskruns_total",
		Help: "Task runs that reached a terminal state",
	}, []string{"state"})

	// TemplateResolutionsTotal — результаты разрешения шаблонов
	// (ok, not_found, cycle, error).
	TemplateResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stencil_template_resolutions_total",
		Help: "Flow template resolutions by result",
	}, []string{"result"})

	// LogEntriesTotal — записи, опубликованные в шину логов.
	LogEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stencil_log_entries_total",
		Help: "Execution log entries published to the log bus",
	}, []string{"level"})

	// ExecutionDuration — длительность execution.
	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stencil_execution_duration_seconds",
		Help:    "Execution wall time from start to terminal state",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	})

	// TriggerFiresTotal — срабатывания schedule-триггеров
	// (started, start_failed, invalid_cron).
	TriggerFiresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stencil_trigger_fires_total",
		Help: "Schedule trigger evaluations that were due, by result",
	}, []string{"result"})

	// HTTPRequestsTotal — запросы к API.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stencil_api_http_requests_total",
		Help: "Total HTTP requests handled by stencil-api",
	}, []string{"method", "status"})
)
