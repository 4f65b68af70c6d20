package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: сколько заявок прошло, с каким вердиктом
	RequestsTotal *prometheus.CounterVec

	// Latency: длительность каждой стадии пайплайна
	StageDuration *prometheus.HistogramVec

	// Исходы действий (completed/failed по типам)
	ActionsTotal *prometheus.CounterVec

	// Ретраи диспатча — ранний сигнал деградации внешних систем
	DispatchRetries prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_requests_total",
			Help: "Total number of processed requests.",
		}, []string{"format", "intent", "status"}),

		StageDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docflow_stage_duration_seconds",
			Help:    "Histogram of pipeline stage latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"stage"}),

		ActionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_actions_total",
			Help: "Total number of routed actions by outcome.",
		}, []string{"action", "outcome"}),

		DispatchRetries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "docflow_dispatch_retries_total",
			Help: "Total number of dispatch retry attempts.",
		}),
	}
}
