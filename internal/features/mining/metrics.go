// Package mining — metrics.go: метрики Prometheus движка.
package mining

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arx",
		Subsystem: "mining",
		Name:      "active_sessions",
		Help:      "Сессии, которые сейчас тикают в этом процессе.",
	})

	finalizeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arx",
		Subsystem: "mining",
		Name:      "finalize_total",
		Help:      "Попытки условной финализации по результату.",
	}, []string{"source", "result"})

	creditedPoints = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arx",
		Subsystem: "mining",
		Name:      "credited_points_total",
		Help:      "Поинты, проведённые через леджер, по источнику.",
	}, []string{"source"})

	creditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arx",
		Subsystem: "mining",
		Name:      "credit_failures_total",
		Help:      "Начисления, упавшие после успешной финализации.",
	})

	sweepRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arx",
		Subsystem: "mining",
		Name:      "sweep_recovered_points_total",
		Help:      "Поинты, начисленные за сессии, истёкшие без клиента.",
	})

	watermarkErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arx",
		Subsystem: "mining",
		Name:      "watermark_write_errors_total",
		Help:      "Неудачные записи watermark.",
	})
)
