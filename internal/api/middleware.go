// Package api — middleware.go: логирование, восстановление после паники и метрики.
package api

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/arx-miner/internal/common"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arx",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP-запросы по маршруту, методу и статусу.",
	}, []string{"route", "method", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "arx",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Длительность HTTP-запросов.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arx",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Запросы, отклонённые лимитером.",
	})
)

// logRequests пишет одну строку на запрос.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		fields := log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  chimw.GetReqID(r.Context()),
		}
		log.WithFields(fields).Debug("HTTP-запрос")
	})
}

// recoverPanic превращает панику обработчика в 500 и пишет стек в лог.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.WithFields(log.Fields{
					"component": "panic_recovery",
					"panic":     fmt.Sprintf("%v", rec),
					"stack":     string(debug.Stack()),
					"path":      r.URL.Path,
				}).Error("ПАНИКА в обработчике — восстановлено")
				common.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// measure считает метрики по шаблону маршрута chi, а не по сырому пути.
func measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
