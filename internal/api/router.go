// Package api собирает HTTP-интерфейс сервиса: маршруты, аутентификацию,
// лимиты, метрики и graceful shutdown.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/arx-miner/internal/common"
)

// Config — что подключить к роутеру.
type Config struct {
	Auth    *Authenticator
	Limiter *RateLimiter

	Mining  func(chi.Router)   // /v1/mining
	Account []func(chi.Router) // /v1: баланс, транзакции, стрик
	Admin   func(chi.Router)   // /admin, со своей парольной проверкой

	Ready func(ctx context.Context) error // Проверка готовности для /healthz
}

// NewRouter создаёт роутер.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(logRequests)
	r.Use(recoverPanic)
	r.Use(measure)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(r.Context()); err != nil {
				log.WithError(err).Warn("Проверка готовности не прошла")
				common.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		common.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(cfg.Auth.Middleware)
		if cfg.Limiter != nil {
			v1.Use(cfg.Limiter.Middleware)
		}
		if cfg.Mining != nil {
			v1.Route("/mining", cfg.Mining)
		}
		for _, routes := range cfg.Account {
			routes(v1)
		}
	})

	if cfg.Admin != nil {
		r.Route("/admin", func(ar chi.Router) {
			if cfg.Limiter != nil {
				ar.Use(cfg.Limiter.Middleware)
			}
			cfg.Admin(ar)
		})
	}
	return r
}

// Server — HTTP-сервер с graceful shutdown.
type Server struct {
	srv *http.Server
}

// NewServer создаёт сервер.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}}
}

// Run слушает адрес, пока не отменён ctx, затем даёт запросам 10 секунд на завершение.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.srv.Addr).Info("HTTP-сервер запущен")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP-сервер: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("остановка HTTP-сервера: %w", err)
	}
	log.Info("HTTP-сервер остановлен")
	return nil
}
