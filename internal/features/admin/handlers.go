// Package admin — handlers.go: HTTP-доступ к бэкфиллу.
// Каждый запрос несёт пароль в заголовке X-Admin-Password; сессий нет.
package admin

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"serotonyl.ru/arx-miner/internal/common"
)

// PasswordHeader — заголовок с паролем администратора.
const PasswordHeader = "X-Admin-Password"

// Handler обрабатывает админ-запросы.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes регистрирует маршруты под /admin.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.requirePassword)
	r.Get("/credit-failures", h.HandlePending)
	r.Post("/backfill", h.HandleBackfill)
}

func (h *Handler) requirePassword(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		password := r.Header.Get(PasswordHeader)
		if password == "" {
			common.WriteError(w, common.ErrUnauthorized)
			return
		}
		if err := h.service.VerifyPassword(r.Context(), actorOf(r), password); err != nil {
			common.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandlePending — GET /admin/credit-failures?limit=N.
func (h *Handler) HandlePending(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	failures, err := h.service.Pending(r.Context(), limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if failures == nil {
		failures = []*CreditFailure{}
	}
	common.WriteJSON(w, http.StatusOK, map[string]any{"failures": failures})
}

// HandleBackfill — POST /admin/backfill?limit=N.
//
// Формат ответа:
//
//	{"processed": 3, "credited": 2, "already_credited": 1, "failed": 0, "points": 140}
func (h *Handler) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	res, err := h.service.Backfill(r.Context(), limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, res)
}

// actorOf — ключ для лимита попыток входа: IP клиента без порта.
func actorOf(r *http.Request) string {
	return common.ClientIP(r)
}
