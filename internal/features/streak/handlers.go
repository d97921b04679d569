// Package streak — handlers.go отдаёт стрик пользователя по HTTP.
package streak

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"serotonyl.ru/arx-miner/internal/common"
)

// Handler обрабатывает запросы стрика.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes регистрирует маршруты (под аутентификацией).
func (h *Handler) Routes(r chi.Router) {
	r.Get("/streak", h.HandleStreak)
}

// HandleStreak — GET /v1/streak.
//
// Формат ответа:
//
//	{"days": 4, "current_streak": 4, "longest_streak": 9, "last_active_date": "..."}
//
// days — то, что идёт в буст: серия, которая ещё не прервалась на сегодня.
func (h *Handler) HandleStreak(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserIDFrom(r.Context())
	if !ok {
		common.WriteError(w, common.ErrUnauthorized)
		return
	}

	days, err := h.service.Days(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	st, err := h.service.GetStreak(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if st == nil {
		st = &Streak{UserID: userID}
	}
	common.WriteJSON(w, http.StatusOK, map[string]any{
		"days":             days,
		"current_streak":   st.CurrentStreak,
		"longest_streak":   st.LongestStreak,
		"last_active_date": st.LastActiveDate,
	})
}
