// Package mining — handlers.go: HTTP-интерфейс майнинга.
package mining

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/arx-miner/internal/common"
)

// Handler обрабатывает запросы майнинга.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes регистрирует маршруты под /v1/mining (под аутентификацией).
func (h *Handler) Routes(r chi.Router) {
	r.Post("/start", h.HandleStart)
	r.Post("/stop", h.HandleStop)
	r.Post("/claim", h.HandleClaim)
	r.Post("/recover", h.HandleRecover)
	r.Get("/status", h.HandleStatus)
}

// HandleStart — POST /v1/mining/start.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserIDFrom(r.Context())
	if !ok {
		common.WriteError(w, common.ErrUnauthorized)
		return
	}
	if _, err := h.service.Start(r.Context(), userID); err != nil {
		log.WithField("user_id", userID).WithError(err).Error("Не удалось запустить майнинг")
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, h.service.Status(r.Context(), userID))
}

// HandleStop — POST /v1/mining/stop.
//
// Формат ответа:
//
//	{"credited": 37, "unit": "ARX-P"}
//
// 202 означает, что сессия закрыта, а начисление будет проведено бэкфиллом.
func (h *Handler) HandleStop(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserIDFrom(r.Context())
	if !ok {
		common.WriteError(w, common.ErrUnauthorized)
		return
	}
	credited, err := h.service.Stop(r.Context(), userID)
	writeCredit(w, credited, err)
}

// HandleClaim — POST /v1/mining/claim. Ответ как у stop.
func (h *Handler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserIDFrom(r.Context())
	if !ok {
		common.WriteError(w, common.ErrUnauthorized)
		return
	}
	credited, err := h.service.Claim(r.Context(), userID)
	writeCredit(w, credited, err)
}

// HandleRecover — POST /v1/mining/recover, клиент вызывает при загрузке.
func (h *Handler) HandleRecover(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserIDFrom(r.Context())
	if !ok {
		common.WriteError(w, common.ErrUnauthorized)
		return
	}
	report, err := h.service.RunStartupRecovery(r.Context(), userID)
	if err != nil {
		// Частичный результат всё равно отдаём: закрытое уже оплачено
		log.WithField("user_id", userID).WithError(err).Warn("Восстановление завершилось с ошибками")
	}
	common.WriteJSON(w, http.StatusOK, map[string]any{
		"report": report,
		"status": h.service.Status(r.Context(), userID),
	})
}

// HandleStatus — GET /v1/mining/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserIDFrom(r.Context())
	if !ok {
		common.WriteError(w, common.ErrUnauthorized)
		return
	}
	common.WriteJSON(w, http.StatusOK, h.service.Status(r.Context(), userID))
}

func writeCredit(w http.ResponseWriter, credited int64, err error) {
	switch {
	case err == nil:
		common.WriteJSON(w, http.StatusOK, map[string]any{"credited": credited, "unit": common.PointsUnit})
	case errors.Is(err, common.ErrCreditDeferred):
		common.WriteJSON(w, http.StatusAccepted, map[string]any{
			"credited": 0,
			"pending":  credited,
			"unit":     common.PointsUnit,
		})
	default:
		common.WriteError(w, err)
	}
}
