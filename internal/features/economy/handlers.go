// Package economy — handlers.go отдаёт баланс и историю начислений по HTTP.
package economy

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"serotonyl.ru/arx-miner/internal/common"
)

// Handler обрабатывает запросы к леджеру.
type Handler struct {
	service *Service
}

// NewHandler создаёт новый обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes регистрирует маршруты (под аутентификацией).
func (h *Handler) Routes(r chi.Router) {
	r.Get("/balance", h.HandleBalance)
	r.Get("/transactions", h.HandleTransactions)
}

// HandleBalance — GET /v1/balance.
//
// Формат ответа:
//
//	{"balance": 150, "unit": "ARX-P"}
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserIDFrom(r.Context())
	if !ok {
		common.WriteError(w, common.ErrUnauthorized)
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string]any{"balance": balance, "unit": common.PointsUnit})
}

// HandleTransactions — GET /v1/transactions?limit=N.
func (h *Handler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserIDFrom(r.Context())
	if !ok {
		common.WriteError(w, common.ErrUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := h.service.GetTransactions(r.Context(), userID, limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if txs == nil {
		txs = []*Transaction{}
	}
	common.WriteJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}
