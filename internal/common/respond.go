package common

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// WriteJSON отдаёт ответ в JSON с указанным статусом.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("Не удалось записать ответ")
	}
}

// WriteError переводит ошибку в HTTP-статус и пишет {"error": "..."}.
// Неизвестные ошибки наружу не светим — только 500.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	WriteJSON(w, status, map[string]string{"error": msg})
}

// StatusFor сопоставляет доменные ошибки со статусами HTTP.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNoActiveSession):
		return http.StatusNotFound
	case errors.Is(err, ErrNothingToClaim), errors.Is(err, ErrSessionConflict), errors.Is(err, ErrDuplicateCredit):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrWrongPassword):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTooManyAttempts):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ClientIP возвращает IP клиента из RemoteAddr без порта.
// Заголовки X-Forwarded-For и X-Real-IP не учитываются: их задаёт сам клиент.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
