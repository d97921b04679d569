// Package admin — ручной бэкфилл начислений с парольной аутентификацией.
// models.go описывает записи об упавших начислениях и попытках входа.
package admin

import (
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/arx-miner/internal/features/economy"
)

// CreditFailure — начисление, не прошедшее после успешной финализации сессии.
// Повторить его автоматически нельзя: CAS уже сработал.
type CreditFailure struct {
	ID              int64      `db:"id" json:"id"`
	UserID          uuid.UUID  `db:"user_id" json:"user_id"`
	SessionID       uuid.UUID  `db:"session_id" json:"session_id"`
	WindowStartedAt time.Time  `db:"window_started_at" json:"window_started_at"` // Вместе с SessionID даёт ключ начисления
	Amount          int64      `db:"amount" json:"amount"`
	Source          string     `db:"source" json:"source"` // Тип исходной транзакции
	Error           string     `db:"error" json:"error"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt      *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// Request восстанавливает запрос на начисление с тем же ключом идемпотентности.
func (f *CreditFailure) Request() economy.CreditRequest {
	return economy.CreditRequest{
		UserID:      f.UserID,
		SessionID:   f.SessionID,
		WindowStart: f.WindowStartedAt,
		Amount:      f.Amount,
		Type:        economy.TxTypeMiningBackfill,
	}
}

// LoginAttempt — попытка входа (для защиты от brute-force).
type LoginAttempt struct {
	ID          int64     `db:"id"`
	Actor       string    `db:"actor"` // IP или иной идентификатор вызывающего
	AttemptTime time.Time `db:"attempt_time"`
	Success     bool      `db:"success"`
}

// BackfillResult — итог одного прохода бэкфилла.
type BackfillResult struct {
	Processed int   `json:"processed"`
	Credited  int   `json:"credited"`         // Проведено сейчас
	Skipped   int   `json:"already_credited"` // Ключ уже был в леджере
	Failed    int   `json:"failed"`           // Осталось на следующий проход
	Points    int64 `json:"points"`
}
