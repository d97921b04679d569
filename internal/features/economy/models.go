// Package economy управляет балансом поинтов ARX-P (леджер).
// models.go описывает структуры для балансов, транзакций и запросов на начисление.
package economy

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Balance представляет баланс пользователя.
// Каждый пользователь имеет ровно одну запись в таблице balances.
type Balance struct {
	ID          int64     `db:"id" json:"id"`
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	Balance     int64     `db:"balance" json:"balance"`           // Текущий баланс
	TotalEarned int64     `db:"total_earned" json:"total_earned"` // Сколько всего начислено
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction представляет одну операцию с поинтами.
// Леджер только добавляет строки: ни обновлений, ни удалений.
type Transaction struct {
	ID              int64      `db:"id" json:"id"`
	UserID          uuid.UUID  `db:"user_id" json:"user_id"`
	SessionID       *uuid.UUID `db:"session_id" json:"session_id"`             // Сессия майнинга (nil для прочих начислений)
	CreditKey       *string    `db:"credit_key" json:"credit_key"`             // Ключ идемпотентности
	Amount          int64      `db:"amount" json:"amount"`                     // Сумма (всегда неотрицательная)
	TransactionType string     `db:"transaction_type" json:"transaction_type"` // Тип: 'mining_stop', 'mining_claim', ...
	Description     string     `db:"description" json:"description"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// Типы транзакций майнинга — по источнику начисления.
const (
	TxTypeMiningStop      = "mining_stop"       // Пользователь остановил майнинг
	TxTypeMiningClaim     = "mining_claim"      // Забрал накопленное, сессия продолжается
	TxTypeMiningExpired   = "mining_expired"    // Тик поймал окончание 8-часового окна
	TxTypeMiningRecovery  = "mining_recovery"   // Дубликат/зависшая сессия при старте клиента
	TxTypeMiningSweep     = "mining_sweep"      // Сессия истекла, пока клиент был закрыт
	TxTypeMiningSupersede = "mining_superseded" // Старая сессия закрыта новым start()
	TxTypeMiningBackfill  = "mining_backfill"   // Ручное доначисление админом
)

// CreditRequest — одно начисление за окно сессии майнинга.
//
// Окно определяется парой (SessionID, WindowStart): claim() переякоривает
// ту же сессию, поэтому одна сессия законно получает несколько начислений,
// но никогда два за одно и то же окно.
type CreditRequest struct {
	UserID      uuid.UUID
	SessionID   uuid.UUID
	WindowStart time.Time
	Amount      int64
	Type        string
}

// Key возвращает ключ идемпотентности начисления.
// Время берётся в микросекундах — это точность timestamptz в PostgreSQL.
func (r CreditRequest) Key() string {
	return fmt.Sprintf("%s:%d", r.SessionID, r.WindowStart.UTC().UnixMicro())
}

// Description формирует текст для истории транзакций.
func (r CreditRequest) Description() string {
	return fmt.Sprintf("Mining %s - %d ARX-P", r.Type, r.Amount)
}
