// Package mining — store.go: внешние коллабораторы движка.
package mining

import (
	"context"
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/arx-miner/internal/features/boost"
	"serotonyl.ru/arx-miner/internal/features/economy"
	"serotonyl.ru/arx-miner/internal/features/streak"
)

// SessionStore — долговременное хранилище сессий.
type SessionStore interface {
	// CreateSession создаёт активную сессию с recorded_points = 0.
	CreateSession(ctx context.Context, userID uuid.UUID, startedAt time.Time) (*Session, error)
	// ConditionalFinalize закрывает сессию, только если она ещё активна.
	// changed=false значит, что её уже закрыл кто-то другой.
	ConditionalFinalize(ctx context.Context, sessionID uuid.UUID, payable int64, now time.Time) (changed bool, err error)
	// UpdateWatermark — best-effort запись watermark для текущего окна.
	UpdateWatermark(ctx context.Context, sessionID uuid.UUID, windowStart time.Time, points int64) error
	// ListActiveSessions возвращает активные сессии, новые первыми.
	ListActiveSessions(ctx context.Context, userID uuid.UUID) ([]*Session, error)
	// Reanchor переносит started_at активной сессии from → to и обнуляет watermark.
	// Это фиксация claim(): срабатывает только у одного из конкурентов.
	Reanchor(ctx context.Context, sessionID uuid.UUID, from, to time.Time) (changed bool, err error)
	// ListUsersWithExpiredSessions — пользователи с активными сессиями старше startedBefore.
	ListUsersWithExpiredSessions(ctx context.Context, startedBefore time.Time, limit int) ([]uuid.UUID, error)
}

// Ledger — баланс поинтов. Начисление идемпотентно по ключу окна.
type Ledger interface {
	Credit(ctx context.Context, req economy.CreditRequest) error
}

// FailureSink сохраняет начисления, упавшие после успешной финализации,
// для ручного бэкфилла.
type FailureSink interface {
	RecordCreditFailure(ctx context.Context, req economy.CreditRequest, cause error) error
}

// RateSource отдаёт текущую скорость и уведомляет о её изменениях.
type RateSource interface {
	Current(ctx context.Context, userID uuid.UUID) boost.Rate
	Refresh(ctx context.Context, userID uuid.UUID) boost.Rate
	Subscribe(userID uuid.UUID, fn func(boost.Rate)) (cancel func())
}

// StreakToucher отмечает дневную активность (старт майнинга продлевает стрик).
type StreakToucher interface {
	Touch(ctx context.Context, userID uuid.UUID) (*streak.Streak, error)
}
