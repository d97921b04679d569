// Package mining — движок начисления поинтов за майнинг.
//
// Поинты считаются только от прошедшего времени: accrued = f(started_at, now, rate).
// Тики, запись watermark и восстановление после падения лишь синхронизируют
// это значение с базой и леджером, но никогда его не накапливают.
//
// Единственная защита от гонок между вкладками и устройствами — условная
// финализация (CAS по is_active): леджер получает начисление только от того,
// чья запись реально сработала.
//
// models.go описывает сессию майнинга и лимиты движка.
package mining

import (
	"time"

	"github.com/google/uuid"
)

// Session — одно непрерывное окно начисления для одного пользователя.
type Session struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	StartedAt      time.Time  `db:"started_at" json:"started_at"`           // Якорь для расчёта по времени
	EndedAt        *time.Time `db:"ended_at" json:"ended_at"`               // Ставится ровно один раз при финализации
	IsActive       bool       `db:"is_active" json:"is_active"`             // Единственный флаг конкурентного контроля
	RecordedPoints int64      `db:"recorded_points" json:"recorded_points"` // Watermark: последнее записанное целое значение
}

// Limits — константы движка.
type Limits struct {
	BaseRate   float64       // Скорость без бустов, поинтов в час
	RateCap    float64       // Потолок скорости, поинтов в час
	MaxSession time.Duration // Максимальная длина окна начисления
}

// DefaultLimits — значения по умолчанию: 10/ч, потолок 60/ч, 8 часов.
var DefaultLimits = Limits{
	BaseRate:   10,
	RateCap:    60,
	MaxSession: 8 * time.Hour,
}

// MaxSessionPoints — потолок поинтов за одно окно (RateCap * 8 = 480).
func (l Limits) MaxSessionPoints() float64 {
	return l.RateCap * l.MaxSession.Hours()
}

// Status — то, что видит UI.
type Status struct {
	Active           bool       `json:"active"`
	SessionID        *uuid.UUID `json:"session_id,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	AccruedPoints    float64    `json:"accrued_points"` // Точное значение от времени
	DisplayPoints    int64      `json:"display_points"` // Никогда не меньше записанного watermark
	RatePerHour      float64    `json:"rate_per_hour"`
	TotalBoost       float64    `json:"total_boost"`
	RemainingSeconds float64    `json:"remaining_seconds"` // До конца 8-часового окна
	MaxSessionPoints float64    `json:"max_session_points"`
}

// RecoveryReport — итог восстановления при входе пользователя.
type RecoveryReport struct {
	RecoveredPoints    int64    `json:"recovered_points"`    // Начислено за закрытые сессии
	SessionsReconciled int      `json:"sessions_reconciled"` // Сколько сессий закрыто нами
	BackfillPending    int      `json:"backfill_pending"`    // Закрыто, но начисление ушло в бэкфилл
	Resumed            *Session `json:"resumed,omitempty"`   // Сессия, которую продолжаем тикать
	Notice             string   `json:"notice,omitempty"`    // Разовое уведомление для UI
}
