// Package boost собирает бусты из независимых источников в одну скорость майнинга.
// models.go описывает состояние бустов и параметры композиции.
package boost

import "time"

// ArenaBoost — временный буст из арены (ставки на прогнозы).
// Учитывается только пока не истёк.
type ArenaBoost struct {
	Pct       float64   `json:"pct"`
	ExpiresAt time.Time `json:"expires_at"`
}

// State — снимок всех пяти источников бустов пользователя.
// Проценты плоские и неотрицательные; недоступный источник = 0.
type State struct {
	ReferralPct float64      `json:"referral_pct"`
	XProfilePct float64      `json:"x_profile_pct"`
	XPostPct    float64      `json:"x_post_pct"`
	ArenaBoosts []ArenaBoost `json:"arena_boosts"`
	StreakDays  int          `json:"streak_days"`
}

// Params — константы композиции.
type Params struct {
	BaseRate      float64 // Поинтов в час без бустов (10)
	RateCap       float64 // Потолок скорости (60)
	MaxBoostPct   float64 // Потолок суммарного буста (500%)
	StreakCapDays int     // Сколько дней стрика учитывается (30)
}

// DefaultParams — значения по умолчанию.
var DefaultParams = Params{
	BaseRate:      10,
	RateCap:       60,
	MaxBoostPct:   500,
	StreakCapDays: 30,
}

// Rate — результат композиции.
type Rate struct {
	TotalBoost  float64 `json:"total_boost"`   // Суммарный буст в процентах, [0, MaxBoostPct]
	RatePerHour float64 `json:"rate_per_hour"` // Поинтов в час, [BaseRate, RateCap]
}
