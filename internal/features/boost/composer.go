// Package boost — composer.go: чистая функция State → скорость.
package boost

import (
	"math"
	"time"
)

// Composer комбинирует источники бустов в ограниченную скорость.
type Composer struct {
	params Params
}

// NewComposer создаёт композитор с заданными параметрами.
func NewComposer(params Params) *Composer {
	return &Composer{params: params}
}

// Compose вычисляет скорость майнинга.
//
// Алгоритм:
//
//	arena  = Σ pct по бустам с expires_at > now
//	streak = min(streak_days, 30)
//	total  = min(referral + x_profile + x_post + arena + streak, 500)
//	rate   = min(10 * (1 + total/100), 60)
//
// Ошибок нет: отрицательные и NaN-значения считаются нулём.
func (c *Composer) Compose(s State, now time.Time) Rate {
	arena := 0.0
	for _, b := range s.ArenaBoosts {
		if b.ExpiresAt.After(now) {
			arena += nonNegative(b.Pct)
		}
	}

	streak := s.StreakDays
	if streak > c.params.StreakCapDays {
		streak = c.params.StreakCapDays
	}
	if streak < 0 {
		streak = 0
	}

	raw := nonNegative(s.ReferralPct) + nonNegative(s.XProfilePct) + nonNegative(s.XPostPct) +
		arena + float64(streak)
	total := math.Min(raw, c.params.MaxBoostPct)

	rate := math.Min(c.params.BaseRate*(1+total/100), c.params.RateCap)
	return Rate{TotalBoost: total, RatePerHour: rate}
}

// NextExpiry возвращает ближайшее время истечения активного буста арены.
// Нужен наблюдателю, чтобы пересчитать скорость ровно в момент истечения.
func NextExpiry(s State, now time.Time) (time.Time, bool) {
	var next time.Time
	found := false
	for _, b := range s.ArenaBoosts {
		if !b.ExpiresAt.After(now) {
			continue
		}
		if !found || b.ExpiresAt.Before(next) {
			next = b.ExpiresAt
			found = true
		}
	}
	return next, found
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
