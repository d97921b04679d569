// Package mining — clock.go: чистый расчёт начисления по времени.
package mining

import (
	"math"
	"time"
)

// Elapsed возвращает время с начала окна; часы «назад» дают 0.
func Elapsed(startedAt, now time.Time) time.Duration {
	d := now.Sub(startedAt)
	if d < 0 {
		return 0
	}
	return d
}

// Accrued вычисляет начисленные поинты:
//
//	elapsed = min(max(0, now - started_at), MaxSession)
//	points  = min(MaxSessionPoints, elapsed_hours * rate)
//
// Значение всегда пересчитывается от started_at, поэтому пропущенные тики,
// усыплённые вкладки и переподключения на него не влияют.
// Монотонно не убывает по now.
func Accrued(startedAt, now time.Time, ratePerHour float64, l Limits) float64 {
	if math.IsNaN(ratePerHour) || ratePerHour < 0 {
		ratePerHour = 0
	}
	elapsed := Elapsed(startedAt, now)
	if elapsed > l.MaxSession {
		elapsed = l.MaxSession
	}
	return math.Min(l.MaxSessionPoints(), elapsed.Hours()*ratePerHour)
}

// Expired сообщает, что окно сессии отработало полностью.
func Expired(startedAt, now time.Time, l Limits) bool {
	return Elapsed(startedAt, now) >= l.MaxSession
}
