// Package streak — days.go содержит чистые функции подсчёта серии.
package streak

import "time"

// sameDay сравнивает даты без времени.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// NextStreak возвращает серию после активности в день today.
//
// Правила:
//   - Уже был активен сегодня → серия не меняется
//   - Последний активный день — вчера → серия + 1
//   - Иначе (пропуск или первый раз) → 1
//
// Пример:
//
//	NextStreak(4, вчера, сегодня)   → 5
//	NextStreak(4, сегодня, сегодня) → 4
//	NextStreak(4, позавчера, ...)   → 1
func NextStreak(current int, lastActive *time.Time, today time.Time) int {
	if lastActive == nil {
		return 1
	}
	if sameDay(*lastActive, today) {
		if current < 1 {
			return 1
		}
		return current
	}
	if sameDay(*lastActive, today.AddDate(0, 0, -1)) {
		return current + 1
	}
	return 1
}

// EffectiveDays возвращает серию, действующую в день today.
// Серия, последний день которой старше вчерашнего, уже сломана,
// даже если ночной сброс ещё не отработал.
func EffectiveDays(current int, lastActive *time.Time, today time.Time) int {
	if lastActive == nil || current <= 0 {
		return 0
	}
	if sameDay(*lastActive, today) || sameDay(*lastActive, today.AddDate(0, 0, -1)) {
		return current
	}
	return 0
}
