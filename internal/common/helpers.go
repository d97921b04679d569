// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: форматирование поинтов, работа с датами, контекст пользователя.
package common

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// PointsUnit — название единицы награды.
const PointsUnit = "ARX-P"

// FloorPoints округляет накопленное значение вниз до целых поинтов.
// Отрицательные значения и NaN превращаются в 0.
//
// Примеры:
//
//	FloorPoints(10.99) → 10
//	FloorPoints(0.4)   → 0
//	FloorPoints(-3)    → 0
func FloorPoints(v float64) int64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	return int64(math.Floor(v))
}

// FormatPoints форматирует количество поинтов в читабельную строку.
// Пример: FormatPoints(150) → "150 ARX-P"
func FormatPoints(n int64) string {
	return fmt.Sprintf("%d %s", n, PointsUnit)
}

// LocalDate возвращает только дату (без времени) в указанном часовом поясе.
// Используется для стриков: день считается по локальной полуночи.
func LocalDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DBTime обрезает время до микросекунд и переводит в UTC.
// PostgreSQL хранит timestamptz с точностью до микросекунды, поэтому
// значения, которые мы сравниваем с базой, должны совпадать побайтно.
func DBTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

type userIDKey struct{}

// WithUserID кладёт ID аутентифицированного пользователя в контекст.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFrom достаёт ID пользователя из контекста.
func UserIDFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}
