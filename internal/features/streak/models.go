// Package streak управляет ежедневными стриками майнинга.
// models.go описывает структуру данных стрика.
package streak

import (
	"time"

	"github.com/google/uuid"
)

// Streak представляет запись стрика пользователя.
// Стрик растёт на 1 за каждый календарный день, в который пользователь
// запускал майнинг. Пропуск дня обнуляет серию.
type Streak struct {
	ID             int64      `db:"id" json:"-"`
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	CurrentStreak  int        `db:"current_streak" json:"current_streak"`     // Текущая серия (дней подряд)
	LongestStreak  int        `db:"longest_streak" json:"longest_streak"`     // Личный рекорд
	LastActiveDate *time.Time `db:"last_active_date" json:"last_active_date"` // Последний день с майнингом
	CreatedAt      time.Time  `db:"created_at" json:"-"`
	UpdatedAt      time.Time  `db:"updated_at" json:"-"`
}
