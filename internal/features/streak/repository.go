// Package streak — repository.go выполняет операции с таблицей streaks.
package streak

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository предоставляет методы для работы с таблицей streaks.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий стриков.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetByUserID возвращает стрик пользователя. Если записи нет — (nil, nil).
func (r *Repository) GetByUserID(ctx context.Context, userID uuid.UUID) (*Streak, error) {
	query := `
		SELECT id, user_id, current_streak, longest_streak, last_active_date, created_at, updated_at
		FROM streaks
		WHERE user_id = $1
	`
	var s Streak
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&s.ID, &s.UserID, &s.CurrentStreak, &s.LongestStreak,
		&s.LastActiveDate, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения стрика (user_id=%s): %w", userID, err)
	}
	return &s, nil
}

// Touch отмечает активность пользователя в день today.
// Строка блокируется FOR UPDATE, чтобы два старта с разных вкладок
// не увеличили серию дважды.
func (r *Repository) Touch(ctx context.Context, userID uuid.UUID, today time.Time) (*Streak, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO streaks (user_id, current_streak, longest_streak)
		VALUES ($1, 0, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания стрика: %w", err)
	}

	var s Streak
	err = tx.QueryRow(ctx, `
		SELECT id, user_id, current_streak, longest_streak, last_active_date, created_at, updated_at
		FROM streaks WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(
		&s.ID, &s.UserID, &s.CurrentStreak, &s.LongestStreak,
		&s.LastActiveDate, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка блокировки стрика: %w", err)
	}

	s.CurrentStreak = NextStreak(s.CurrentStreak, s.LastActiveDate, today)
	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	s.LastActiveDate = &day

	_, err = tx.Exec(ctx, `
		UPDATE streaks
		SET current_streak = $2, longest_streak = $3, last_active_date = $4, updated_at = NOW()
		WHERE user_id = $1
	`, userID, s.CurrentStreak, s.LongestStreak, day)
	if err != nil {
		return nil, fmt.Errorf("ошибка обновления стрика: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &s, nil
}

// BreakStale обнуляет серии, у которых последний активный день раньше yesterday.
// Вызывается кроном в полночь. Возвращает число сломанных серий.
func (r *Repository) BreakStale(ctx context.Context, yesterday time.Time) (int64, error) {
	day := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, time.UTC)
	query := `
		UPDATE streaks SET current_streak = 0, updated_at = NOW()
		WHERE current_streak > 0 AND (last_active_date IS NULL OR last_active_date < $1)
	`
	tag, err := r.db.Exec(ctx, query, day)
	if err != nil {
		return 0, fmt.Errorf("ошибка сброса стриков: %w", err)
	}
	return tag.RowsAffected(), nil
}
