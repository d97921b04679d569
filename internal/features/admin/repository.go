// Package admin — repository.go работает с таблицами credit_failures и admin_login_attempts.
package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/arx-miner/internal/features/economy"
)

// Repository работает с админ-таблицами.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// InsertFailure сохраняет упавшее начисление.
func (r *Repository) InsertFailure(ctx context.Context, req economy.CreditRequest, cause string) error {
	query := `
		INSERT INTO credit_failures (user_id, session_id, window_started_at, amount, source, error)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, req.UserID, req.SessionID, req.WindowStart, req.Amount, req.Type, cause)
	if err != nil {
		return fmt.Errorf("ошибка записи упавшего начисления: %w", err)
	}
	return nil
}

// ListPending возвращает неразобранные записи, старые первыми.
func (r *Repository) ListPending(ctx context.Context, limit int) ([]*CreditFailure, error) {
	query := `
		SELECT id, user_id, session_id, window_started_at, amount, source, COALESCE(error, ''), created_at, resolved_at
		FROM credit_failures
		WHERE resolved_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения упавших начислений: %w", err)
	}
	defer rows.Close()

	var failures []*CreditFailure
	for rows.Next() {
		var f CreditFailure
		err := rows.Scan(
			&f.ID, &f.UserID, &f.SessionID, &f.WindowStartedAt,
			&f.Amount, &f.Source, &f.Error, &f.CreatedAt, &f.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		failures = append(failures, &f)
	}
	return failures, rows.Err()
}

// MarkResolved отмечает запись разобранной.
func (r *Repository) MarkResolved(ctx context.Context, id int64) error {
	query := `UPDATE credit_failures SET resolved_at = NOW() WHERE id = $1 AND resolved_at IS NULL`
	_, err := r.db.Exec(ctx, query, id)
	return err
}

// LogAttempt записывает попытку входа.
func (r *Repository) LogAttempt(ctx context.Context, actor string, success bool) error {
	query := `INSERT INTO admin_login_attempts (actor, success) VALUES ($1, $2)`
	_, err := r.db.Exec(ctx, query, actor, success)
	return err
}

// GetRecentAttempts возвращает количество неудачных попыток за указанный период.
func (r *Repository) GetRecentAttempts(ctx context.Context, actor string, period time.Duration) (int, error) {
	since := time.Now().Add(-period)
	query := `
		SELECT COUNT(*) FROM admin_login_attempts
		WHERE actor = $1 AND success = FALSE AND attempt_time >= $2
	`
	var count int
	err := r.db.QueryRow(ctx, query, actor, since).Scan(&count)
	return count, err
}
