// Package boost — repository.go читает источники бустов из PostgreSQL.
// Каждый источник читается отдельным запросом: падение одного не должно
// мешать остальным (см. Load).
package boost

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository предоставляет методы для чтения бустов.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий бустов.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ReferralPct возвращает суммарный реферальный буст (по приглашённым друзьям).
func (r *Repository) ReferralPct(ctx context.Context, userID uuid.UUID) (float64, error) {
	query := `SELECT COALESCE(SUM(pct), 0)::float8 FROM referral_boosts WHERE user_id = $1`
	var pct float64
	if err := r.db.QueryRow(ctx, query, userID).Scan(&pct); err != nil {
		return 0, fmt.Errorf("ошибка получения реферального буста: %w", err)
	}
	return pct, nil
}

// XProfilePct возвращает буст за привязанный профиль X.
func (r *Repository) XProfilePct(ctx context.Context, userID uuid.UUID) (float64, error) {
	return r.xPct(ctx, userID, "profile")
}

// XPostPct возвращает буст за посты в X.
func (r *Repository) XPostPct(ctx context.Context, userID uuid.UUID) (float64, error) {
	return r.xPct(ctx, userID, "post")
}

func (r *Repository) xPct(ctx context.Context, userID uuid.UUID, kind string) (float64, error) {
	query := `SELECT COALESCE(SUM(pct), 0)::float8 FROM x_boosts WHERE user_id = $1 AND kind = $2`
	var pct float64
	if err := r.db.QueryRow(ctx, query, userID, kind).Scan(&pct); err != nil {
		return 0, fmt.Errorf("ошибка получения X-буста (%s): %w", kind, err)
	}
	return pct, nil
}

// ArenaBoosts возвращает ещё не истёкшие бусты арены.
// Истечение всё равно перепроверяется в Compose по переданному now.
func (r *Repository) ArenaBoosts(ctx context.Context, userID uuid.UUID) ([]ArenaBoost, error) {
	query := `
		SELECT pct::float8, expires_at
		FROM arena_boosts
		WHERE user_id = $1 AND expires_at > NOW()
		ORDER BY expires_at
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения бустов арены: %w", err)
	}
	defer rows.Close()

	var boosts []ArenaBoost
	for rows.Next() {
		var b ArenaBoost
		if err := rows.Scan(&b.Pct, &b.ExpiresAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования буста арены: %w", err)
		}
		boosts = append(boosts, b)
	}
	return boosts, rows.Err()
}
