// Package mining — repository.go выполняет операции с таблицей mining_sessions.
package mining

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository — SessionStore поверх PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий сессий.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `id, user_id, started_at, ended_at, is_active, recorded_points`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.UserID, &s.StartedAt, &s.EndedAt, &s.IsActive, &s.RecordedPoints)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession создаёт новую активную сессию.
func (r *Repository) CreateSession(ctx context.Context, userID uuid.UUID, startedAt time.Time) (*Session, error) {
	query := `
		INSERT INTO mining_sessions (id, user_id, started_at, is_active, recorded_points)
		VALUES ($1, $2, $3, TRUE, 0)
		RETURNING ` + sessionColumns
	s, err := scanSession(r.db.QueryRow(ctx, query, uuid.New(), userID, startedAt))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания сессии: %w", err)
	}
	return s, nil
}

// ConditionalFinalize закрывает сессию одним UPDATE с условием is_active.
// Из всех конкурентов строку меняет ровно один: он и начисляет поинты.
func (r *Repository) ConditionalFinalize(ctx context.Context, sessionID uuid.UUID, payable int64, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE mining_sessions
		SET is_active = FALSE, ended_at = $2, recorded_points = $3, updated_at = NOW()
		WHERE id = $1 AND is_active = TRUE
	`, sessionID, now, payable)
	if err != nil {
		return false, fmt.Errorf("ошибка финализации сессии: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateWatermark пишет watermark, пока сессия активна и окно не переякорено.
// Запоздавшая запись от другой вкладки не затрёт уже закрытую сессию
// и не перенесёт старое значение в новое окно после claim().
func (r *Repository) UpdateWatermark(ctx context.Context, sessionID uuid.UUID, windowStart time.Time, points int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE mining_sessions
		SET recorded_points = $3, updated_at = NOW()
		WHERE id = $1 AND is_active = TRUE AND started_at = $2
	`, sessionID, windowStart, points)
	if err != nil {
		return fmt.Errorf("ошибка записи watermark: %w", err)
	}
	return nil
}

// ListActiveSessions возвращает все активные сессии пользователя, новые первыми.
// В норме их не больше одной; больше — след гонки или падения.
func (r *Repository) ListActiveSessions(ctx context.Context, userID uuid.UUID) ([]*Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM mining_sessions
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY started_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения активных сессий: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования сессии: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Reanchor переносит начало окна после claim() и обнуляет watermark.
// Условие по старому started_at делает claim() однократным для окна.
func (r *Repository) Reanchor(ctx context.Context, sessionID uuid.UUID, from, to time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE mining_sessions
		SET started_at = $3, recorded_points = 0, updated_at = NOW()
		WHERE id = $1 AND is_active = TRUE AND started_at = $2
	`, sessionID, from, to)
	if err != nil {
		return false, fmt.Errorf("ошибка переноса окна сессии: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListUsersWithExpiredSessions ищет пользователей с активными сессиями,
// начатыми раньше startedBefore (то есть уже отработавшими окно).
func (r *Repository) ListUsersWithExpiredSessions(ctx context.Context, startedBefore time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT user_id
		FROM mining_sessions
		WHERE is_active = TRUE AND started_at <= $1
		LIMIT $2
	`, startedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска истёкших сессий: %w", err)
	}
	defer rows.Close()

	var users []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}
