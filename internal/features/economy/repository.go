// Package economy — repository.go выполняет все операции с таблицами balances и transactions.
// Все денежные операции выполняются в транзакциях БД для целостности данных.
package economy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/arx-miner/internal/common"
	"serotonyl.ru/arx-miner/internal/db/postgres"
)

// Repository предоставляет методы для работы с балансами и транзакциями.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий экономики.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetBalance возвращает текущий баланс пользователя.
// Если записи ещё нет — баланс 0 (пользователь ничего не намайнил).
func (r *Repository) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `SELECT balance FROM balances WHERE user_id = $1`
	var balance int64
	err := r.db.QueryRow(ctx, query, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	return balance, nil
}

// Credit начисляет поинты за окно сессии майнинга.
//
// Атомарно:
//  1. Вставляем строку transactions с уникальным credit_key
//  2. Если ключ уже есть — ничего не меняем и возвращаем ErrDuplicateCredit
//  3. Иначе увеличиваем balance и total_earned (создаём запись при первом начислении)
func (r *Repository) Credit(ctx context.Context, req CreditRequest) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// ON CONFLICT DO NOTHING не ломает транзакцию, в отличие от ошибки 23505
	tag, err := tx.Exec(ctx, `
		INSERT INTO transactions (user_id, session_id, credit_key, amount, transaction_type, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (credit_key) DO NOTHING
	`, req.UserID, req.SessionID, req.Key(), req.Amount, req.Type, req.Description())
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return common.ErrDuplicateCredit
		}
		return fmt.Errorf("ошибка записи транзакции: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrDuplicateCredit
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO balances (user_id, balance, total_earned)
		VALUES ($1, $2, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = balances.balance + EXCLUDED.balance,
		    total_earned = balances.total_earned + EXCLUDED.total_earned,
		    updated_at = NOW()
	`, req.UserID, req.Amount)
	if err != nil {
		return fmt.Errorf("ошибка начисления: %w", err)
	}

	return tx.Commit(ctx)
}

// GetTransactions возвращает последние N транзакций пользователя.
func (r *Repository) GetTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]*Transaction, error) {
	query := `
		SELECT id, user_id, session_id, credit_key, amount, transaction_type, description, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения транзакций: %w", err)
	}
	defer rows.Close()

	var transactions []*Transaction
	for rows.Next() {
		var t Transaction
		err := rows.Scan(
			&t.ID, &t.UserID, &t.SessionID, &t.CreditKey,
			&t.Amount, &t.TransactionType, &t.Description, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования транзакции: %w", err)
		}
		transactions = append(transactions, &t)
	}
	return transactions, rows.Err()
}
