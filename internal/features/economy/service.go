// Package economy — service.go содержит бизнес-логику леджера.
// Валидация, идемпотентные начисления, получение баланса и истории.
package economy

import (
	"context"
	"errors"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/arx-miner/internal/common"
)

// store — то, что сервису нужно от репозитория.
type store interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	Credit(ctx context.Context, req CreditRequest) error
	GetTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]*Transaction, error)
}

// Service управляет леджером поинтов.
type Service struct {
	repo store // Репозиторий для работы с БД
}

// NewService создаёт новый сервис экономики.
func NewService(repo store) *Service {
	return &Service{repo: repo}
}

// GetBalance возвращает текущий баланс пользователя.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.GetBalance(ctx, userID)
}

// Credit начисляет поинты за окно сессии.
//
// Правила:
//   - Отрицательная сумма — ErrInvalidAmount
//   - Ноль — ничего не пишем (нечего начислять)
//   - Повтор с тем же ключом окна — ErrDuplicateCredit, баланс не меняется
func (s *Service) Credit(ctx context.Context, req CreditRequest) error {
	if req.Amount < 0 {
		return common.ErrInvalidAmount
	}
	if req.Amount == 0 {
		return nil
	}

	err := s.repo.Credit(ctx, req)
	if errors.Is(err, common.ErrDuplicateCredit) {
		log.WithFields(log.Fields{
			"user_id":    req.UserID,
			"session_id": req.SessionID,
			"credit_key": req.Key(),
		}).Warn("Повторное начисление отклонено леджером")
		return err
	}
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"user_id":    req.UserID,
		"session_id": req.SessionID,
		"amount":     req.Amount,
		"type":       req.Type,
	}).Info("Поинты начислены")
	return nil
}

// GetTransactions возвращает последние транзакции пользователя.
func (s *Service) GetTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]*Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.GetTransactions(ctx, userID, limit)
}
