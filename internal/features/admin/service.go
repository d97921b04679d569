// Package admin — service.go: запись упавших начислений, алерты и бэкфилл.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/arx-miner/internal/common"
	"serotonyl.ru/arx-miner/internal/features/economy"
	"serotonyl.ru/arx-miner/internal/notify"
)

const (
	maxFailedAttempts = 3
	lockoutPeriod     = time.Hour
)

type store interface {
	InsertFailure(ctx context.Context, req economy.CreditRequest, cause string) error
	ListPending(ctx context.Context, limit int) ([]*CreditFailure, error)
	MarkResolved(ctx context.Context, id int64) error
	LogAttempt(ctx context.Context, actor string, success bool) error
	GetRecentAttempts(ctx context.Context, actor string, period time.Duration) (int, error)
}

// Ledger — то, через что бэкфилл проводит начисления.
type Ledger interface {
	Credit(ctx context.Context, req economy.CreditRequest) error
}

// Service обслуживает ручной разбор упавших начислений.
type Service struct {
	repo         store
	ledger       Ledger
	alerter      notify.Alerter
	passwordHash string
}

// NewService создаёт сервис.
func NewService(repo store, ledger Ledger, alerter notify.Alerter, passwordHash string) *Service {
	if alerter == nil {
		alerter = notify.Log{}
	}
	return &Service{repo: repo, ledger: ledger, alerter: alerter, passwordHash: passwordHash}
}

// RecordCreditFailure сохраняет упавшее начисление и поднимает алерт.
// Вызывается движком майнинга сразу после неудачного Credit.
func (s *Service) RecordCreditFailure(ctx context.Context, req economy.CreditRequest, cause error) error {
	if err := s.repo.InsertFailure(ctx, req, cause.Error()); err != nil {
		return err
	}

	text := fmt.Sprintf("⚠️ Начисление не прошло, нужен бэкфилл\nuser: %s\nsession: %s\nwindow: %s\namount: %s\nsource: %s\nerror: %v",
		req.UserID, req.SessionID, req.WindowStart.UTC().Format(time.RFC3339Nano),
		common.FormatPoints(req.Amount), req.Type, cause)
	if err := s.alerter.Alert(ctx, text); err != nil {
		log.WithError(err).Warn("Не удалось отправить алерт")
	}
	return nil
}

// VerifyPassword проверяет пароль администратора с использованием Argon2id.
// Защита от brute-force: 3 неудачные попытки = блокировка на 1 час.
func (s *Service) VerifyPassword(ctx context.Context, actor, password string) error {
	attempts, err := s.repo.GetRecentAttempts(ctx, actor, lockoutPeriod)
	if err != nil {
		return fmt.Errorf("ошибка проверки попыток: %w", err)
	}
	if attempts >= maxFailedAttempts {
		return common.ErrTooManyAttempts
	}

	match := verifyArgon2id(password, s.passwordHash)
	if err := s.repo.LogAttempt(ctx, actor, match); err != nil {
		log.WithError(err).Warn("Не удалось записать попытку входа")
	}
	if !match {
		log.WithField("actor", actor).Warn("Неверный пароль администратора")
		return common.ErrWrongPassword
	}
	return nil
}

// Pending возвращает неразобранные записи.
func (s *Service) Pending(ctx context.Context, limit int) ([]*CreditFailure, error) {
	return s.repo.ListPending(ctx, clampLimit(limit))
}

// Backfill повторяет упавшие начисления с исходным ключом идемпотентности.
// Если ключ уже в леджере, запись просто закрывается: двойного начисления нет.
func (s *Service) Backfill(ctx context.Context, limit int) (BackfillResult, error) {
	var res BackfillResult

	failures, err := s.repo.ListPending(ctx, clampLimit(limit))
	if err != nil {
		return res, err
	}

	for _, f := range failures {
		if ctx.Err() != nil {
			break
		}
		res.Processed++
		fields := log.Fields{"failure_id": f.ID, "user_id": f.UserID, "session_id": f.SessionID, "amount": f.Amount}

		err := s.ledger.Credit(ctx, f.Request())
		switch {
		case err == nil:
			res.Credited++
			res.Points += f.Amount
		case errors.Is(err, common.ErrDuplicateCredit):
			res.Skipped++
		default:
			res.Failed++
			log.WithFields(fields).WithError(err).Error("Бэкфилл не прошёл")
			continue
		}

		if err := s.repo.MarkResolved(ctx, f.ID); err != nil {
			// Повторный проход наткнётся на дубликат ключа и закроет запись
			log.WithFields(fields).WithError(err).Warn("Не удалось закрыть запись бэкфилла")
		}
	}

	log.WithFields(log.Fields{
		"processed": res.Processed,
		"credited":  res.Credited,
		"skipped":   res.Skipped,
		"failed":    res.Failed,
		"points":    res.Points,
	}).Info("Бэкфилл завершён")
	return res, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
