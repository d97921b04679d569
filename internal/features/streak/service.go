// Package streak — service.go содержит бизнес-логику стриков.
// Сервис отмечает дневную активность, отдаёт длину серии источнику бустов
// и выполняет ночной сброс.
package streak

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/arx-miner/internal/common"
)

// store — то, что сервису нужно от репозитория.
type store interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Streak, error)
	Touch(ctx context.Context, userID uuid.UUID, today time.Time) (*Streak, error)
	BreakStale(ctx context.Context, yesterday time.Time) (int64, error)
}

// Service управляет стрик-системой.
type Service struct {
	repo store
	loc  *time.Location // День считается по полуночи в этом часовом поясе
	now  func() time.Time
}

// NewService создаёт новый сервис стриков.
func NewService(repo store, loc *time.Location, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, loc: loc, now: now}
}

// Touch отмечает, что пользователь майнил сегодня.
func (s *Service) Touch(ctx context.Context, userID uuid.UUID) (*Streak, error) {
	today := common.LocalDate(s.now(), s.loc)
	st, err := s.repo.Touch(ctx, userID, today)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"streak":  st.CurrentStreak,
	}).Debug("Стрик обновлён")
	return st, nil
}

// Days возвращает действующую длину серии (источник буста streak_days).
func (s *Service) Days(ctx context.Context, userID uuid.UUID) (int, error) {
	st, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if st == nil {
		return 0, nil
	}
	return EffectiveDays(st.CurrentStreak, st.LastActiveDate, common.LocalDate(s.now(), s.loc)), nil
}

// GetStreak возвращает запись стрика (nil, если пользователь ещё не майнил).
func (s *Service) GetStreak(ctx context.Context, userID uuid.UUID) (*Streak, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// DailyReset ломает серии тех, кто не майнил вчера.
// Запускается кроном в 00:00 по CRON_TIMEZONE.
func (s *Service) DailyReset(ctx context.Context) error {
	log.Info("Запуск ежедневного сброса стриков")

	yesterday := common.LocalDate(s.now(), s.loc).AddDate(0, 0, -1)
	broken, err := s.repo.BreakStale(ctx, yesterday)
	if err != nil {
		return err
	}

	log.WithField("broken", broken).Info("Ежедневный сброс завершён")
	return nil
}
