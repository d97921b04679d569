// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: ежедневный сброс стриков
// и серверный sweep истёкших сессий майнинга.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// StreakResetter сбрасывает стрики, прерванные вчера.
type StreakResetter interface {
	DailyReset(ctx context.Context) error
}

// ExpirySweeper закрывает сессии, окно которых закончилось без клиента.
type ExpirySweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron    *cron.Cron
	streaks StreakResetter
	sweeper ExpirySweeper
	loc     *time.Location
	ctx     context.Context
}

// NewScheduler создаёт планировщик в указанном часовом поясе.
// Ошибка — если не разбирается расписание sweep.
func NewScheduler(ctx context.Context, streaks StreakResetter, sweeper ExpirySweeper, loc *time.Location, sweepSpec string) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		// Следующий запуск sweep не стартует, пока не закончился предыдущий
		cron:    cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		streaks: streaks,
		sweeper: sweeper,
		loc:     loc,
		ctx:     ctx,
	}

	// Ежедневный сброс в 00:00 по локальному времени
	if _, err := s.cron.AddFunc("0 0 * * *", s.resetStreaks); err != nil {
		return nil, fmt.Errorf("расписание сброса стриков: %w", err)
	}
	if _, err := s.cron.AddFunc(sweepSpec, s.sweepExpired); err != nil {
		return nil, fmt.Errorf("расписание sweep %q: %w", sweepSpec, err)
	}
	return s, nil
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.WithField("timezone", s.loc.String()).Info("Планировщик задач запущен")
}

// Stop останавливает планировщик и ждёт завершения текущих задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

func (s *Scheduler) resetStreaks() {
	log.Info("[CRON] Ежедневный сброс стриков")
	if err := s.streaks.DailyReset(s.ctx); err != nil {
		log.WithError(err).Error("[CRON] Ошибка сброса")
	}
}

func (s *Scheduler) sweepExpired() {
	n, err := s.sweeper.SweepExpired(s.ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка sweep истёкших сессий")
	}
	if n > 0 {
		log.WithField("sessions", n).Info("[CRON] Истёкшие сессии закрыты")
	}
}
