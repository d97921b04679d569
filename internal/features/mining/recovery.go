// Package mining — recovery.go: восстановление после падения и дублей сессий.
package mining

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/arx-miner/internal/common"
	"serotonyl.ru/arx-miner/internal/features/economy"
)

// Resolver сводит активные сессии пользователя к не более чем одной.
type Resolver struct {
	store  SessionStore
	fin    *finalizer
	limits Limits
	now    func() time.Time
}

// NewResolver создаёт резолвер восстановления.
func NewResolver(store SessionStore, ledger Ledger, failures FailureSink, limits Limits, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		store:  store,
		fin:    &finalizer{store: store, ledger: ledger, failures: failures},
		limits: limits,
		now:    now,
	}
}

// Resolve вызывается при старте клиента:
//   - нет активных сессий — контроллер в Idle;
//   - одна — продолжаем её, подтянув watermark к расчёту по времени;
//   - несколько — все, кроме самой новой, закрываются и оплачиваются.
//
// Истёкшая сессия закрывается сразу, а не продолжается.
// Закрытие каждой сессии идёт через CAS, так что два клиента,
// восстанавливающихся одновременно, не оплатят одну сессию дважды.
//
// Контроллер заблокирован на всё время разбора: start/stop/claim и тик
// того же пользователя ждут, иначе прочитанный список сессий устареет
// раньше, чем мы подхватим самую новую.
func (r *Resolver) Resolve(ctx context.Context, c *Controller) (RecoveryReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var report RecoveryReport

	sessions, err := r.store.ListActiveSessions(ctx, c.userID)
	if err != nil {
		return report, fmt.Errorf("список активных сессий: %w", err)
	}
	if len(sessions) == 0 {
		c.clear()
		return report, nil
	}

	now := r.now()
	rate := c.rate.RatePerHour
	newest, older := sessions[0], sessions[1:]

	var errs []error
	for _, s := range older {
		if err := r.close(ctx, s, now, rate, &report); err != nil {
			errs = append(errs, err)
		}
	}

	if Expired(newest.StartedAt, now, r.limits) {
		if err := r.close(ctx, newest, now, rate, &report); err != nil {
			errs = append(errs, err)
		}
		c.clear()
		return report, errors.Join(errs...)
	}

	watermark := newest.RecordedPoints
	computed := common.FloorPoints(Accrued(newest.StartedAt, now, rate, r.limits))
	if computed > watermark {
		if err := r.store.UpdateWatermark(ctx, newest.ID, newest.StartedAt, computed); err != nil {
			watermarkErrors.Inc()
			log.WithFields(sessionFields(newest.UserID, newest.ID)).WithError(err).Warn("Не удалось подтянуть watermark при восстановлении")
		} else {
			watermark = computed
			newest.RecordedPoints = computed
		}
	}
	c.setSession(newest, watermark)
	report.Resumed = newest

	log.WithFields(sessionFields(newest.UserID, newest.ID)).WithFields(log.Fields{
		"watermark":  watermark,
		"reconciled": report.SessionsReconciled,
	}).Info("Сессия майнинга восстановлена")
	return report, errors.Join(errs...)
}

func (r *Resolver) close(ctx context.Context, s *Session, now time.Time, rate float64, report *RecoveryReport) error {
	out, err := r.fin.finalize(ctx, s, payableFor(s, now, rate, r.limits), now, economy.TxTypeMiningRecovery)
	if err != nil {
		log.WithFields(sessionFields(s.UserID, s.ID)).WithError(err).Warn("Не удалось закрыть сессию при восстановлении")
		return err
	}
	report.add(out)
	return nil
}

func (r *RecoveryReport) add(out outcome) {
	if !out.Changed {
		return
	}
	r.SessionsReconciled++
	r.RecoveredPoints += out.Credited
	if out.BackfillPending {
		r.BackfillPending++
	}
}
