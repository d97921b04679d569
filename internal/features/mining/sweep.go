// Package mining — sweep.go: закрытие сессий, истёкших без клиента.
package mining

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/arx-miner/internal/features/economy"
)

// Sweeper оплачивает сессии, окно которых закончилось, пока клиент был закрыт.
type Sweeper struct {
	store  SessionStore
	fin    *finalizer
	limits Limits
	now    func() time.Time
}

// NewSweeper создаёт sweeper.
func NewSweeper(store SessionStore, ledger Ledger, failures FailureSink, limits Limits, now func() time.Time) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		store:  store,
		fin:    &finalizer{store: store, ledger: ledger, failures: failures},
		limits: limits,
		now:    now,
	}
}

// Sweep закрывает истёкшие активные сессии пользователя.
// Платит max(расчёт по времени, watermark); расчёт идёт по текущей скорости.
// Повторный вызов ничего не начисляет: закрытые сессии уже не активны.
func (w *Sweeper) Sweep(ctx context.Context, userID uuid.UUID, ratePerHour float64) (RecoveryReport, error) {
	var report RecoveryReport

	sessions, err := w.store.ListActiveSessions(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("список активных сессий: %w", err)
	}

	now := w.now()
	var errs []error
	for _, s := range sessions {
		if !Expired(s.StartedAt, now, w.limits) {
			continue
		}
		payable := payableFor(s, now, ratePerHour, w.limits)
		out, err := w.fin.finalize(ctx, s, payable, now, economy.TxTypeMiningSweep)
		if err != nil {
			log.WithFields(sessionFields(userID, s.ID)).WithError(err).Warn("Не удалось закрыть истёкшую сессию")
			errs = append(errs, err)
			continue
		}
		report.add(out)
	}

	if report.SessionsReconciled > 0 {
		sweepRecovered.Add(float64(report.RecoveredPoints))
		log.WithFields(log.Fields{
			"user_id":   userID,
			"sessions":  report.SessionsReconciled,
			"recovered": report.RecoveredPoints,
		}).Info("Истёкшие сессии закрыты")
	}
	return report, errors.Join(errs...)
}
