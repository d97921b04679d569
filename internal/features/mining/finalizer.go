// Package mining — finalizer.go: условная финализация и начисление.
package mining

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/arx-miner/internal/common"
	"serotonyl.ru/arx-miner/internal/features/economy"
)

// outcome — результат одной попытки финализации.
type outcome struct {
	Changed         bool  // Наша запись закрыла сессию
	Credited        int64 // Реально зачислено в леджер
	BackfillPending bool  // Сессия закрыта, начисление ждёт бэкфилла
}

// finalizer — общий путь закрытия сессии для stop, тика, восстановления и sweep.
type finalizer struct {
	store    SessionStore
	ledger   Ledger
	failures FailureSink
}

// finalize закрывает сессию и, только если закрыли именно мы, начисляет payable.
// Ошибка возвращается лишь когда не удалась сама запись в хранилище:
// тогда сессия осталась активной и её подберёт восстановление.
func (f *finalizer) finalize(ctx context.Context, s *Session, payable int64, now time.Time, source string) (outcome, error) {
	if payable < 0 {
		payable = 0
	}
	changed, err := f.store.ConditionalFinalize(ctx, s.ID, payable, common.DBTime(now))
	if err != nil {
		finalizeTotal.WithLabelValues(source, "error").Inc()
		return outcome{}, err
	}
	if !changed {
		finalizeTotal.WithLabelValues(source, "lost_race").Inc()
		log.WithFields(log.Fields{
			"user_id":    s.UserID,
			"session_id": s.ID,
			"source":     source,
		}).Debug("Сессию уже закрыл другой клиент, начисление пропущено")
		return outcome{}, nil
	}
	finalizeTotal.WithLabelValues(source, "changed").Inc()

	credited, pending := f.credit(ctx, economy.CreditRequest{
		UserID:      s.UserID,
		SessionID:   s.ID,
		WindowStart: s.StartedAt,
		Amount:      payable,
		Type:        source,
	})
	return outcome{Changed: true, Credited: credited, BackfillPending: pending}, nil
}

// credit проводит начисление. Вызывать только после выигранного CAS.
// Падение леджера здесь уже не откатить: сохраняем запись для бэкфилла.
func (f *finalizer) credit(ctx context.Context, req economy.CreditRequest) (credited int64, pending bool) {
	if req.Amount <= 0 {
		return 0, false
	}

	err := f.ledger.Credit(ctx, req)
	switch {
	case err == nil:
		creditedPoints.WithLabelValues(req.Type).Add(float64(req.Amount))
		log.WithFields(log.Fields{
			"user_id":    req.UserID,
			"session_id": req.SessionID,
			"amount":     req.Amount,
			"source":     req.Type,
		}).Info("Поинты за майнинг начислены")
		return req.Amount, false
	case errors.Is(err, common.ErrDuplicateCredit):
		// Окно уже оплачено раньше: баланс не трогаем
		return 0, false
	}

	creditFailures.Inc()
	fields := log.Fields{
		"user_id":           req.UserID,
		"session_id":        req.SessionID,
		"window_start":      req.WindowStart,
		"amount":            req.Amount,
		"source":            req.Type,
		"backfill_required": true,
	}
	log.WithFields(fields).WithError(err).Error("Сессия закрыта, но начисление не прошло: требуется бэкфилл")

	if f.failures != nil {
		if rerr := f.failures.RecordCreditFailure(ctx, req, err); rerr != nil {
			log.WithFields(fields).WithError(rerr).Error("Не удалось сохранить запись для бэкфилла")
		}
	}
	return 0, true
}

// payableFor — сколько платить при закрытии чужой или зависшей сессии:
// расчёт по времени, но не меньше записанного watermark.
func payableFor(s *Session, now time.Time, ratePerHour float64, l Limits) int64 {
	computed := common.FloorPoints(Accrued(s.StartedAt, now, ratePerHour, l))
	return max(computed, s.RecordedPoints)
}

// sessionFields — стандартные поля лога для сессии.
func sessionFields(userID, sessionID uuid.UUID) log.Fields {
	return log.Fields{"user_id": userID, "session_id": sessionID}
}
