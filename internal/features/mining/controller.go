// Package mining — controller.go: управление сессией одного пользователя.
//
// Состояния: Idle (session == nil) и Active. Переходы:
//
//	Idle   --Start-->        Active
//	Active --Claim-->        Active (окно переякорено)
//	Active --Stop/истечение--> Idle
package mining

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/arx-miner/internal/common"
	"serotonyl.ru/arx-miner/internal/features/boost"
	"serotonyl.ru/arx-miner/internal/features/economy"
)

// finalizeRetryDelay — пауза между попытками закрыть истёкшую сессию,
// если хранилище недоступно. Тикать в базу каждые 500 мс смысла нет.
const finalizeRetryDelay = 30 * time.Second

// Controller владеет сессией пользователя в этом процессе.
// Вызовы из HTTP-хендлеров и цикла тиков сериализуются через mu.
type Controller struct {
	userID uuid.UUID
	store  SessionStore
	fin    *finalizer
	limits Limits
	now    func() time.Time

	mu         sync.Mutex
	rate       boost.Rate
	session    *Session
	watermark  int64     // Последнее целое, которое мы видели записанным
	retryAfter time.Time // До этого момента тик не пытается финализировать
	idleSince  time.Time
}

// TickResult — что произошло за один тик.
type TickResult struct {
	Points    float64 // Текущее значение по времени
	Persisted bool    // Watermark записан в хранилище
	Finalized bool    // Сессия закрыта по истечении окна
	Credited  int64
}

// NewController создаёт контроллер в состоянии Idle со скоростью BaseRate.
func NewController(userID uuid.UUID, store SessionStore, ledger Ledger, failures FailureSink, limits Limits, now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	return &Controller{
		userID:    userID,
		store:     store,
		fin:       &finalizer{store: store, ledger: ledger, failures: failures},
		limits:    limits,
		now:       now,
		rate:      boost.Rate{RatePerHour: limits.BaseRate},
		idleSince: now(),
	}
}

// SetRate применяет новую скорость. Следующий расчёт сразу её учтёт.
func (c *Controller) SetRate(r boost.Rate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate = r
}

// Rate возвращает текущую скорость.
func (c *Controller) Rate() boost.Rate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// Active сообщает, есть ли у контроллера активная сессия.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// IdleSince — когда контроллер последний раз стал Idle (нулевое время, если активен).
func (c *Controller) IdleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return time.Time{}
	}
	return c.idleSince
}

// Start закрывает все активные сессии пользователя и открывает новую.
// Старые сессии оплачиваются как superseded: каждую закрывает CAS,
// поэтому гонка двух start() не приводит к двойному начислению.
func (c *Controller) Start(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	existing, err := c.store.ListActiveSessions(ctx, c.userID)
	if err != nil {
		return nil, fmt.Errorf("список активных сессий: %w", err)
	}
	for _, s := range existing {
		payable := payableFor(s, now, c.rate.RatePerHour, c.limits)
		if c.session != nil && s.ID == c.session.ID {
			// Своя сессия: watermark в памяти мог не дойти до базы
			payable = max(payable, c.watermark)
		}
		if _, err := c.fin.finalize(ctx, s, payable, now, economy.TxTypeMiningSupersede); err != nil {
			return nil, fmt.Errorf("закрытие старой сессии %s: %w", s.ID, err)
		}
	}

	s, err := c.store.CreateSession(ctx, c.userID, common.DBTime(now))
	if err != nil {
		return nil, fmt.Errorf("создание сессии: %w", err)
	}
	c.setSession(s, 0)

	log.WithFields(sessionFields(c.userID, s.ID)).WithFields(log.Fields{
		"rate_per_hour": c.rate.RatePerHour,
		"superseded":    len(existing),
	}).Info("Майнинг запущен")
	return s, nil
}

// Tick пересчитывает начисление и при необходимости пишет watermark
// или закрывает истёкшую сессию. Без активной сессии ничего не делает.
func (c *Controller) Tick(ctx context.Context) (TickResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return TickResult{}, nil
	}
	now := c.now()
	s := c.session
	res := TickResult{Points: Accrued(s.StartedAt, now, c.rate.RatePerHour, c.limits)}

	if Expired(s.StartedAt, now, c.limits) {
		if now.Before(c.retryAfter) {
			return res, nil
		}
		payable := max(common.FloorPoints(res.Points), c.watermark)
		out, err := c.fin.finalize(ctx, s, payable, now, economy.TxTypeMiningExpired)
		if err != nil {
			c.retryAfter = now.Add(finalizeRetryDelay)
			log.WithFields(sessionFields(c.userID, s.ID)).WithError(err).
				Warn("Не удалось закрыть истёкшую сессию, повторим позже")
			return res, fmt.Errorf("финализация истёкшей сессии: %w", err)
		}
		c.clear()
		res.Finalized = out.Changed
		res.Credited = out.Credited
		log.WithFields(sessionFields(c.userID, s.ID)).WithFields(log.Fields{
			"payable":  payable,
			"credited": out.Credited,
			"changed":  out.Changed,
		}).Info("Сессия майнинга завершилась по времени")
		return res, nil
	}

	// Пишем только при смене целой части, а не на каждом тике
	floor := common.FloorPoints(res.Points)
	if floor > c.watermark {
		c.watermark = floor
		if err := c.store.UpdateWatermark(ctx, s.ID, s.StartedAt, floor); err != nil {
			// Следующая запись случится при следующей смене целой части
			watermarkErrors.Inc()
			log.WithFields(sessionFields(c.userID, s.ID)).WithError(err).Warn("Не удалось записать watermark")
			return res, nil
		}
		s.RecordedPoints = floor
		res.Persisted = true
	}
	return res, nil
}

// Claim забирает накопленное, не останавливая майнинг: окно переякоривается на now.
//
// Сначала условный перенос started_at (CAS по старому значению), затем начисление
// с ключом старого окна. Проигравший конкурент получает ErrSessionConflict
// и перечитывает сессию, так что одно окно не оплачивается дважды.
func (c *Controller) Claim(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return 0, common.ErrNoActiveSession
	}
	now := c.now()
	s := c.session
	payable := max(common.FloorPoints(Accrued(s.StartedAt, now, c.rate.RatePerHour, c.limits)), c.watermark)
	if payable <= 0 {
		return 0, common.ErrNothingToClaim
	}

	from, to := s.StartedAt, common.DBTime(now)
	changed, err := c.store.Reanchor(ctx, s.ID, from, to)
	if err != nil {
		return 0, fmt.Errorf("перенос окна: %w", err)
	}
	if !changed {
		c.reload(ctx)
		return 0, common.ErrSessionConflict
	}

	credited, pending := c.fin.credit(ctx, economy.CreditRequest{
		UserID:      c.userID,
		SessionID:   s.ID,
		WindowStart: from,
		Amount:      payable,
		Type:        economy.TxTypeMiningClaim,
	})
	s.StartedAt = to
	s.RecordedPoints = 0
	c.watermark = 0

	if pending {
		return payable, common.ErrCreditDeferred
	}
	log.WithFields(sessionFields(c.userID, s.ID)).WithField("amount", credited).Info("Поинты забраны, майнинг продолжается")
	return credited, nil
}

// Stop закрывает сессию и начисляет накопленное.
// Если хранилище недоступно, сессия остаётся активной и ошибка возвращается.
func (c *Controller) Stop(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return 0, common.ErrNoActiveSession
	}
	now := c.now()
	s := c.session
	payable := max(common.FloorPoints(Accrued(s.StartedAt, now, c.rate.RatePerHour, c.limits)), c.watermark)

	out, err := c.fin.finalize(ctx, s, payable, now, economy.TxTypeMiningStop)
	if err != nil {
		return 0, fmt.Errorf("остановка майнинга: %w", err)
	}
	c.clear()

	fields := sessionFields(c.userID, s.ID)
	if !out.Changed {
		log.WithFields(fields).Info("Сессию уже закрыл другой клиент")
		return 0, nil
	}
	if out.BackfillPending {
		return payable, common.ErrCreditDeferred
	}
	log.WithFields(fields).WithField("amount", out.Credited).Info("Майнинг остановлен")
	return out.Credited, nil
}

// Status считает то, что показывает UI.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Active:           c.session != nil,
		RatePerHour:      c.rate.RatePerHour,
		TotalBoost:       c.rate.TotalBoost,
		MaxSessionPoints: c.limits.MaxSessionPoints(),
	}
	if c.session == nil {
		return st
	}
	now := c.now()
	s := c.session
	id, started := s.ID, s.StartedAt
	st.SessionID = &id
	st.StartedAt = &started
	st.AccruedPoints = Accrued(s.StartedAt, now, c.rate.RatePerHour, c.limits)
	st.DisplayPoints = max(common.FloorPoints(st.AccruedPoints), c.watermark)
	st.RemainingSeconds = max(0, (c.limits.MaxSession - Elapsed(s.StartedAt, now)).Seconds())
	return st
}

// reload перечитывает сессию после проигранной гонки. Вызывать под c.mu.
func (c *Controller) reload(ctx context.Context) {
	sessions, err := c.store.ListActiveSessions(ctx, c.userID)
	if err != nil {
		log.WithField("user_id", c.userID).WithError(err).Warn("Не удалось перечитать сессию")
		return
	}
	for _, s := range sessions {
		if s.ID == c.session.ID {
			c.session.StartedAt = s.StartedAt
			c.session.RecordedPoints = s.RecordedPoints
			c.watermark = s.RecordedPoints
			return
		}
	}
	c.clear()
}

// setSession и clear вызывать под c.mu.
func (c *Controller) setSession(s *Session, watermark int64) {
	if c.session == nil {
		activeSessions.Inc()
	}
	c.session = s
	c.watermark = watermark
	c.retryAfter = time.Time{}
}

func (c *Controller) clear() {
	if c.session != nil {
		activeSessions.Dec()
	}
	c.session = nil
	c.watermark = 0
	c.retryAfter = time.Time{}
	c.idleSince = c.now()
}
