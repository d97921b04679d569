// Package mining — service.go: реестр контроллеров и цикл тиков.
package mining

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/arx-miner/internal/common"
)

const (
	// idleTTL — сколько держим контроллер без сессии, прежде чем выгрузить.
	idleTTL = 30 * time.Minute
	// sweepBatch — сколько пользователей sweep обрабатывает за один проход.
	sweepBatch = 500
)

// Service — точка входа для HTTP и планировщика.
type Service struct {
	store    SessionStore
	ledger   Ledger
	failures FailureSink
	rates    RateSource
	streaks  StreakToucher
	limits   Limits
	tick     time.Duration
	now      func() time.Time

	resolver *Resolver
	sweeper  *Sweeper

	mu      sync.Mutex
	entries map[uuid.UUID]*entry
}

type entry struct {
	ctrl   *Controller
	refs   int    // Сколько запросов сейчас держат контроллер
	cancel func() // Отписка от изменений скорости; nil, пока не подписаны
}

// Deps — зависимости сервиса.
type Deps struct {
	Store    SessionStore
	Ledger   Ledger
	Failures FailureSink
	Rates    RateSource
	Streaks  StreakToucher // Может быть nil
	Limits   Limits
	Tick     time.Duration
	Now      func() time.Time
}

// NewService создаёт сервис майнинга.
func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Tick <= 0 {
		d.Tick = 500 * time.Millisecond
	}
	return &Service{
		store:    d.Store,
		ledger:   d.Ledger,
		failures: d.Failures,
		rates:    d.Rates,
		streaks:  d.Streaks,
		limits:   d.Limits,
		tick:     d.Tick,
		now:      d.Now,
		resolver: NewResolver(d.Store, d.Ledger, d.Failures, d.Limits, d.Now),
		sweeper:  NewSweeper(d.Store, d.Ledger, d.Failures, d.Limits, d.Now),
		entries:  make(map[uuid.UUID]*entry),
	}
}

// Start запускает майнинг. Старт продлевает дневной стрик,
// поэтому после него скорость пересчитывается.
func (s *Service) Start(ctx context.Context, userID uuid.UUID) (*Session, error) {
	e := s.acquire(ctx, userID)
	defer s.release(e)

	sess, err := e.ctrl.Start(ctx)
	if err != nil {
		return nil, err
	}
	if s.streaks != nil {
		if _, err := s.streaks.Touch(ctx, userID); err != nil {
			log.WithField("user_id", userID).WithError(err).Warn("Не удалось обновить стрик")
		} else {
			e.ctrl.SetRate(s.rates.Refresh(ctx, userID))
		}
	}
	return sess, nil
}

// Stop останавливает майнинг и возвращает начисленное.
func (s *Service) Stop(ctx context.Context, userID uuid.UUID) (int64, error) {
	e := s.acquire(ctx, userID)
	defer s.release(e)
	return e.ctrl.Stop(ctx)
}

// Claim забирает накопленное без остановки майнинга.
func (s *Service) Claim(ctx context.Context, userID uuid.UUID) (int64, error) {
	e := s.acquire(ctx, userID)
	defer s.release(e)
	return e.ctrl.Claim(ctx)
}

// Status возвращает состояние майнинга для UI.
func (s *Service) Status(ctx context.Context, userID uuid.UUID) Status {
	e := s.acquire(ctx, userID)
	defer s.release(e)
	return e.ctrl.Status()
}

// RunStartupRecovery — вызывается при входе пользователя:
// сначала sweep истёкших сессий, затем разбор оставшихся.
func (s *Service) RunStartupRecovery(ctx context.Context, userID uuid.UUID) (RecoveryReport, error) {
	e := s.acquire(ctx, userID)
	defer s.release(e)

	rate := e.ctrl.Rate().RatePerHour
	swept, sweepErr := s.sweeper.Sweep(ctx, userID, rate)
	report, resolveErr := s.resolver.Resolve(ctx, e.ctrl)

	report.RecoveredPoints += swept.RecoveredPoints
	report.SessionsReconciled += swept.SessionsReconciled
	report.BackfillPending += swept.BackfillPending
	if report.RecoveredPoints > 0 {
		report.Notice = fmt.Sprintf("You earned %s from a previous session", common.FormatPoints(report.RecoveredPoints))
	}
	return report, errors.Join(sweepErr, resolveErr)
}

// SweepExpired — серверный проход по всем истёкшим сессиям (для cron).
// Возвращает число закрытых сессий.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.limits.MaxSession)
	users, err := s.store.ListUsersWithExpiredSessions(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}

	total := 0
	var errs []error
	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}
		rate := s.rates.Current(ctx, userID).RatePerHour
		rep, err := s.sweeper.Sweep(ctx, userID, rate)
		total += rep.SessionsReconciled
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// Run крутит цикл тиков, пока не отменён ctx.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	log.WithField("interval", s.tick).Info("Цикл майнинга запущен")
	for {
		select {
		case <-ctx.Done():
			log.Info("Цикл майнинга остановлен")
			return
		case <-ticker.C:
			s.TickAll(ctx)
		}
	}
}

// TickAll выполняет один тик для всех активных контроллеров
// и выгружает давно простаивающие.
func (s *Service) TickAll(ctx context.Context) {
	for _, e := range s.snapshot() {
		if !e.ctrl.Active() {
			continue
		}
		if _, err := e.ctrl.Tick(ctx); err != nil {
			log.WithField("user_id", e.ctrl.userID).WithError(err).Debug("Тик завершился с ошибкой")
		}
	}
	s.evictIdle()
}

// acquire достаёт контроллер пользователя, создавая его при необходимости.
func (s *Service) acquire(ctx context.Context, userID uuid.UUID) *entry {
	s.mu.Lock()
	e, ok := s.entries[userID]
	if ok {
		e.refs++
		s.mu.Unlock()
		return e
	}
	s.mu.Unlock()

	// Скорость читаем без блокировки реестра: это поход в базу
	rate := s.rates.Current(ctx, userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[userID]; ok {
		e.refs++
		return e
	}
	ctrl := NewController(userID, s.store, s.ledger, s.failures, s.limits, s.now)
	ctrl.SetRate(rate)
	e = &entry{ctrl: ctrl, refs: 1}
	s.entries[userID] = e
	return e
}

// release отпускает контроллер и синхронизирует подписку на скорость:
// подписаны только контроллеры с активной сессией.
func (s *Service) release(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.refs--
	s.syncSubscription(e)
}

// syncSubscription вызывать под s.mu.
func (s *Service) syncSubscription(e *entry) {
	active := e.ctrl.Active()
	switch {
	case active && e.cancel == nil:
		e.cancel = s.rates.Subscribe(e.ctrl.userID, e.ctrl.SetRate)
	case !active && e.cancel != nil:
		e.cancel()
		e.cancel = nil
	}
}

func (s *Service) snapshot() []*entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

func (s *Service) evictIdle() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		s.syncSubscription(e)
		if e.refs > 0 {
			continue
		}
		idle := e.ctrl.IdleSince()
		if !idle.IsZero() && now.Sub(idle) > idleTTL {
			delete(s.entries, id)
		}
	}
}
