// Package boost — watcher.go пересчитывает скорость при изменении источников.
//
// Push-подписок у источников нет, поэтому Watcher опрашивает их для
// пользователей с подписчиками и уведомляет только при изменении скорости.
// Истечение буста арены ловится отдельным таймером, без ожидания опроса.
package boost

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Watcher хранит последнюю скорость по пользователям и раздаёт обновления.
type Watcher struct {
	feeds    Feeds
	streaks  StreakSource
	composer *Composer
	interval time.Duration
	now      func() time.Time

	mu    sync.Mutex
	users map[uuid.UUID]*watch
}

type watch struct {
	state  State
	rate   Rate
	loaded bool
	subs   map[int]func(Rate)
	nextID int
	expiry *time.Timer
}

// NewWatcher создаёт наблюдателя. now можно подменить в тестах.
func NewWatcher(feeds Feeds, streaks StreakSource, composer *Composer, interval time.Duration, now func() time.Time) *Watcher {
	if now == nil {
		now = time.Now
	}
	return &Watcher{
		feeds:    feeds,
		streaks:  streaks,
		composer: composer,
		interval: interval,
		now:      now,
		users:    make(map[uuid.UUID]*watch),
	}
}

// Current возвращает последнюю известную скорость пользователя.
// Если пользователь ещё не загружался — читает источники сейчас.
func (w *Watcher) Current(ctx context.Context, userID uuid.UUID) Rate {
	w.mu.Lock()
	wt, ok := w.users[userID]
	if ok && wt.loaded {
		rate := wt.rate
		w.mu.Unlock()
		return rate
	}
	w.mu.Unlock()

	return w.Refresh(ctx, userID)
}

// Refresh перечитывает источники и уведомляет подписчиков, если скорость изменилась.
func (w *Watcher) Refresh(ctx context.Context, userID uuid.UUID) Rate {
	state := Load(ctx, w.feeds, w.streaks, userID)
	return w.apply(userID, state)
}

// Subscribe регистрирует колбэк изменения скорости.
// Возвращает функцию отписки; после отписки последнего подписчика
// пользователь перестаёт опрашиваться.
func (w *Watcher) Subscribe(userID uuid.UUID, fn func(Rate)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()

	wt := w.get(userID)
	id := wt.nextID
	wt.nextID++
	wt.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			wt, ok := w.users[userID]
			if !ok {
				return
			}
			delete(wt.subs, id)
			if len(wt.subs) == 0 {
				if wt.expiry != nil {
					wt.expiry.Stop()
				}
				delete(w.users, userID)
			}
		})
	}
}

// Run опрашивает источники с заданным интервалом, пока не отменён ctx.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.WithField("interval", w.interval).Info("Наблюдатель бустов запущен")
	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			log.Info("Наблюдатель бустов остановлен")
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll выполняет один проход опроса по всем пользователям с подписчиками.
func (w *Watcher) Poll(ctx context.Context) {
	for _, userID := range w.watched() {
		if ctx.Err() != nil {
			return
		}
		w.Refresh(ctx, userID)
	}
}

// recompose пересчитывает скорость по закэшированному State без похода в БД.
func (w *Watcher) recompose(userID uuid.UUID) {
	w.mu.Lock()
	wt, ok := w.users[userID]
	if !ok {
		w.mu.Unlock()
		return
	}
	state := wt.state
	w.mu.Unlock()

	w.apply(userID, state)
}

func (w *Watcher) apply(userID uuid.UUID, state State) Rate {
	now := w.now()
	rate := w.composer.Compose(state, now)

	w.mu.Lock()
	wt := w.get(userID)
	changed := !wt.loaded || wt.rate != rate
	wt.state = state
	wt.rate = rate
	wt.loaded = true

	var subs []func(Rate)
	if changed {
		for _, fn := range wt.subs {
			subs = append(subs, fn)
		}
	}
	w.armExpiry(userID, wt, state, now)
	if len(wt.subs) == 0 {
		// Без подписчиков кэш не держим: Current просто прочитает заново
		if wt.expiry != nil {
			wt.expiry.Stop()
		}
		delete(w.users, userID)
	}
	w.mu.Unlock()

	if changed {
		log.WithFields(log.Fields{
			"user_id":       userID,
			"total_boost":   rate.TotalBoost,
			"rate_per_hour": rate.RatePerHour,
		}).Debug("Скорость майнинга пересчитана")
	}
	for _, fn := range subs {
		fn(rate)
	}
	return rate
}

// armExpiry ставит таймер на ближайшее истечение буста арены,
// если оно наступит раньше следующего опроса. Вызывать под w.mu.
func (w *Watcher) armExpiry(userID uuid.UUID, wt *watch, state State, now time.Time) {
	if wt.expiry != nil {
		wt.expiry.Stop()
		wt.expiry = nil
	}
	next, ok := NextExpiry(state, now)
	if !ok {
		return
	}
	d := next.Sub(now)
	if d >= w.interval {
		return
	}
	wt.expiry = time.AfterFunc(d, func() { w.recompose(userID) })
}

func (w *Watcher) get(userID uuid.UUID) *watch {
	wt, ok := w.users[userID]
	if !ok {
		wt = &watch{subs: make(map[int]func(Rate))}
		w.users[userID] = wt
	}
	return wt
}

func (w *Watcher) watched() []uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(w.users))
	for id, wt := range w.users {
		if len(wt.subs) > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, wt := range w.users {
		if wt.expiry != nil {
			wt.expiry.Stop()
		}
	}
}
