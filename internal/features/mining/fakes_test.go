package mining

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/arx-miner/internal/common"
	"serotonyl.ru/arx-miner/internal/features/boost"
	"serotonyl.ru/arx-miner/internal/features/economy"
)

var errStoreDown = errors.New("store down")

// fakeClock — управляемые часы для детерминированных тестов.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memSessions повторяет семантику Repository, включая условные UPDATE.
type memSessions struct {
	mu              sync.Mutex
	rows            map[uuid.UUID]*Session
	finalizeErr     error
	watermarkErr    error
	watermarkWrites int
	afterList       func() // Вызывается после чтения активных сессий, вне m.mu
}

func newMemSessions() *memSessions {
	return &memSessions{rows: map[uuid.UUID]*Session{}}
}

func (m *memSessions) put(userID uuid.UUID, startedAt time.Time, recorded int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &Session{ID: uuid.New(), UserID: userID, StartedAt: startedAt, IsActive: true, RecordedPoints: recorded}
	m.rows[s.ID] = s
	cp := *s
	return &cp
}

func (m *memSessions) get(id uuid.UUID) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

func (m *memSessions) CreateSession(_ context.Context, userID uuid.UUID, startedAt time.Time) (*Session, error) {
	return m.put(userID, startedAt, 0), nil
}

func (m *memSessions) ConditionalFinalize(_ context.Context, id uuid.UUID, payable int64, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalizeErr != nil {
		return false, m.finalizeErr
	}
	s, ok := m.rows[id]
	if !ok || !s.IsActive {
		return false, nil
	}
	s.IsActive = false
	s.EndedAt = &now
	s.RecordedPoints = payable
	return true, nil
}

func (m *memSessions) UpdateWatermark(_ context.Context, id uuid.UUID, windowStart time.Time, points int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watermarkErr != nil {
		return m.watermarkErr
	}
	m.watermarkWrites++
	if s, ok := m.rows[id]; ok && s.IsActive && s.StartedAt.Equal(windowStart) {
		s.RecordedPoints = points
	}
	return nil
}

func (m *memSessions) ListActiveSessions(_ context.Context, userID uuid.UUID) ([]*Session, error) {
	m.mu.Lock()
	var out []*Session
	for _, s := range m.rows {
		if s.UserID == userID && s.IsActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	hook := m.afterList
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if hook != nil {
		hook()
	}
	return out, nil
}

func (m *memSessions) Reanchor(_ context.Context, id uuid.UUID, from, to time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok || !s.IsActive || !s.StartedAt.Equal(from) {
		return false, nil
	}
	s.StartedAt = to
	s.RecordedPoints = 0
	return true, nil
}

func (m *memSessions) ListUsersWithExpiredSessions(_ context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, s := range m.rows {
		if s.IsActive && !s.StartedAt.After(before) && !seen[s.UserID] && len(out) < limit {
			seen[s.UserID] = true
			out = append(out, s.UserID)
		}
	}
	return out, nil
}

// memLedger — идемпотентный леджер в памяти.
type memLedger struct {
	mu       sync.Mutex
	err      error
	keys     map[string]bool
	balances map[uuid.UUID]int64
	credits  []economy.CreditRequest
}

func newMemLedger() *memLedger {
	return &memLedger{keys: map[string]bool{}, balances: map[uuid.UUID]int64{}}
}

func (l *memLedger) Credit(_ context.Context, req economy.CreditRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	if l.keys[req.Key()] {
		return common.ErrDuplicateCredit
	}
	l.keys[req.Key()] = true
	l.balances[req.UserID] += req.Amount
	l.credits = append(l.credits, req)
	return nil
}

func (l *memLedger) balance(userID uuid.UUID) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

func (l *memLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.credits)
}

// memFailures запоминает упавшие начисления.
type memFailures struct {
	mu   sync.Mutex
	reqs []economy.CreditRequest
}

func (f *memFailures) RecordCreditFailure(_ context.Context, req economy.CreditRequest, _ error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return nil
}

// fixedRates — RateSource с одной скоростью на всех.
type fixedRates struct {
	mu   sync.Mutex
	rate boost.Rate
	subs map[int]func(boost.Rate)
	next int
}

func newFixedRates(ratePerHour float64) *fixedRates {
	return &fixedRates{rate: boost.Rate{RatePerHour: ratePerHour}, subs: map[int]func(boost.Rate){}}
}

func (f *fixedRates) Current(context.Context, uuid.UUID) boost.Rate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate
}

func (f *fixedRates) Refresh(ctx context.Context, userID uuid.UUID) boost.Rate {
	return f.Current(ctx, userID)
}

func (f *fixedRates) Subscribe(_ uuid.UUID, fn func(boost.Rate)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fixedRates) set(r boost.Rate) {
	f.mu.Lock()
	f.rate = r
	subs := make([]func(boost.Rate), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(r)
	}
}

func (f *fixedRates) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type harness struct {
	clock    *fakeClock
	store    *memSessions
	ledger   *memLedger
	failures *memFailures
	user     uuid.UUID
}

func newHarness() *harness {
	return &harness{
		clock:    newClock(),
		store:    newMemSessions(),
		ledger:   newMemLedger(),
		failures: &memFailures{},
		user:     uuid.New(),
	}
}

func (h *harness) controller(ratePerHour float64) *Controller {
	c := NewController(h.user, h.store, h.ledger, h.failures, DefaultLimits, h.clock.Now)
	c.SetRate(boost.Rate{RatePerHour: ratePerHour})
	return c
}
