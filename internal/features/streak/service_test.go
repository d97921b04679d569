package streak

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	rows      map[uuid.UUID]*Streak
	brokeFrom time.Time
}

func (m *memStore) GetByUserID(_ context.Context, userID uuid.UUID) (*Streak, error) {
	s, ok := m.rows[userID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) Touch(_ context.Context, userID uuid.UUID, today time.Time) (*Streak, error) {
	s, ok := m.rows[userID]
	if !ok {
		s = &Streak{UserID: userID}
		m.rows[userID] = s
	}
	s.CurrentStreak = NextStreak(s.CurrentStreak, s.LastActiveDate, today)
	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	d := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	s.LastActiveDate = &d
	cp := *s
	return &cp, nil
}

func (m *memStore) BreakStale(_ context.Context, yesterday time.Time) (int64, error) {
	m.brokeFrom = yesterday
	var n int64
	for _, s := range m.rows {
		if s.CurrentStreak > 0 && (s.LastActiveDate == nil || s.LastActiveDate.Before(yesterday)) {
			s.CurrentStreak = 0
			n++
		}
	}
	return n, nil
}

func TestServiceTouchAndDays(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := &memStore{rows: map[uuid.UUID]*Streak{}}
	svc := NewService(store, time.UTC, func() time.Time { return clock })
	user := uuid.New()

	days, err := svc.Days(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, days)

	for i := 0; i < 3; i++ {
		_, err := svc.Touch(ctx, user)
		require.NoError(t, err)
		_, err = svc.Touch(ctx, user) // повторный старт в тот же день
		require.NoError(t, err)
		clock = clock.Add(24 * time.Hour)
	}

	// Сейчас 13-е, последний активный день — 12-е: серия ещё действует
	days, err = svc.Days(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 3, days)

	// Пропустили 13-е
	clock = clock.Add(24 * time.Hour)
	days, err = svc.Days(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, days)
}

func TestServiceDailyReset(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 3, 10, 0, 0, 5, 0, time.UTC)
	active, stale := uuid.New(), uuid.New()
	store := &memStore{rows: map[uuid.UUID]*Streak{
		active: {UserID: active, CurrentStreak: 4, LastActiveDate: day(2026, 3, 9)},
		stale:  {UserID: stale, CurrentStreak: 9, LastActiveDate: day(2026, 3, 7)},
	}}
	svc := NewService(store, time.UTC, func() time.Time { return clock })

	require.NoError(t, svc.DailyReset(ctx))
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), store.brokeFrom)
	assert.Equal(t, 4, store.rows[active].CurrentStreak)
	assert.Zero(t, store.rows[stale].CurrentStreak)
}
