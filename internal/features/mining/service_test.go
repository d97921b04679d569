package mining

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/arx-miner/internal/features/boost"
	"serotonyl.ru/arx-miner/internal/features/streak"
)

type countingStreaks struct {
	mu      sync.Mutex
	touched map[uuid.UUID]int
}

func (c *countingStreaks) Touch(_ context.Context, userID uuid.UUID) (*streak.Streak, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.touched == nil {
		c.touched = map[uuid.UUID]int{}
	}
	c.touched[userID]++
	return &streak.Streak{UserID: userID, CurrentStreak: c.touched[userID]}, nil
}

func (h *harness) service(rates *fixedRates, streaks StreakToucher) *Service {
	return NewService(Deps{
		Store:    h.store,
		Ledger:   h.ledger,
		Failures: h.failures,
		Rates:    rates,
		Streaks:  streaks,
		Limits:   DefaultLimits,
		Tick:     time.Millisecond,
		Now:      h.clock.Now,
	})
}

func TestServiceStartStop(t *testing.T) {
	h := newHarness()
	rates := newFixedRates(10)
	streaks := &countingStreaks{}
	svc := h.service(rates, streaks)
	ctx := context.Background()

	_, err := svc.Start(ctx, h.user)
	require.NoError(t, err)
	assert.Equal(t, 1, streaks.touched[h.user])
	assert.Equal(t, 1, rates.subscribers(), "активный контроллер подписан на скорость")
	assert.True(t, svc.Status(ctx, h.user).Active)

	h.clock.Advance(90 * time.Minute)
	got, err := svc.Stop(ctx, h.user)
	require.NoError(t, err)
	assert.Equal(t, int64(15), got)
	assert.Zero(t, rates.subscribers(), "после остановки подписка снята")
	assert.False(t, svc.Status(ctx, h.user).Active)
}

func TestServiceRateChangeReachesController(t *testing.T) {
	h := newHarness()
	rates := newFixedRates(10)
	svc := h.service(rates, nil)
	ctx := context.Background()

	_, err := svc.Start(ctx, h.user)
	require.NoError(t, err)

	rates.set(boost.Rate{TotalBoost: 500, RatePerHour: 60})
	h.clock.Advance(time.Hour)

	st := svc.Status(ctx, h.user)
	assert.Equal(t, 60.0, st.RatePerHour)
	assert.Equal(t, 500.0, st.TotalBoost)
	assert.Equal(t, int64(60), st.DisplayPoints)
}

func TestServiceStartupRecoveryNotice(t *testing.T) {
	h := newHarness()
	svc := h.service(newFixedRates(10), nil)
	now := h.clock.Now()
	h.store.put(h.user, now.Add(-12*time.Hour), 0)
	resumed := h.store.put(h.user, now.Add(-time.Hour), 0)

	report, err := svc.RunStartupRecovery(context.Background(), h.user)
	require.NoError(t, err)

	assert.Equal(t, int64(80), report.RecoveredPoints)
	assert.Equal(t, 1, report.SessionsReconciled)
	assert.Equal(t, "You earned 80 ARX-P from a previous session", report.Notice)
	require.NotNil(t, report.Resumed)
	assert.Equal(t, resumed.ID, report.Resumed.ID)
	assert.True(t, svc.Status(context.Background(), h.user).Active)

	// Повторный вызов (перемонтирование клиента) ничего не доначисляет
	again, err := svc.RunStartupRecovery(context.Background(), h.user)
	require.NoError(t, err)
	assert.Zero(t, again.RecoveredPoints)
	assert.Empty(t, again.Notice)
	assert.Equal(t, int64(80), h.ledger.balance(h.user))
}

func TestServiceSweepExpired(t *testing.T) {
	h := newHarness()
	svc := h.service(newFixedRates(10), nil)
	now := h.clock.Now()

	other := uuid.New()
	h.store.put(h.user, now.Add(-9*time.Hour), 0)
	h.store.put(other, now.Add(-30*time.Hour), 200)
	h.store.put(other, now.Add(-time.Hour), 0)

	n, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(80), h.ledger.balance(h.user))
	assert.Equal(t, int64(200), h.ledger.balance(other))

	n, err = svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestServiceTickAllFinalizesAndEvicts(t *testing.T) {
	h := newHarness()
	rates := newFixedRates(60)
	svc := h.service(rates, nil)
	ctx := context.Background()

	_, err := svc.Start(ctx, h.user)
	require.NoError(t, err)

	h.clock.Advance(8 * time.Hour)
	svc.TickAll(ctx)
	assert.Equal(t, int64(480), h.ledger.balance(h.user))
	assert.Zero(t, rates.subscribers())

	h.clock.Advance(idleTTL + time.Second)
	svc.TickAll(ctx)
	svc.mu.Lock()
	assert.Empty(t, svc.entries)
	svc.mu.Unlock()
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	h := newHarness()
	svc := h.service(newFixedRates(10), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}
}
