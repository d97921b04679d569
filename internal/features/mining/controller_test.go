package mining

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/arx-miner/internal/common"
	"serotonyl.ru/arx-miner/internal/features/boost"
	"serotonyl.ru/arx-miner/internal/features/economy"
)

func TestStartCreatesFreshSession(t *testing.T) {
	h := newHarness()
	c := h.controller(10)

	s, err := c.Start(context.Background())
	require.NoError(t, err)

	assert.True(t, c.Active())
	row := h.store.get(s.ID)
	assert.True(t, row.IsActive)
	assert.Zero(t, row.RecordedPoints)
	assert.Equal(t, h.clock.Now(), row.StartedAt)
}

func TestStartSupersedesExistingSessions(t *testing.T) {
	h := newHarness()
	old := h.store.put(h.user, h.clock.Now().Add(-2*time.Hour), 0)
	c := h.controller(10)

	s, err := c.Start(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, old.ID, s.ID)
	assert.False(t, h.store.get(old.ID).IsActive)
	assert.Equal(t, int64(20), h.ledger.balance(h.user), "старая сессия оплачена, а не выброшена")
	require.Len(t, h.ledger.credits, 1)
	assert.Equal(t, economy.TxTypeMiningSupersede, h.ledger.credits[0].Type)
}

func TestRestartPaysInMemoryWatermark(t *testing.T) {
	h := newHarness()
	c := h.controller(60)
	ctx := context.Background()

	first, err := c.Start(ctx)
	require.NoError(t, err)

	// Watermark 30 остался только в памяти, затем буст пропал
	h.store.watermarkErr = errStoreDown
	h.clock.Advance(30 * time.Minute)
	_, err = c.Tick(ctx)
	require.NoError(t, err)
	require.Zero(t, h.store.get(first.ID).RecordedPoints)
	c.SetRate(boost.Rate{RatePerHour: 10})

	second, err := c.Start(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	require.Len(t, h.ledger.credits, 1)
	assert.Equal(t, int64(30), h.ledger.credits[0].Amount, "как при stop: не меньше показанного")
	assert.Equal(t, economy.TxTypeMiningSupersede, h.ledger.credits[0].Type)
}

func TestClaimTwiceWithoutElapsedCreditsNothing(t *testing.T) {
	h := newHarness()
	c := h.controller(10)
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)
	h.clock.Advance(time.Hour)

	got, err := c.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)

	got, err = c.Claim(ctx)
	assert.ErrorIs(t, err, common.ErrNothingToClaim)
	assert.Zero(t, got)
	assert.Equal(t, int64(10), h.ledger.balance(h.user))
}

func TestClaimReanchorsWindow(t *testing.T) {
	h := newHarness()
	c := h.controller(37)
	ctx := context.Background()

	s, err := c.Start(ctx)
	require.NoError(t, err)
	h.clock.Advance(30 * time.Minute)

	got, err := c.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(18), got, "floor(18.5)")

	st := c.Status()
	assert.True(t, st.Active)
	assert.Zero(t, st.AccruedPoints)
	assert.Zero(t, st.DisplayPoints)

	row := h.store.get(s.ID)
	assert.True(t, row.IsActive, "claim не останавливает майнинг")
	assert.Zero(t, row.RecordedPoints)
	assert.Equal(t, h.clock.Now(), row.StartedAt)

	// Следующее окно той же сессии — отдельное начисление
	h.clock.Advance(time.Hour)
	got, err = c.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(37), got)
	assert.Equal(t, int64(55), h.ledger.balance(h.user))
	assert.Equal(t, 2, h.ledger.count())
}

func TestConcurrentClaimCreditsOnce(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	c1, c2 := h.controller(10), h.controller(10)

	_, err := c1.Start(ctx)
	require.NoError(t, err)
	// Второй клиент того же пользователя подхватывает сессию при загрузке
	_, err = h.resolver().Resolve(ctx, c2)
	require.NoError(t, err)
	h.clock.Advance(time.Hour)

	var wg sync.WaitGroup
	results := make([]int64, 2)
	errs := make([]error, 2)
	for i, c := range []*Controller{c1, c2} {
		wg.Add(1)
		go func(i int, c *Controller) {
			defer wg.Done()
			results[i], errs[i] = c.Claim(ctx)
		}(i, c)
	}
	wg.Wait()

	assert.Equal(t, int64(10), results[0]+results[1])
	conflicts := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, common.ErrSessionConflict)
			conflicts++
		}
	}
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, 1, h.ledger.count())

	// Проигравший перечитал окно и дальше считает от нового якоря
	assert.Zero(t, c1.Status().DisplayPoints)
	assert.Zero(t, c2.Status().DisplayPoints)
}

func TestConcurrentStopCreditsOnce(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	c1, c2 := h.controller(10), h.controller(10)

	_, err := c1.Start(ctx)
	require.NoError(t, err)
	// Второй клиент того же пользователя подхватывает сессию при загрузке
	_, err = h.resolver().Resolve(ctx, c2)
	require.NoError(t, err)
	h.clock.Advance(time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var total int64
	for _, c := range []*Controller{c1, c2} {
		wg.Add(1)
		go func(c *Controller) {
			defer wg.Done()
			got, err := c.Stop(ctx)
			assert.NoError(t, err)
			mu.Lock()
			total += got
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	assert.Equal(t, int64(10), total)
	assert.Equal(t, 1, h.ledger.count())
	assert.False(t, c1.Active())
	assert.False(t, c2.Active())
}

func TestFinalizeTwiceCreditsOnce(t *testing.T) {
	h := newHarness()
	s := h.store.put(h.user, h.clock.Now().Add(-time.Hour), 0)
	f := &finalizer{store: h.store, ledger: h.ledger, failures: h.failures}

	first, err := f.finalize(context.Background(), s, 10, h.clock.Now(), economy.TxTypeMiningStop)
	require.NoError(t, err)
	second, err := f.finalize(context.Background(), s, 10, h.clock.Now(), economy.TxTypeMiningStop)
	require.NoError(t, err)

	assert.True(t, first.Changed)
	assert.False(t, second.Changed)
	assert.Equal(t, int64(10), h.ledger.balance(h.user))
}

func TestTickWritesWatermarkOnlyOnChange(t *testing.T) {
	h := newHarness()
	c := h.controller(60) // 1 поинт в минуту
	ctx := context.Background()

	s, err := c.Start(ctx)
	require.NoError(t, err)

	h.clock.Advance(30 * time.Second)
	res, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, res.Persisted)
	assert.InDelta(t, 0.5, res.Points, 1e-9)

	h.clock.Advance(30 * time.Second)
	res, err = c.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, res.Persisted)

	for i := 0; i < 5; i++ {
		h.clock.Advance(5 * time.Second)
		res, err = c.Tick(ctx)
		require.NoError(t, err)
		assert.False(t, res.Persisted)
	}

	assert.Equal(t, 1, h.store.watermarkWrites)
	assert.Equal(t, int64(1), h.store.get(s.ID).RecordedPoints)
}

func TestTickWatermarkFailureDoesNotBlockAccrual(t *testing.T) {
	h := newHarness()
	c := h.controller(60)
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)
	h.store.watermarkErr = errStoreDown

	h.clock.Advance(2 * time.Minute)
	res, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, res.Persisted)
	assert.Equal(t, int64(2), c.Status().DisplayPoints)
}

func TestTickFinalizesExpiredSession(t *testing.T) {
	h := newHarness()
	c := h.controller(60)
	ctx := context.Background()

	s, err := c.Start(ctx)
	require.NoError(t, err)
	h.clock.Advance(8*time.Hour + time.Minute)

	res, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, res.Finalized)
	assert.Equal(t, int64(480), res.Credited)
	assert.False(t, c.Active())

	row := h.store.get(s.ID)
	assert.False(t, row.IsActive)
	assert.Equal(t, int64(480), row.RecordedPoints)
	require.NotNil(t, row.EndedAt)

	// Больше не тикает
	res, err = c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, TickResult{}, res)
}

func TestTickFinalizeFailureKeepsSessionActive(t *testing.T) {
	h := newHarness()
	c := h.controller(10)
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)
	h.clock.Advance(9 * time.Hour)
	h.store.finalizeErr = errStoreDown

	_, err = c.Tick(ctx)
	require.Error(t, err)
	assert.True(t, c.Active())

	// Хранилище ожило, но повтор только после паузы
	h.store.finalizeErr = nil
	res, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, res.Finalized)

	h.clock.Advance(finalizeRetryDelay)
	res, err = c.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, res.Finalized)
	assert.Equal(t, int64(80), h.ledger.balance(h.user))
}

func TestStopWithoutSession(t *testing.T) {
	h := newHarness()
	c := h.controller(10)

	_, err := c.Stop(context.Background())
	assert.ErrorIs(t, err, common.ErrNoActiveSession)
	_, err = c.Claim(context.Background())
	assert.ErrorIs(t, err, common.ErrNoActiveSession)
}

func TestStopStoreFailureKeepsSessionActive(t *testing.T) {
	h := newHarness()
	c := h.controller(10)
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)
	h.clock.Advance(time.Hour)
	h.store.finalizeErr = errStoreDown

	_, err = c.Stop(ctx)
	require.ErrorIs(t, err, errStoreDown)
	assert.True(t, c.Active())
	assert.Zero(t, h.ledger.count())
}

func TestStopCreditFailureGoesToBackfill(t *testing.T) {
	h := newHarness()
	c := h.controller(10)
	ctx := context.Background()

	s, err := c.Start(ctx)
	require.NoError(t, err)
	h.clock.Advance(time.Hour)
	h.ledger.err = errStoreDown

	got, err := c.Stop(ctx)
	assert.ErrorIs(t, err, common.ErrCreditDeferred)
	assert.Equal(t, int64(10), got)
	assert.False(t, h.store.get(s.ID).IsActive, "CAS уже сработал, сессию не вернуть")

	require.Len(t, h.failures.reqs, 1)
	assert.Equal(t, int64(10), h.failures.reqs[0].Amount)
	assert.Equal(t, s.ID, h.failures.reqs[0].SessionID)
}

func TestStopNeverPaysBelowWatermark(t *testing.T) {
	h := newHarness()
	c := h.controller(60)
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)
	h.clock.Advance(time.Hour)
	_, err = c.Tick(ctx)
	require.NoError(t, err)

	// Буст арены истёк: расчёт по времени упал, но показанное не откатывается
	c.SetRate(boost.Rate{RatePerHour: 10})
	assert.Equal(t, int64(60), c.Status().DisplayPoints)

	got, err := c.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(60), got)
}

func TestStatusReportsRemainingTime(t *testing.T) {
	h := newHarness()
	c := h.controller(10)

	st := c.Status()
	assert.False(t, st.Active)
	assert.Equal(t, 10.0, st.RatePerHour)
	assert.Equal(t, 480.0, st.MaxSessionPoints)

	_, err := c.Start(context.Background())
	require.NoError(t, err)
	h.clock.Advance(2 * time.Hour)

	st = c.Status()
	assert.True(t, st.Active)
	assert.Equal(t, (6 * time.Hour).Seconds(), st.RemainingSeconds)
	assert.Equal(t, int64(20), st.DisplayPoints)
}
