package mining

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/arx-miner/internal/features/economy"
)

// Счётчики глобальные, поэтому сверяем приращения, а не абсолютные значения.

func TestMetricsFinalizeLostRace(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	s := h.store.put(h.user, h.clock.Now().Add(-time.Hour), 0)
	f := &finalizer{store: h.store, ledger: h.ledger, failures: h.failures}

	changed := finalizeTotal.WithLabelValues(economy.TxTypeMiningStop, "changed")
	lost := finalizeTotal.WithLabelValues(economy.TxTypeMiningStop, "lost_race")
	points := creditedPoints.WithLabelValues(economy.TxTypeMiningStop)
	changedBefore, lostBefore, pointsBefore := testutil.ToFloat64(changed), testutil.ToFloat64(lost), testutil.ToFloat64(points)

	_, err := f.finalize(ctx, s, 10, h.clock.Now(), economy.TxTypeMiningStop)
	require.NoError(t, err)
	_, err = f.finalize(ctx, s, 10, h.clock.Now(), economy.TxTypeMiningStop)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(changed)-changedBefore)
	assert.Equal(t, 1.0, testutil.ToFloat64(lost)-lostBefore)
	assert.Equal(t, 10.0, testutil.ToFloat64(points)-pointsBefore)
}

func TestMetricsCreditFailureCounted(t *testing.T) {
	h := newHarness()
	s := h.store.put(h.user, h.clock.Now().Add(-time.Hour), 0)
	h.ledger.err = errStoreDown
	f := &finalizer{store: h.store, ledger: h.ledger, failures: h.failures}

	before := testutil.ToFloat64(creditFailures)
	out, err := f.finalize(context.Background(), s, 10, h.clock.Now(), economy.TxTypeMiningStop)
	require.NoError(t, err)

	assert.True(t, out.BackfillPending)
	assert.Equal(t, 1.0, testutil.ToFloat64(creditFailures)-before)
}

func TestMetricsSweepRecoveredPoints(t *testing.T) {
	h := newHarness()
	h.store.put(h.user, h.clock.Now().Add(-9*time.Hour), 0)

	before := testutil.ToFloat64(sweepRecovered)
	_, err := h.sweeper().Sweep(context.Background(), h.user, 10)
	require.NoError(t, err)

	assert.Equal(t, 80.0, testutil.ToFloat64(sweepRecovered)-before)
}

func TestMetricsWatermarkWriteErrors(t *testing.T) {
	h := newHarness()
	c := h.controller(60)
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)
	h.store.watermarkErr = errStoreDown

	before := testutil.ToFloat64(watermarkErrors)
	h.clock.Advance(2 * time.Minute)
	_, err = c.Tick(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(watermarkErrors)-before)
}
