package recon

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/reconbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestReconciler(t *testing.T) *Reconciler {
	t.Helper()
	bc := NewBroadcaster(16, testLogger())
	t.Cleanup(bc.Close)
	return New(Config{Rules: DefaultRuleConfig()}, bc, testLogger())
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func recentTrade(id string) domain.Trade {
	return domain.Trade{
		TradeID:      id,
		Symbol:       "MSFT",
		Side:         domain.SideSell,
		Qty:          500,
		Price:        410.25,
		Notional:     205125.00,
		Account:      "FND1042",
		ExecTime:     time.Now().UTC().Add(-10 * time.Minute),
		SettleDate:   "2026-03-04",
		ExecBroker:   "MSCO",
		CustomerType: "INTRODUCING",
	}
}

func confirmFor(tr domain.Trade) domain.Confirm {
	return domain.Confirm{
		TradeID:     tr.TradeID,
		Symbol:      tr.Symbol,
		Side:        tr.Side,
		Qty:         tr.Qty,
		Price:       tr.Price,
		Notional:    tr.Notional,
		Account:     tr.Account,
		ConfirmTime: tr.ExecTime.Add(5 * time.Minute),
		SettleDate:  tr.SettleDate,
		ExecBroker:  tr.ExecBroker,
	}
}

func TestReconciler_CleanPairNoBreaks(t *testing.T) {
	r := newTestReconciler(t)
	tr := recentTrade("T-1")

	r.process(domain.Event{Kind: domain.EventTrade, Payload: mustJSON(t, tr)})
	r.process(domain.Event{Kind: domain.EventConfirm, Payload: mustJSON(t, confirmFor(tr))})

	stats := r.Stats()
	assert.Equal(t, int64(2), stats.Processed)
	assert.Equal(t, int64(0), stats.DetectedBreaks)
	assert.Empty(t, r.RecentBreaks(10))
}

func TestReconciler_OrderIndependence(t *testing.T) {
	tr := recentTrade("T-2")
	cf := confirmFor(tr)
	cf.Qty = 600

	tradeFirst := newTestReconciler(t)
	tradeFirst.process(domain.Event{Kind: domain.EventTrade, Payload: mustJSON(t, tr)})
	tradeFirst.process(domain.Event{Kind: domain.EventConfirm, Payload: mustJSON(t, cf)})

	confirmFirst := newTestReconciler(t)
	confirmFirst.process(domain.Event{Kind: domain.EventConfirm, Payload: mustJSON(t, cf)})
	confirmFirst.process(domain.Event{Kind: domain.EventTrade, Payload: mustJSON(t, tr)})

	a := tradeFirst.RecentBreaks(10)
	b := confirmFirst.RecentBreaks(10)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].BreakID, b[0].BreakID)
	assert.Equal(t, domain.BreakQuantityMismatch, a[0].Type)
}

func TestReconciler_ReEvaluationOverwrites(t *testing.T) {
	r := newTestReconciler(t)
	tr := recentTrade("T-3")
	cf := confirmFor(tr)
	cf.Qty = 700

	r.process(domain.Event{Kind: domain.EventTrade, Payload: mustJSON(t, tr)})
	r.process(domain.Event{Kind: domain.EventConfirm, Payload: mustJSON(t, cf)})
	// Re-delivering the same confirm re-detects the same condition; the
	// deterministic break ID must overwrite, never duplicate.
	r.process(domain.Event{Kind: domain.EventConfirm, Payload: mustJSON(t, cf)})

	brks := r.RecentBreaks(10)
	require.Len(t, brks, 1)
	assert.Equal(t, "BRK-T-3-QTY", brks[0].BreakID)
	// The counter tracks detections, not unique breaks.
	assert.Equal(t, int64(2), r.Stats().DetectedBreaks)
}

func TestReconciler_LastWriteWins(t *testing.T) {
	r := newTestReconciler(t)
	tr := recentTrade("T-4")
	cf := confirmFor(tr)
	cf.Qty = 900

	r.process(domain.Event{Kind: domain.EventTrade, Payload: mustJSON(t, tr)})
	r.process(domain.Event{Kind: domain.EventConfirm, Payload: mustJSON(t, cf)})
	require.Len(t, r.RecentBreaks(10), 1)

	// A corrected trade supersedes the old record and the pair re-evaluates
	// clean, overwriting the quantity break... the stale record remains but
	// the latest evaluation state is what the overwrite reflects.
	fixed := tr
	fixed.Qty = 900
	fixed.Notional = float64(fixed.Qty) * fixed.Price
	r.process(domain.Event{Kind: domain.EventTrade, Payload: mustJSON(t, fixed)})

	r.mu.RLock()
	got := r.trades["T-4"]
	r.mu.RUnlock()
	assert.Equal(t, int64(900), got.Qty)
}

func TestReconciler_MalformedPayloadSkipped(t *testing.T) {
	r := newTestReconciler(t)

	r.process(domain.Event{Kind: domain.EventTrade, Payload: []byte(`{"trade_id":`)})
	r.process(domain.Event{Kind: domain.EventTrade, Payload: mustJSON(t, recentTrade("T-5"))})

	stats := r.Stats()
	assert.Equal(t, int64(2), stats.Processed)
	r.mu.RLock()
	_, ok := r.trades["T-5"]
	r.mu.RUnlock()
	assert.True(t, ok, "loop must continue past a malformed event")
}

func TestReconciler_ValidationRejectsBadFields(t *testing.T) {
	r := newTestReconciler(t)
	tr := recentTrade("T-6")
	tr.Qty = 0

	r.process(domain.Event{Kind: domain.EventTrade, Payload: mustJSON(t, tr)})

	r.mu.RLock()
	_, ok := r.trades["T-6"]
	r.mu.RUnlock()
	assert.False(t, ok)
}

func TestReconciler_EnqueueAndRun(t *testing.T) {
	r := newTestReconciler(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- r.Run(ctx) }()

	tr := recentTrade("T-7")
	cf := confirmFor(tr)
	cf.Account = "FND9999"
	require.NoError(t, r.Enqueue(ctx, domain.EventTrade, mustJSON(t, tr)))
	require.NoError(t, r.Enqueue(ctx, domain.EventConfirm, mustJSON(t, cf)))

	require.Eventually(t, func() bool {
		return r.Stats().Processed == 2
	}, 2*time.Second, 5*time.Millisecond)

	brks := r.RecentBreaks(10)
	require.Len(t, brks, 1)
	assert.Equal(t, domain.BreakAccountMismatch, brks[0].Type)
	assert.Greater(t, r.Stats().AvgDetectMs, 0.0)

	cancel()
	assert.ErrorIs(t, <-runErr, context.Canceled)
}

func TestReconciler_CloseDrainsQueue(t *testing.T) {
	bc := NewBroadcaster(16, testLogger())
	defer bc.Close()
	r := New(Config{Rules: DefaultRuleConfig(), DrainOnClose: true}, bc, testLogger())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		tr := recentTrade("T-drain")
		require.NoError(t, r.Enqueue(ctx, domain.EventTrade, mustJSON(t, tr)))
	}
	r.Close()

	err := r.Run(ctx)
	assert.ErrorIs(t, err, domain.ErrQueueClosed)
	assert.Equal(t, int64(5), r.Stats().Processed)
}

func TestReconciler_EnqueueAfterClose(t *testing.T) {
	r := newTestReconciler(t)
	r.Close()
	err := r.Enqueue(context.Background(), domain.EventTrade, []byte(`{}`))
	assert.ErrorIs(t, err, domain.ErrQueueClosed)
}

func TestReconciler_RecentBreaksOrderAndLimit(t *testing.T) {
	r := newTestReconciler(t)
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		b := domain.Break{
			BreakID:   domain.BreakIDFor(string(rune('A'+i)), domain.BreakQuantityMismatch),
			TradeID:   string(rune('A' + i)),
			Type:      domain.BreakQuantityMismatch,
			Severity:  domain.SeverityHigh,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		r.mu.Lock()
		r.breaks[b.BreakID] = b
		r.mu.Unlock()
	}

	brks := r.RecentBreaks(3)
	require.Len(t, brks, 3)
	assert.Equal(t, "E", brks[0].TradeID)
	assert.Equal(t, "D", brks[1].TradeID)
	assert.Equal(t, "C", brks[2].TradeID)
}

func TestReconciler_AverageLatencyIsRunningMean(t *testing.T) {
	r := newTestReconciler(t)
	const n = 50
	for i := 0; i < n; i++ {
		r.process(domain.Event{Kind: domain.EventTrade, Payload: mustJSON(t, recentTrade("T-avg"))})
	}

	stats := r.Stats()
	assert.Equal(t, int64(n), stats.Processed)
	assert.Greater(t, stats.AvgDetectMs, 0.0)
	// A single in-memory evaluation is microseconds; the mean of n of them
	// cannot plausibly exceed the escalation threshold.
	assert.Less(t, stats.AvgDetectMs, 250.0)
}
