package recon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/reconbot/internal/domain"
)

var testNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func testTrade(execAge time.Duration) domain.Trade {
	return domain.Trade{
		TradeID:      "T20260302-000042",
		Symbol:       "AAPL",
		Side:         domain.SideBuy,
		Qty:          100,
		Price:        100.00,
		Notional:     10000.00,
		Account:      "FND1001",
		ExecTime:     testNow.Add(-execAge),
		SettleDate:   "2026-03-04",
		ExecBroker:   "GSCO",
		CustomerType: "SELF_CLEAR",
	}
}

func matchingConfirm(t domain.Trade, confirmDelay time.Duration) domain.Confirm {
	return domain.Confirm{
		TradeID:     t.TradeID,
		Symbol:      t.Symbol,
		Side:        t.Side,
		Qty:         t.Qty,
		Price:       t.Price,
		Notional:    t.Notional,
		Account:     t.Account,
		ConfirmTime: t.ExecTime.Add(confirmDelay),
		SettleDate:  t.SettleDate,
		ExecBroker:  t.ExecBroker,
	}
}

func TestEvaluate_NoConfirmWithinSLA(t *testing.T) {
	trade := testTrade(90 * time.Minute)
	brks := Evaluate(trade, nil, testNow, DefaultRuleConfig())
	assert.Empty(t, brks)
}

func TestEvaluate_MissingConfirmPastSLA(t *testing.T) {
	trade := testTrade(181 * time.Minute)
	brks := Evaluate(trade, nil, testNow, DefaultRuleConfig())

	require.Len(t, brks, 1)
	assert.Equal(t, domain.BreakMissingConfirm, brks[0].Type)
	assert.Equal(t, domain.SeverityHigh, brks[0].Severity)
	assert.Equal(t, "BRK-T20260302-000042-MISSING", brks[0].BreakID)
	assert.Equal(t, trade.Notional, brks[0].NotionalUSD)
}

func TestEvaluate_MissingConfirmExactlyAtSLA(t *testing.T) {
	// The SLA boundary is inclusive for missing confirms.
	trade := testTrade(180 * time.Minute)
	brks := Evaluate(trade, nil, testNow, DefaultRuleConfig())
	require.Len(t, brks, 1)
	assert.Equal(t, domain.BreakMissingConfirm, brks[0].Type)
}

func TestEvaluate_CleanPair(t *testing.T) {
	trade := testTrade(60 * time.Minute)
	confirm := matchingConfirm(trade, 30*time.Minute)
	brks := Evaluate(trade, &confirm, testNow, DefaultRuleConfig())
	assert.Empty(t, brks)
}

func TestEvaluate_QuantityMismatch(t *testing.T) {
	trade := testTrade(60 * time.Minute)
	confirm := matchingConfirm(trade, 30*time.Minute)
	confirm.Qty = 150

	brks := Evaluate(trade, &confirm, testNow, DefaultRuleConfig())

	require.Len(t, brks, 1)
	assert.Equal(t, domain.BreakQuantityMismatch, brks[0].Type)
	assert.Equal(t, domain.SeverityHigh, brks[0].Severity)
	assert.Equal(t, "BRK-T20260302-000042-QTY", brks[0].BreakID)
}

func TestEvaluate_PriceMismatchSeverity(t *testing.T) {
	cases := []struct {
		name         string
		confirmPrice float64
		wantBreak    bool
		wantSeverity domain.Severity
	}{
		{"within tolerance", 100.40, false, ""},
		{"one percent off", 101.00, true, domain.SeverityMedium},
		{"three percent off", 103.00, true, domain.SeverityHigh},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trade := testTrade(60 * time.Minute)
			confirm := matchingConfirm(trade, 30*time.Minute)
			confirm.Price = tc.confirmPrice

			brks := Evaluate(trade, &confirm, testNow, DefaultRuleConfig())
			if !tc.wantBreak {
				assert.Empty(t, brks)
				return
			}
			require.Len(t, brks, 1)
			assert.Equal(t, domain.BreakPriceMismatch, brks[0].Type)
			assert.Equal(t, tc.wantSeverity, brks[0].Severity)
		})
	}
}

func TestEvaluate_ZeroPriceDoesNotPanic(t *testing.T) {
	trade := testTrade(60 * time.Minute)
	trade.Price = 0
	confirm := matchingConfirm(trade, 30*time.Minute)
	confirm.Price = 1.00

	brks := Evaluate(trade, &confirm, testNow, DefaultRuleConfig())

	require.Len(t, brks, 1)
	assert.Equal(t, domain.BreakPriceMismatch, brks[0].Type)
}

func TestEvaluate_SettleDateMismatch(t *testing.T) {
	trade := testTrade(60 * time.Minute)
	confirm := matchingConfirm(trade, 30*time.Minute)
	confirm.SettleDate = "2026-03-05"

	brks := Evaluate(trade, &confirm, testNow, DefaultRuleConfig())

	require.Len(t, brks, 1)
	assert.Equal(t, domain.BreakSettleDateMismatch, brks[0].Type)
	assert.Equal(t, domain.SeverityMedium, brks[0].Severity)
}

func TestEvaluate_AccountMismatch(t *testing.T) {
	trade := testTrade(60 * time.Minute)
	confirm := matchingConfirm(trade, 30*time.Minute)
	confirm.Account = "FND2002"

	brks := Evaluate(trade, &confirm, testNow, DefaultRuleConfig())

	require.Len(t, brks, 1)
	assert.Equal(t, domain.BreakAccountMismatch, brks[0].Type)
	assert.Equal(t, domain.SeverityHigh, brks[0].Severity)
}

func TestEvaluate_LateConfirmSeverity(t *testing.T) {
	cases := []struct {
		name         string
		delay        time.Duration
		wantBreak    bool
		wantSeverity domain.Severity
	}{
		{"on time", 120 * time.Minute, false, ""},
		{"late under 1.5x sla", 200 * time.Minute, true, domain.SeverityLow},
		{"late over 1.5x sla", 300 * time.Minute, true, domain.SeverityMedium},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trade := testTrade(6 * time.Hour)
			confirm := matchingConfirm(trade, tc.delay)

			brks := Evaluate(trade, &confirm, testNow, DefaultRuleConfig())
			if !tc.wantBreak {
				assert.Empty(t, brks)
				return
			}
			require.Len(t, brks, 1)
			assert.Equal(t, domain.BreakLateConfirm, brks[0].Type)
			assert.Equal(t, tc.wantSeverity, brks[0].Severity)
		})
	}
}

func TestEvaluate_MultipleBreaksRuleOrder(t *testing.T) {
	trade := testTrade(60 * time.Minute)
	confirm := matchingConfirm(trade, 30*time.Minute)
	confirm.Qty = 200
	confirm.Price = 103.00
	confirm.Account = "FND2002"

	brks := Evaluate(trade, &confirm, testNow, DefaultRuleConfig())

	require.Len(t, brks, 3)
	assert.Equal(t, domain.BreakQuantityMismatch, brks[0].Type)
	assert.Equal(t, domain.BreakPriceMismatch, brks[1].Type)
	assert.Equal(t, domain.BreakAccountMismatch, brks[2].Type)
}

func TestEvaluate_Idempotent(t *testing.T) {
	trade := testTrade(60 * time.Minute)
	confirm := matchingConfirm(trade, 30*time.Minute)
	confirm.Qty = 150

	first := Evaluate(trade, &confirm, testNow, DefaultRuleConfig())
	second := Evaluate(trade, &confirm, testNow, DefaultRuleConfig())

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].BreakID, second[0].BreakID)
}

func TestEvaluate_CustomSLA(t *testing.T) {
	cfg := DefaultRuleConfig()
	cfg.SLA = 30 * time.Minute

	trade := testTrade(45 * time.Minute)
	brks := Evaluate(trade, nil, testNow, cfg)

	require.Len(t, brks, 1)
	assert.Equal(t, domain.BreakMissingConfirm, brks[0].Type)
}

func TestEvaluate_DetectedLatencyRecorded(t *testing.T) {
	trade := testTrade(60 * time.Minute)
	confirm := matchingConfirm(trade, 30*time.Minute)
	confirm.Qty = 150

	brks := Evaluate(trade, &confirm, testNow, DefaultRuleConfig())

	require.Len(t, brks, 1)
	assert.GreaterOrEqual(t, brks[0].DetectedMs, 0.0)
	assert.Less(t, brks[0].DetectedMs, 250.0, "in-process evaluation should be far under the escalation threshold")
	assert.Equal(t, testNow, brks[0].CreatedAt)
}

func TestEscalateSlow_RaisesSeverity(t *testing.T) {
	brks := []domain.Break{
		{BreakID: "BRK-X-LATE", Severity: domain.SeverityLow, DetectedMs: 300},
		{BreakID: "BRK-X-SETTLE", Severity: domain.SeverityMedium, DetectedMs: 10},
	}

	out := escalateSlow(brks, DefaultRuleConfig())

	assert.Equal(t, domain.SeverityHigh, out[0].Severity)
	assert.Equal(t, domain.SeverityMedium, out[1].Severity)
}
