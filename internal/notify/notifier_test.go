package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/reconbot/internal/domain"
)

type fakeSender struct {
	name   string
	titles []string
	err    error
}

func (s *fakeSender) Send(_ context.Context, title, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.titles = append(s.titles, title)
	return nil
}

func (s *fakeSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func highBreak() domain.Break {
	return domain.Break{
		BreakID:     "BRK-T1-QTY",
		TradeID:     "T1",
		Type:        domain.BreakQuantityMismatch,
		Severity:    domain.SeverityHigh,
		Detail:      "Trade qty 100 vs confirm qty 200.",
		NotionalUSD: 21055,
	}
}

func TestNotifyBreak_DeliversToAllSenders(t *testing.T) {
	a := &fakeSender{name: "a"}
	b := &fakeSender{name: "b"}
	n := NewNotifier([]Sender{a, b}, domain.SeverityHigh, testLogger())

	require.NoError(t, n.NotifyBreak(context.Background(), highBreak()))
	require.Len(t, a.titles, 1)
	require.Len(t, b.titles, 1)
	assert.Contains(t, a.titles[0], "QuantityMismatch")
	assert.Contains(t, a.titles[0], "High")
}

func TestNotifyBreak_SeverityThreshold(t *testing.T) {
	s := &fakeSender{name: "a"}
	n := NewNotifier([]Sender{s}, domain.SeverityMedium, testLogger())

	low := highBreak()
	low.Severity = domain.SeverityLow
	require.NoError(t, n.NotifyBreak(context.Background(), low))
	assert.Empty(t, s.titles)

	med := highBreak()
	med.Severity = domain.SeverityMedium
	require.NoError(t, n.NotifyBreak(context.Background(), med))
	assert.Len(t, s.titles, 1)
}

func TestNotifyBreak_EmptyThresholdForwardsAll(t *testing.T) {
	s := &fakeSender{name: "a"}
	n := NewNotifier([]Sender{s}, "", testLogger())

	low := highBreak()
	low.Severity = domain.SeverityLow
	require.NoError(t, n.NotifyBreak(context.Background(), low))
	assert.Len(t, s.titles, 1)
}

func TestNotifyBreak_PartialFailureStillDelivers(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("boom")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, "", testLogger())

	err := n.NotifyBreak(context.Background(), highBreak())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Len(t, good.titles, 1)
}

func TestNotifyBreak_NoSendersIsNoop(t *testing.T) {
	n := NewNotifier(nil, "", testLogger())
	assert.NoError(t, n.NotifyBreak(context.Background(), highBreak()))
}
