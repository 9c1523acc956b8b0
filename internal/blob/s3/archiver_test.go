package s3blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/reconbot/internal/domain"
)

type fakeWriter struct {
	objects map[string][]byte
}

func (w *fakeWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if w.objects == nil {
		w.objects = make(map[string][]byte)
	}
	w.objects[path] = buf
	return nil
}

func (w *fakeWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, "")
}

type fakeJournalSource struct {
	trades   []domain.Trade
	confirms []domain.Confirm
}

func (s *fakeJournalSource) ListTradesBefore(context.Context, time.Time) ([]domain.Trade, error) {
	return s.trades, nil
}

func (s *fakeJournalSource) ListConfirmsBefore(context.Context, time.Time) ([]domain.Confirm, error) {
	return s.confirms, nil
}

type fakeBreakSource struct {
	breaks []domain.Break
}

func (s *fakeBreakSource) ListBefore(context.Context, time.Time) ([]domain.Break, error) {
	return s.breaks, nil
}

func TestArchiveBreaks_WritesJSONL(t *testing.T) {
	cutoff := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	w := &fakeWriter{}
	a := NewArchiver(w, &fakeJournalSource{}, &fakeBreakSource{breaks: []domain.Break{
		{BreakID: "BRK-T1-QTY", TradeID: "T1", Type: domain.BreakQuantityMismatch, Severity: domain.SeverityHigh, CreatedAt: cutoff.Add(-time.Hour)},
		{BreakID: "BRK-T2-PRICE", TradeID: "T2", Type: domain.BreakPriceMismatch, Severity: domain.SeverityMedium, CreatedAt: cutoff.Add(-2 * time.Hour)},
	}})

	n, err := a.ArchiveBreaks(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	body, ok := w.objects["archive/breaks/2026-09.jsonl"]
	require.True(t, ok, "expected archive object, got keys %v", w.objects)

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"BRK-T1-QTY"`)
	assert.False(t, bytes.Contains(body, []byte("\\u0026")), "jsonl should not escape HTML")
}

func TestArchiveBreaks_EmptyIsNoop(t *testing.T) {
	w := &fakeWriter{}
	a := NewArchiver(w, &fakeJournalSource{}, &fakeBreakSource{})

	n, err := a.ArchiveBreaks(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.objects)
}

func TestArchiveJournal_WritesBothFiles(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	w := &fakeWriter{}
	src := &fakeJournalSource{
		trades: []domain.Trade{
			{TradeID: "T1", Symbol: "AAPL", Side: domain.SideBuy, Qty: 100, Price: 210.5, Account: "FND1001"},
		},
		confirms: []domain.Confirm{
			{TradeID: "T1", Symbol: "AAPL", Side: domain.SideBuy, Qty: 100, Price: 210.5, Account: "FND1001"},
		},
	}
	a := NewArchiver(w, src, &fakeBreakSource{})

	n, err := a.ArchiveJournal(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Contains(t, w.objects, "archive/journal/trades/2026-08.jsonl")
	assert.Contains(t, w.objects, "archive/journal/confirms/2026-08.jsonl")
}
