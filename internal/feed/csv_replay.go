// Package feed contains the ingestion producers: CSV seed replay, the live
// Binance aggTrade feed, and the demo seed generator. Producers are external
// to the reconciliation core; they only push `(kind, payload)` events onto
// its queue.
package feed

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/alanyoungcy/reconbot/internal/domain"
)

// Enqueuer is the single contract a producer needs from the core.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind domain.EventKind, payload []byte) error
}

// CSVReplay replays a trades CSV and a confirms CSV onto the event queue,
// interleaved trade-then-confirm per identifier, with an optional throttle
// between events.
type CSVReplay struct {
	tradesPath   string
	confirmsPath string
	throttle     time.Duration
	maxTrades    int
	logger       *slog.Logger
}

// NewCSVReplay creates a replay producer. maxTrades caps how many trades are
// replayed (<= 0 means all); throttle is the pause between enqueued events.
func NewCSVReplay(tradesPath, confirmsPath string, throttle time.Duration, maxTrades int, logger *slog.Logger) *CSVReplay {
	return &CSVReplay{
		tradesPath:   tradesPath,
		confirmsPath: confirmsPath,
		throttle:     throttle,
		maxTrades:    maxTrades,
		logger:       logger.With(slog.String("component", "csv_replay")),
	}
}

// Run loads both files, pairs confirms to trades by identifier, and enqueues
// the interleaved stream. It returns once the replay completes or ctx is
// cancelled.
func (r *CSVReplay) Run(ctx context.Context, q Enqueuer) error {
	trades, err := readCSVRows(r.tradesPath)
	if err != nil {
		return fmt.Errorf("feed: read trades csv: %w", err)
	}
	confirms, err := readCSVRows(r.confirmsPath)
	if err != nil {
		return fmt.Errorf("feed: read confirms csv: %w", err)
	}

	confirmByID := make(map[string]map[string]string, len(confirms))
	for _, row := range confirms {
		confirmByID[row["trade_id"]] = row
	}

	if r.maxTrades > 0 && len(trades) > r.maxTrades {
		trades = trades[:r.maxTrades]
	}

	var sent int
	for _, row := range trades {
		trade, err := tradeFromRow(row)
		if err != nil {
			r.logger.Warn("skipping malformed trade row", slog.String("error", err.Error()))
			continue
		}
		if err := r.enqueueThrottled(ctx, q, domain.EventTrade, trade); err != nil {
			return err
		}
		sent++

		crow, ok := confirmByID[trade.TradeID]
		if !ok {
			continue
		}
		confirm, err := confirmFromRow(crow)
		if err != nil {
			r.logger.Warn("skipping malformed confirm row",
				slog.String("trade_id", trade.TradeID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := r.enqueueThrottled(ctx, q, domain.EventConfirm, confirm); err != nil {
			return err
		}
		sent++
	}

	r.logger.Info("csv replay complete",
		slog.Int("trades", len(trades)),
		slog.Int("events", sent),
	)
	return nil
}

func (r *CSVReplay) enqueueThrottled(ctx context.Context, q Enqueuer, kind domain.EventKind, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("feed: marshal %s: %w", kind, err)
	}
	if err := q.Enqueue(ctx, kind, payload); err != nil {
		return fmt.Errorf("feed: enqueue %s: %w", kind, err)
	}
	if r.throttle > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.throttle):
		}
	}
	return nil
}

// readCSVRows reads a headered CSV file into one map per row.
func readCSVRows(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rd := csv.NewReader(f)
	records, err := rd.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 1 {
		return nil, nil
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func tradeFromRow(row map[string]string) (domain.Trade, error) {
	qty, err := strconv.ParseInt(row["qty"], 10, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("qty %q: %w", row["qty"], err)
	}
	price, err := strconv.ParseFloat(row["price"], 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("price %q: %w", row["price"], err)
	}
	notional, err := strconv.ParseFloat(row["notional"], 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("notional %q: %w", row["notional"], err)
	}
	execTime, err := parseTimestamp(row["exec_time"])
	if err != nil {
		return domain.Trade{}, fmt.Errorf("exec_time %q: %w", row["exec_time"], err)
	}
	return domain.Trade{
		TradeID:      row["trade_id"],
		Symbol:       row["symbol"],
		Side:         domain.Side(row["side"]),
		Qty:          qty,
		Price:        price,
		Notional:     notional,
		Account:      row["account"],
		ExecTime:     execTime,
		SettleDate:   row["settle_date"],
		ExecBroker:   row["exec_broker"],
		CustomerType: row["customer_type"],
	}, nil
}

func confirmFromRow(row map[string]string) (domain.Confirm, error) {
	qty, err := strconv.ParseInt(row["qty"], 10, 64)
	if err != nil {
		return domain.Confirm{}, fmt.Errorf("qty %q: %w", row["qty"], err)
	}
	price, err := strconv.ParseFloat(row["price"], 64)
	if err != nil {
		return domain.Confirm{}, fmt.Errorf("price %q: %w", row["price"], err)
	}
	notional, err := strconv.ParseFloat(row["notional"], 64)
	if err != nil {
		return domain.Confirm{}, fmt.Errorf("notional %q: %w", row["notional"], err)
	}
	confirmTime, err := parseTimestamp(row["confirm_time"])
	if err != nil {
		return domain.Confirm{}, fmt.Errorf("confirm_time %q: %w", row["confirm_time"], err)
	}
	return domain.Confirm{
		TradeID:     row["trade_id"],
		Symbol:      row["symbol"],
		Side:        domain.Side(row["side"]),
		Qty:         qty,
		Price:       price,
		Notional:    notional,
		Account:     row["account"],
		ConfirmTime: confirmTime,
		SettleDate:  row["settle_date"],
		ExecBroker:  row["exec_broker"],
	}, nil
}

// parseTimestamp accepts RFC 3339 timestamps as well as the zoneless ISO
// form seed files carry; the latter is interpreted as UTC.
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return ts, nil
}
