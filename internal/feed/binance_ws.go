package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/reconbot/internal/domain"
)

// confirmDelay is how long after a fabricated trade its confirmation is
// enqueued, so the two sides arrive as distinct events.
const confirmDelay = 50 * time.Millisecond

// reconnectBackoff is the pause before redialing after a dropped connection.
const reconnectBackoff = 2 * time.Second

// BinanceFeed streams aggTrade fills from the Binance combined stream,
// fabricates a Trade per fill plus a Confirm shortly after, and enqueues
// both. A small fraction of confirms (breakRate) is mutated so the rule set
// fires on live data. It reconnects with backoff on disconnect.
type BinanceFeed struct {
	wsURL     string
	symbols   []string
	breakRate float64
	rng       *rand.Rand
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// combinedMsg is the envelope of the Binance combined stream.
type combinedMsg struct {
	Stream string       `json:"stream"`
	Data   aggTradeData `json:"data"`
}

// aggTradeData is the subset of the aggTrade payload the feed consumes.
// Price and quantity arrive as strings.
type aggTradeData struct {
	EventType string `json:"e"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
}

// NewBinanceFeed creates a feed for the given lowercase symbols
// (e.g. "btcusdt").
func NewBinanceFeed(wsURL string, symbols []string, breakRate float64, logger *slog.Logger) *BinanceFeed {
	return &BinanceFeed{
		wsURL:     wsURL,
		symbols:   symbols,
		breakRate: breakRate,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:    logger.With(slog.String("component", "binance_feed")),
		done:      make(chan struct{}),
	}
}

// Run connects and streams until ctx is cancelled or Close is called.
// Transient disconnects are retried with backoff; the core simply receives
// fewer events while the feed is down.
func (f *BinanceFeed) Run(ctx context.Context, q Enqueuer) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to stream, exiting")
		return nil
	}
	url := f.streamURL()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx, url, q)
		if err == nil || ctx.Err() != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
		f.logger.Warn("binance ws disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(reconnectBackoff):
		}
	}
}

// Close stops the feed.
func (f *BinanceFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

func (f *BinanceFeed) streamURL() string {
	streams := make([]string, len(f.symbols))
	for i, s := range f.symbols {
		streams[i] = strings.ToLower(s) + "@aggTrade"
	}
	return f.wsURL + "?streams=" + strings.Join(streams, "/")
}

func (f *BinanceFeed) runConnection(ctx context.Context, url string, q Enqueuer) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("feed: dial binance: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the context ends.
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		}
		_ = conn.Close()
	}()

	f.logger.Info("binance ws connected", slog.Int("symbols", len(f.symbols)))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed: read binance: %w", err)
		}

		var msg combinedMsg
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Data.EventType != "aggTrade" {
			continue
		}

		symbol := strings.ToUpper(strings.SplitN(msg.Stream, "@", 2)[0])
		trade, ok := f.makeTrade(symbol, msg.Data.Price, msg.Data.Quantity)
		if !ok {
			continue
		}

		payload, err := json.Marshal(trade)
		if err != nil {
			continue
		}
		if err := q.Enqueue(ctx, domain.EventTrade, payload); err != nil {
			return err
		}

		confirm := f.makeConfirm(trade)
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(confirmDelay):
			}
			cp, err := json.Marshal(confirm)
			if err != nil {
				return
			}
			if err := q.Enqueue(ctx, domain.EventConfirm, cp); err != nil {
				f.logger.Warn("confirm enqueue failed", slog.String("error", err.Error()))
			}
		}()
	}
}

// makeTrade fabricates a demo trade from a live fill. Quantities are rounded
// up to at least one unit so the integer qty constraint holds at crypto
// sizes.
func (f *BinanceFeed) makeTrade(symbol, priceStr, qtyStr string) (domain.Trade, bool) {
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil || price <= 0 {
		return domain.Trade{}, false
	}
	qtyF, err := strconv.ParseFloat(qtyStr, 64)
	if err != nil {
		return domain.Trade{}, false
	}
	qty := int64(math.Max(1, math.Round(qtyF)))

	now := time.Now().UTC().Truncate(time.Second)
	return domain.Trade{
		TradeID:      fmt.Sprintf("BIN-%d-%04d", time.Now().UnixMilli(), f.rng.Intn(9000)+1000),
		Symbol:       symbol,
		Side:         domain.SideBuy,
		Qty:          qty,
		Price:        price,
		Notional:     round2(price * float64(qty)),
		Account:      "FNDDEMO",
		ExecTime:     now,
		SettleDate:   now.Format("2006-01-02"),
		ExecBroker:   "BINANCE",
		CustomerType: "SELF_CLEAR",
	}, true
}

// makeConfirm mirrors the trade into a confirmation, mutating a small
// fraction of them so quantity, price, settle-date and account rules all get
// exercised by the live stream.
func (f *BinanceFeed) makeConfirm(t domain.Trade) domain.Confirm {
	c := domain.Confirm{
		TradeID:     t.TradeID,
		Symbol:      t.Symbol,
		Side:        t.Side,
		Qty:         t.Qty,
		Price:       t.Price,
		Notional:    t.Notional,
		Account:     t.Account,
		ConfirmTime: time.Now().UTC().Truncate(time.Second),
		SettleDate:  t.SettleDate,
		ExecBroker:  t.ExecBroker,
	}

	if f.rng.Float64() >= f.breakRate {
		return c
	}

	switch f.rng.Intn(4) {
	case 0:
		delta := int64(1)
		if f.rng.Intn(2) == 0 {
			delta = -1
		}
		c.Qty = max(1, t.Qty+delta)
	case 1:
		sign := 1.0
		if f.rng.Intn(2) == 0 {
			sign = -1.0
		}
		c.Price = round2(t.Price * (1 + sign*0.015))
	case 2:
		settle, err := time.Parse("2006-01-02", t.SettleDate)
		if err == nil {
			c.SettleDate = settle.AddDate(0, 0, 1).Format("2006-01-02")
		}
	case 3:
		c.Account = "FNDALT"
	}
	c.Notional = round2(c.Price * float64(c.Qty))
	return c
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
