package feed

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/alanyoungcy/reconbot/internal/domain"
)

var (
	seedSymbols = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "JPM", "BAC", "XOM", "BRK.B", "UNH"}
	seedBrokers = []string{"GSCO", "MSCO", "JPMC", "BAML", "CDEL", "NITE", "UBSW"}
	seedCustTyp = []string{"SELF_CLEAR", "INTRODUCING"}
	seedQtys    = []int64{100, 200, 300, 500, 1000, 1500, 2000}
)

// SeedGen writes a deterministic pair of trade/confirm CSV files with a
// configurable fraction of injected breaks. Same seed, same files.
type SeedGen struct {
	Count     int
	BreakRate float64
	Seed      int64
}

// Generate writes n trades to tradesPath and their confirms to confirmsPath,
// creating parent directories as needed.
func (g SeedGen) Generate(tradesPath, confirmsPath string) error {
	rng := rand.New(rand.NewSource(g.Seed))
	now := time.Now().UTC().Truncate(time.Second)
	settle := now.AddDate(0, 0, 2).Format("2006-01-02")

	accounts := make([]string, 80)
	for i := range accounts {
		accounts[i] = fmt.Sprintf("FND%d", 1000+i)
	}

	trades := make([]domain.Trade, 0, g.Count)
	confirms := make([]domain.Confirm, 0, g.Count)

	for i := 0; i < g.Count; i++ {
		qty := seedQtys[rng.Intn(len(seedQtys))]
		price := round2((10 + rng.Float64()*490) * (1 + (rng.Float64()*0.04 - 0.02)))
		acct := accounts[rng.Intn(len(accounts))]
		execTime := now.Add(-time.Duration(rng.Intn(121))*time.Minute - time.Duration(rng.Intn(60))*time.Second)
		side := domain.SideBuy
		if rng.Intn(2) == 1 {
			side = domain.SideSell
		}

		t := domain.Trade{
			TradeID:      fmt.Sprintf("T%s-%06d", now.Format("20060102"), i),
			Symbol:       seedSymbols[rng.Intn(len(seedSymbols))],
			Side:         side,
			Qty:          qty,
			Price:        price,
			Notional:     round2(float64(qty) * price),
			Account:      acct,
			ExecTime:     execTime,
			SettleDate:   settle,
			ExecBroker:   seedBrokers[rng.Intn(len(seedBrokers))],
			CustomerType: seedCustTyp[rng.Intn(len(seedCustTyp))],
		}
		trades = append(trades, t)

		c := domain.Confirm{
			TradeID:     t.TradeID,
			Symbol:      t.Symbol,
			Side:        t.Side,
			Qty:         t.Qty,
			Price:       t.Price,
			Account:     t.Account,
			ConfirmTime: execTime.Add(time.Duration(1+rng.Intn(120)) * time.Minute),
			SettleDate:  t.SettleDate,
			ExecBroker:  t.ExecBroker,
		}

		if rng.Float64() < g.BreakRate {
			switch rng.Intn(5) {
			case 0:
				deltas := []int64{-100, -50, 50, 100}
				c.Qty = max(1, t.Qty+deltas[rng.Intn(len(deltas))])
			case 1:
				sign := 1.0
				if rng.Intn(2) == 0 {
					sign = -1.0
				}
				c.Price = round2(t.Price * (1 + sign*(0.006+rng.Float64()*0.024)))
			case 2:
				day := 1
				if rng.Intn(2) == 0 {
					day = -1
				}
				sd, _ := time.Parse("2006-01-02", settle)
				c.SettleDate = sd.AddDate(0, 0, day).Format("2006-01-02")
			case 3:
				other := accounts[rng.Intn(len(accounts))]
				for other == acct {
					other = accounts[rng.Intn(len(accounts))]
				}
				c.Account = other
			case 4:
				// Late confirmation, well beyond the SLA window.
				c.ConfirmTime = execTime.Add(5*time.Hour + time.Duration(1+rng.Intn(59))*time.Minute)
			}
		}
		c.Notional = round2(float64(c.Qty) * c.Price)
		confirms = append(confirms, c)
	}

	if err := writeTradesCSV(tradesPath, trades); err != nil {
		return err
	}
	return writeConfirmsCSV(confirmsPath, confirms)
}

func writeTradesCSV(path string, trades []domain.Trade) error {
	w, f, err := openCSV(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := []string{"trade_id", "symbol", "side", "qty", "price", "notional", "account", "exec_time", "settle_date", "exec_broker", "customer_type"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("feed: write trades header: %w", err)
	}
	for _, t := range trades {
		rec := []string{
			t.TradeID, t.Symbol, string(t.Side),
			strconv.FormatInt(t.Qty, 10),
			strconv.FormatFloat(t.Price, 'f', 2, 64),
			strconv.FormatFloat(t.Notional, 'f', 2, 64),
			t.Account,
			t.ExecTime.Format(time.RFC3339),
			t.SettleDate, t.ExecBroker, t.CustomerType,
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("feed: write trade row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func writeConfirmsCSV(path string, confirms []domain.Confirm) error {
	w, f, err := openCSV(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := []string{"trade_id", "symbol", "side", "qty", "price", "notional", "account", "confirm_time", "settle_date", "exec_broker"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("feed: write confirms header: %w", err)
	}
	for _, c := range confirms {
		rec := []string{
			c.TradeID, c.Symbol, string(c.Side),
			strconv.FormatInt(c.Qty, 10),
			strconv.FormatFloat(c.Price, 'f', 2, 64),
			strconv.FormatFloat(c.Notional, 'f', 2, 64),
			c.Account,
			c.ConfirmTime.Format(time.RFC3339),
			c.SettleDate, c.ExecBroker,
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("feed: write confirm row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func openCSV(path string) (*csv.Writer, *os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("feed: mkdir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("feed: create %s: %w", path, err)
	}
	return csv.NewWriter(f), f, nil
}
