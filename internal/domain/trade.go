package domain

import "time"

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Trade represents a single trade execution as reported by the order
// management side. Trades are immutable once ingested; a later event carrying
// the same TradeID supersedes the earlier one (last-write-wins).
type Trade struct {
	TradeID      string    `json:"trade_id"`
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"`
	Qty          int64     `json:"qty"`
	Price        float64   `json:"price"`
	Notional     float64   `json:"notional"`
	Account      string    `json:"account"`
	ExecTime     time.Time `json:"exec_time"`
	SettleDate   string    `json:"settle_date"`
	ExecBroker   string    `json:"exec_broker"`
	CustomerType string    `json:"customer_type"`
}

// Confirm represents a broker confirmation of a trade, keyed by the same
// TradeID as the execution it confirms. A Trade and a Confirm sharing an
// identifier describe the same business event.
type Confirm struct {
	TradeID     string    `json:"trade_id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Qty         int64     `json:"qty"`
	Price       float64   `json:"price"`
	Notional    float64   `json:"notional"`
	Account     string    `json:"account"`
	ConfirmTime time.Time `json:"confirm_time"`
	SettleDate  string    `json:"settle_date"`
	ExecBroker  string    `json:"exec_broker"`
}
