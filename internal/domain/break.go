package domain

import "time"

// BreakType enumerates the discrepancy categories the rule set can detect.
type BreakType string

const (
	BreakMissingConfirm     BreakType = "MissingConfirm"
	BreakQuantityMismatch   BreakType = "QuantityMismatch"
	BreakPriceMismatch      BreakType = "PriceMismatch"
	BreakSettleDateMismatch BreakType = "SettleDateMismatch"
	BreakAccountMismatch    BreakType = "AccountMismatch"
	BreakLateConfirm        BreakType = "LateConfirm"
)

// Suffix returns the short category token used in deterministic break IDs.
func (t BreakType) Suffix() string {
	switch t {
	case BreakMissingConfirm:
		return "MISSING"
	case BreakQuantityMismatch:
		return "QTY"
	case BreakPriceMismatch:
		return "PRICE"
	case BreakSettleDateMismatch:
		return "SETTLE"
	case BreakAccountMismatch:
		return "ACCOUNT"
	case BreakLateConfirm:
		return "LATE"
	default:
		return "UNKNOWN"
	}
}

// Severity ranks how urgently a break must be worked before settlement.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// DefaultTurnoverDragBp is the estimated funding drag, in basis points,
// attributed to a trade that fails same-day affirmation.
const DefaultTurnoverDragBp = 0.5

// Break is a detected discrepancy between a trade and its confirmation, or a
// missing/late confirmation. The BreakID is a deterministic composite of the
// trade identifier and the break category, so re-evaluating the same
// condition overwrites the prior record instead of duplicating it.
type Break struct {
	BreakID           string    `json:"break_id"`
	TradeID           string    `json:"trade_id"`
	Type              BreakType `json:"break_type"`
	Severity          Severity  `json:"severity"`
	Detail            string    `json:"detail"`
	DetectedMs        float64   `json:"detected_ms"`
	CreatedAt         time.Time `json:"created_at"`
	NotionalUSD       float64   `json:"notional_usd"`
	EstTurnoverDragBp float64   `json:"est_turnover_drag_bp"`
}

// BreakIDFor builds the deterministic break identifier for a trade and
// category. This is the idempotence mechanism: the same condition always maps
// to the same ID.
func BreakIDFor(tradeID string, t BreakType) string {
	return "BRK-" + tradeID + "-" + t.Suffix()
}
