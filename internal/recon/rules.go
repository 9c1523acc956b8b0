// Package recon implements the reconciliation core: the pure rule evaluator,
// the single-consumer event loop with its in-memory state store, and the
// break broadcaster.
package recon

import (
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/reconbot/internal/domain"
)

// priceEpsilon floors the denominator of the relative price deviation so a
// zero or near-zero trade price cannot divide by zero.
const priceEpsilon = 1e-9

// RuleConfig holds the rule thresholds. All values are fixed at startup.
type RuleConfig struct {
	// SLA is the window within which a confirmation is expected.
	SLA time.Duration
	// PriceTolerance is the relative price deviation allowed before a
	// PriceMismatch break fires (0.005 = 0.5%).
	PriceTolerance float64
	// EscalateAfter is the detection-latency threshold beyond which any
	// break is escalated to High severity.
	EscalateAfter time.Duration
}

// DefaultRuleConfig returns the standard thresholds: 180 minute SLA, 0.5%
// price tolerance, 250ms escalation latency.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		SLA:            180 * time.Minute,
		PriceTolerance: 0.005,
		EscalateAfter:  250 * time.Millisecond,
	}
}

// Evaluate runs the fixed rule set against a trade and its optional confirm
// and returns zero or more breaks. It is a pure function of its inputs plus
// the wall clock used for latency measurement; it holds no state and may be
// called concurrently for different trade identifiers.
//
// When confirm is nil only the MissingConfirm rule applies; the pairwise
// rules need both records and are skipped entirely. The arrival order of
// trade and confirm therefore does not matter: once both sides are present a
// re-evaluation produces the full pairwise result.
func Evaluate(trade domain.Trade, confirm *domain.Confirm, now time.Time, cfg RuleConfig) []domain.Break {
	start := time.Now()
	var brks []domain.Break

	mk := func(t domain.BreakType, sev domain.Severity, detail string) domain.Break {
		return domain.Break{
			BreakID:           domain.BreakIDFor(trade.TradeID, t),
			TradeID:           trade.TradeID,
			Type:              t,
			Severity:          sev,
			Detail:            detail,
			DetectedMs:        float64(time.Since(start).Microseconds()) / 1000.0,
			CreatedAt:         now,
			NotionalUSD:       trade.Notional,
			EstTurnoverDragBp: domain.DefaultTurnoverDragBp,
		}
	}

	slaMin := cfg.SLA.Minutes()

	if confirm == nil {
		ageMin := now.Sub(trade.ExecTime).Minutes()
		if ageMin >= slaMin {
			brks = append(brks, mk(domain.BreakMissingConfirm, domain.SeverityHigh,
				fmt.Sprintf("No confirmation received within %.0f minutes SLA.", slaMin)))
		}
		return escalateSlow(brks, cfg)
	}

	if trade.Qty != confirm.Qty {
		brks = append(brks, mk(domain.BreakQuantityMismatch, domain.SeverityHigh,
			fmt.Sprintf("Trade qty %d vs confirm qty %d.", trade.Qty, confirm.Qty)))
	}

	priceDev := math.Abs(trade.Price-confirm.Price) / math.Max(trade.Price, priceEpsilon)
	if priceDev > cfg.PriceTolerance {
		sev := domain.SeverityHigh
		if priceDev < 0.02 {
			sev = domain.SeverityMedium
		}
		brks = append(brks, mk(domain.BreakPriceMismatch, sev,
			fmt.Sprintf("Trade %g vs confirm %g (%.2f%% off).", trade.Price, confirm.Price, priceDev*100)))
	}

	if trade.SettleDate != confirm.SettleDate {
		brks = append(brks, mk(domain.BreakSettleDateMismatch, domain.SeverityMedium,
			fmt.Sprintf("Trade settle %s vs confirm %s.", trade.SettleDate, confirm.SettleDate)))
	}

	if trade.Account != confirm.Account {
		brks = append(brks, mk(domain.BreakAccountMismatch, domain.SeverityHigh,
			fmt.Sprintf("Trade acct %s vs confirm acct %s.", trade.Account, confirm.Account)))
	}

	confirmAgeMin := confirm.ConfirmTime.Sub(trade.ExecTime).Minutes()
	if confirmAgeMin > slaMin {
		sev := domain.SeverityMedium
		if confirmAgeMin < slaMin*1.5 {
			sev = domain.SeverityLow
		}
		brks = append(brks, mk(domain.BreakLateConfirm, sev,
			fmt.Sprintf("Confirmation took %.1f minutes (SLA %.0f).", confirmAgeMin, slaMin)))
	}

	return escalateSlow(brks, cfg)
}

// escalateSlow is the post-pass over the full result set: detection slowness
// is itself a risk signal, so any break whose own detection latency exceeded
// the threshold is raised to High severity. Runs after all rules, never
// rule-by-rule.
func escalateSlow(brks []domain.Break, cfg RuleConfig) []domain.Break {
	escalateMs := float64(cfg.EscalateAfter.Milliseconds())
	for i := range brks {
		if brks[i].DetectedMs > escalateMs {
			brks[i].Severity = domain.SeverityHigh
		}
	}
	return brks
}
