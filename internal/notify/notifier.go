// Package notify delivers break alerts to operators over Telegram and
// Discord. Alerts are filtered by severity so a noisy feed of Low breaks does
// not page anyone.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/reconbot/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches break alerts to one or more Senders. Only breaks at or
// above the configured minimum severity are forwarded.
type Notifier struct {
	senders     []Sender
	minSeverity domain.Severity
	logger      *slog.Logger
}

// NewNotifier creates a Notifier that delivers to the given senders. Breaks
// below minSeverity are dropped; an empty minSeverity forwards everything.
func NewNotifier(senders []Sender, minSeverity domain.Severity, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders:     senders,
		minSeverity: minSeverity,
		logger:      logger.With(slog.String("component", "notifier")),
	}
}

// severityRank orders severities for threshold comparison.
func severityRank(s domain.Severity) int {
	switch s {
	case domain.SeverityLow:
		return 1
	case domain.SeverityMedium:
		return 2
	case domain.SeverityHigh:
		return 3
	default:
		return 0
	}
}

// NotifyBreak formats and dispatches a break alert to all senders if it meets
// the severity threshold.
func (n *Notifier) NotifyBreak(ctx context.Context, brk domain.Break) error {
	if n.minSeverity != "" && severityRank(brk.Severity) < severityRank(n.minSeverity) {
		n.logger.DebugContext(ctx, "break below notify threshold",
			slog.String("break_id", brk.BreakID),
			slog.String("severity", string(brk.Severity)),
		)
		return nil
	}

	title := fmt.Sprintf("Reconciliation break: %s (%s)", brk.Type, brk.Severity)
	var b strings.Builder
	fmt.Fprintf(&b, "Trade %s\n%s", brk.TradeID, brk.Detail)
	if brk.NotionalUSD > 0 {
		fmt.Fprintf(&b, "\nNotional: $%.2f", brk.NotionalUSD)
	}

	return n.dispatch(ctx, title, b.String())
}

// dispatch iterates over all senders. Errors from individual senders are
// collected and returned combined; a single sender failure does not prevent
// delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
