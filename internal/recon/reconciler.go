package recon

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/reconbot/internal/domain"
)

// defaultQueueSize bounds the shared event queue. Producers block (context
// aware) when the queue is full.
const defaultQueueSize = 4096

// Config holds the reconciler's startup parameters.
type Config struct {
	Rules     RuleConfig
	QueueSize int
	// DrainOnClose controls the shutdown policy: when the reconciler is
	// closed (as opposed to its context being cancelled), drain whatever is
	// already queued before returning instead of abandoning it.
	DrainOnClose bool
}

// Reconciler owns the trade/confirm/break state, the bounded event queue,
// and the running statistics. Any number of producers may Enqueue
// concurrently; a single consumer goroutine (Run) drains the queue, invokes
// the rule evaluator, and hands new breaks to the broadcaster. The three
// maps are the only shared mutable state in the core and are guarded by one
// RWMutex: the loop is the sole writer, readers take consistent snapshots.
type Reconciler struct {
	cfg    Config
	queue  chan domain.Event
	done   chan struct{}
	closer sync.Once

	mu       sync.RWMutex
	trades   map[string]domain.Trade
	confirms map[string]domain.Confirm
	breaks   map[string]domain.Break
	stats    domain.Stats

	bc     *Broadcaster
	logger *slog.Logger
}

// New creates a Reconciler that forwards detected breaks to bc.
func New(cfg Config, bc *Broadcaster, logger *slog.Logger) *Reconciler {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Rules.SLA <= 0 {
		cfg.Rules = DefaultRuleConfig()
	}
	return &Reconciler{
		cfg:      cfg,
		queue:    make(chan domain.Event, cfg.QueueSize),
		done:     make(chan struct{}),
		trades:   make(map[string]domain.Trade),
		confirms: make(map[string]domain.Confirm),
		breaks:   make(map[string]domain.Break),
		bc:       bc,
		logger:   logger.With(slog.String("component", "reconciler")),
	}
}

// Enqueue pushes one `(kind, payload)` event onto the shared queue. It blocks
// while the queue is full and returns early if ctx is cancelled or the
// reconciler has been closed. FIFO order is preserved per producer; no order
// is guaranteed across producers.
func (r *Reconciler) Enqueue(ctx context.Context, kind domain.EventKind, payload []byte) error {
	ev := domain.Event{Kind: kind, Payload: payload, EnqueuedAt: time.Now().UTC()}
	select {
	case <-r.done:
		return domain.ErrQueueClosed
	default:
	}
	select {
	case r.queue <- ev:
		return nil
	case <-r.done:
		return domain.ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the reconciler. Run returns domain.ErrQueueClosed after
// applying the configured drain policy. Safe to call more than once.
func (r *Reconciler) Close() {
	r.closer.Do(func() { close(r.done) })
}

// Run is the consumer loop. It processes events until ctx is cancelled
// (in-flight work abandoned) or Close is called (queued work drained when
// DrainOnClose is set). It should be run in its own goroutine; there is
// exactly one consumer per Reconciler.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("reconciler started",
		slog.Int("queue_size", r.cfg.QueueSize),
		slog.Duration("sla", r.cfg.Rules.SLA),
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.done:
			if r.cfg.DrainOnClose {
				r.drain(ctx)
			}
			r.logger.Info("reconciler stopped")
			return domain.ErrQueueClosed
		case ev := <-r.queue:
			r.process(ev)
		}
	}
}

// drain processes whatever is already buffered without waiting for more.
func (r *Reconciler) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.queue:
			r.process(ev)
		default:
			return
		}
	}
}

// process handles a single dequeued event: decode, upsert, fetch the
// counterpart record, evaluate, store and broadcast any breaks, and update
// the running statistics. A malformed payload is fatal to that event only.
func (r *Reconciler) process(ev domain.Event) {
	t0 := time.Now()
	now := t0.UTC()

	var brks []domain.Break
	switch ev.Kind {
	case domain.EventTrade:
		trade, err := domain.DecodeTrade(ev.Payload)
		if err != nil {
			r.logger.Warn("skipping event", slog.String("kind", string(ev.Kind)), slog.String("error", err.Error()))
			break
		}
		r.mu.Lock()
		r.trades[trade.TradeID] = trade
		confirm, ok := r.confirms[trade.TradeID]
		r.mu.Unlock()

		var cp *domain.Confirm
		if ok {
			cp = &confirm
		}
		brks = Evaluate(trade, cp, now, r.cfg.Rules)

	case domain.EventConfirm:
		confirm, err := domain.DecodeConfirm(ev.Payload)
		if err != nil {
			r.logger.Warn("skipping event", slog.String("kind", string(ev.Kind)), slog.String("error", err.Error()))
			break
		}
		r.mu.Lock()
		r.confirms[confirm.TradeID] = confirm
		trade, ok := r.trades[confirm.TradeID]
		r.mu.Unlock()

		// A confirm arriving before its trade is held until the trade shows
		// up; the trade event re-runs the pairwise rules.
		if ok {
			brks = Evaluate(trade, &confirm, now, r.cfg.Rules)
		}

	default:
		r.logger.Warn("unknown event kind", slog.String("kind", string(ev.Kind)))
	}

	dtMs := float64(time.Since(t0).Microseconds()) / 1000.0

	r.mu.Lock()
	for _, b := range brks {
		r.breaks[b.BreakID] = b
	}
	r.stats.Processed++
	r.stats.DetectedBreaks += int64(len(brks))
	// Incremental online mean; no history kept, numerically stable.
	r.stats.AvgDetectMs += (dtMs - r.stats.AvgDetectMs) / float64(r.stats.Processed)
	r.mu.Unlock()

	for _, b := range brks {
		r.bc.Publish(b)
		r.logger.Info("break detected",
			slog.String("break_id", b.BreakID),
			slog.String("type", string(b.Type)),
			slog.String("severity", string(b.Severity)),
			slog.Float64("notional_usd", b.NotionalUSD),
		)
	}
}

// RecentBreaks returns up to limit breaks ordered by creation time
// descending. The lock is held only to snapshot the map; sorting happens on
// the copy.
func (r *Reconciler) RecentBreaks(limit int) []domain.Break {
	if limit <= 0 {
		limit = 200
	}

	r.mu.RLock()
	out := make([]domain.Break, 0, len(r.breaks))
	for _, b := range r.breaks {
		out = append(out, b)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].BreakID < out[j].BreakID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Stats returns a consistent snapshot of the running counters.
func (r *Reconciler) Stats() domain.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}
