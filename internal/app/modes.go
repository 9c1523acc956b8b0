package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/reconbot/internal/domain"
	"github.com/alanyoungcy/reconbot/internal/feed"
	"github.com/alanyoungcy/reconbot/internal/recon"
	"github.com/alanyoungcy/reconbot/internal/server"
	"github.com/alanyoungcy/reconbot/internal/server/handler"
	"github.com/alanyoungcy/reconbot/internal/server/ws"
)

// shutdownGrace is the deadline for in-flight HTTP requests on shutdown.
const shutdownGrace = 10 * time.Second

// buildReconciler constructs the broadcaster and reconciler core from config.
func (a *App) buildReconciler() (*recon.Reconciler, *recon.Broadcaster) {
	bc := recon.NewBroadcaster(a.cfg.Recon.SubscriberBuffer, a.logger)
	rc := recon.New(recon.Config{
		Rules: recon.RuleConfig{
			SLA:            time.Duration(a.cfg.Recon.SLAMinutes) * time.Minute,
			PriceTolerance: a.cfg.Recon.PriceTolerance,
			EscalateAfter:  time.Duration(a.cfg.Recon.EscalateAfterMs) * time.Millisecond,
		},
		QueueSize:    a.cfg.Recon.QueueSize,
		DrainOnClose: a.cfg.Recon.DrainOnClose,
	}, bc, a.logger)
	return rc, bc
}

// startBreakBridges fans detected breaks out to the optional collaborators:
// the break store, the Redis signal bus, and the notifier. Each bridge is its
// own broadcaster subscriber, so a slow backend drops its own messages
// without affecting the others or the core.
func (a *App) startBreakBridges(ctx context.Context, g *errgroup.Group, bc *recon.Broadcaster, deps *Dependencies) {
	if deps.Breaks != nil {
		g.Go(func() error {
			id, ch := bc.Subscribe()
			defer bc.Unsubscribe(id)
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case brk, ok := <-ch:
					if !ok {
						return nil
					}
					if err := deps.Breaks.Upsert(ctx, brk); err != nil {
						a.logger.ErrorContext(ctx, "break store upsert failed",
							slog.String("break_id", brk.BreakID),
							slog.String("error", err.Error()),
						)
					}
				}
			}
		})
	}

	if deps.SignalBus != nil {
		channel := a.cfg.Redis.BreakChannel
		g.Go(func() error {
			id, ch := bc.Subscribe()
			defer bc.Unsubscribe(id)
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case brk, ok := <-ch:
					if !ok {
						return nil
					}
					payload, err := json.Marshal(brk)
					if err != nil {
						continue
					}
					if err := deps.SignalBus.Publish(ctx, channel, payload); err != nil {
						a.logger.WarnContext(ctx, "break mirror publish failed",
							slog.String("break_id", brk.BreakID),
							slog.String("error", err.Error()),
						)
					}
				}
			}
		})
	}

	if deps.Notifier != nil {
		g.Go(func() error {
			id, ch := bc.Subscribe()
			defer bc.Unsubscribe(id)
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case brk, ok := <-ch:
					if !ok {
						return nil
					}
					if err := deps.Notifier.NotifyBreak(ctx, brk); err != nil {
						a.logger.WarnContext(ctx, "break notification failed",
							slog.String("break_id", brk.BreakID),
							slog.String("error", err.Error()),
						)
					}
				}
			}
		})
	}
}

// startHTTPServer builds the handlers and runs the HTTP/WebSocket API.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, rc *recon.Reconciler, bc *recon.Broadcaster, deps *Dependencies) {
	sla := time.Duration(a.cfg.Recon.SLAMinutes) * time.Minute

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.cfg.Mode, rc, a.logger),
		Breaks:  handler.NewBreaksHandler(rc, a.logger),
		Ingest:  handler.NewIngestHandler(rc, deps.Journal, a.logger),
		Missing: handler.NewMissingHandler(deps.Journal, sla, a.logger),
	}

	hub := ws.NewHub(bc, a.cfg.Mode, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: time.Duration(a.cfg.Server.RateLimitWindow) * time.Second,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startArchiveJob periodically exports aged journal rows and break history to
// blob storage.
func (a *App) startArchiveJob(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	interval := time.Duration(a.cfg.Archive.IntervalHours) * time.Hour
	retain := time.Duration(a.cfg.Archive.RetainDays) * 24 * time.Hour

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-retain)
				journaled, err := deps.Archiver.ArchiveJournal(ctx, cutoff)
				if err != nil {
					a.logger.ErrorContext(ctx, "journal archive failed", slog.String("error", err.Error()))
				}
				archived, err := deps.Archiver.ArchiveBreaks(ctx, cutoff)
				if err != nil {
					a.logger.ErrorContext(ctx, "break archive failed", slog.String("error", err.Error()))
				}
				a.logger.InfoContext(ctx, "archive cycle complete",
					slog.Int64("journal_rows", journaled),
					slog.Int64("breaks", archived),
					slog.Time("cutoff", cutoff),
				)
			}
		}
	})
}

// ServeMode runs the long-lived service: the reconciler loop, the break
// bridges, the HTTP/WebSocket API, and optionally the live feed and the
// archive job.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	rc, bc := a.buildReconciler()
	g.Go(func() error {
		defer bc.Close()
		return rc.Run(ctx)
	})

	a.startBreakBridges(ctx, g, bc, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, rc, bc, deps)
	}

	if a.cfg.Feed.BinanceEnabled {
		binance := feed.NewBinanceFeed(
			a.cfg.Feed.BinanceWSURL,
			a.cfg.Feed.Symbols,
			a.cfg.Feed.BreakRate,
			a.logger,
		)
		g.Go(func() error {
			defer binance.Close()
			return binance.Run(ctx, rc)
		})
	}

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		a.startArchiveJob(ctx, g, deps)
	}

	return g.Wait()
}

// ReplayMode replays the configured CSV pair through the reconciler, waits
// for the queue to drain, and logs a summary.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting replay mode",
		slog.String("trades_csv", a.cfg.Feed.TradesCSV),
		slog.String("confirms_csv", a.cfg.Feed.ConfirmsCSV),
	)

	g, gctx := errgroup.WithContext(ctx)

	rc, bc := a.buildReconciler()
	g.Go(func() error {
		defer bc.Close()
		err := rc.Run(gctx)
		if errors.Is(err, domain.ErrQueueClosed) {
			return nil
		}
		return err
	})

	a.startBreakBridges(gctx, g, bc, deps)

	replay := feed.NewCSVReplay(
		a.cfg.Feed.TradesCSV,
		a.cfg.Feed.ConfirmsCSV,
		time.Duration(a.cfg.Feed.ThrottleMs)*time.Millisecond,
		a.cfg.Feed.MaxTrades,
		a.logger,
	)
	if err := replay.Run(gctx, rc); err != nil {
		rc.Close()
		_ = g.Wait()
		return fmt.Errorf("replay mode: %w", err)
	}

	// Close drains the queue (DrainOnClose), then the loop exits and the
	// bridges wind down when the broadcaster closes.
	rc.Close()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	stats := rc.Stats()
	a.logger.InfoContext(ctx, "replay complete",
		slog.Int64("processed", stats.Processed),
		slog.Int64("detected_breaks", stats.DetectedBreaks),
		slog.Float64("avg_detect_ms", stats.AvgDetectMs),
	)
	return nil
}

// SeedMode regenerates the demo CSV pair and exits.
func (a *App) SeedMode(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting seed mode",
		slog.String("trades_out", a.cfg.Seed.TradesOut),
		slog.String("confirms_out", a.cfg.Seed.ConfirmsOut),
		slog.Int("count", a.cfg.Seed.Count),
	)

	gen := feed.SeedGen{
		Count:     a.cfg.Seed.Count,
		BreakRate: a.cfg.Seed.BreakRate,
		Seed:      a.cfg.Seed.RandomSeed,
	}
	if err := gen.Generate(a.cfg.Seed.TradesOut, a.cfg.Seed.ConfirmsOut); err != nil {
		return fmt.Errorf("seed mode: %w", err)
	}

	a.logger.InfoContext(ctx, "seed data written",
		slog.Int("trades", a.cfg.Seed.Count),
	)
	return nil
}
