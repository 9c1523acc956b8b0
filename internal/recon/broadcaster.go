package recon

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/alanyoungcy/reconbot/internal/domain"
)

// defaultSubscriberBuffer is the per-subscriber channel buffer. A subscriber
// that falls this far behind starts losing the newest breaks rather than
// stalling delivery to everyone else.
const defaultSubscriberBuffer = 64

// Broadcaster fans each newly detected break out to every connected
// subscriber. Delivery is non-blocking per subscriber: a full buffer drops
// the message for that subscriber only (drop-newest). The subscriber set is
// guarded independently of the reconciler's state store, so subscriber churn
// never contends with matching.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]chan domain.Break
	buf    int
	closed bool
	logger *slog.Logger
}

// NewBroadcaster creates a Broadcaster. buf is the per-subscriber channel
// buffer; values <= 0 fall back to the default.
func NewBroadcaster(buf int, logger *slog.Logger) *Broadcaster {
	if buf <= 0 {
		buf = defaultSubscriberBuffer
	}
	return &Broadcaster{
		subs:   make(map[string]chan domain.Break),
		buf:    buf,
		logger: logger.With(slog.String("component", "broadcaster")),
	}
}

// Subscribe registers a new subscriber and returns its handle together with
// the delivery channel. Subscribers receive only breaks broadcast after this
// call; there is no replay of history.
func (b *Broadcaster) Subscribe() (string, <-chan domain.Break) {
	id := uuid.NewString()
	ch := make(chan domain.Break, b.buf)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subs[id] = ch

	b.logger.Debug("subscriber connected",
		slog.String("subscriber_id", id),
		slog.Int("total", len(b.subs)),
	)
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. It is idempotent
// and safe to call concurrently with an in-flight Publish.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(ch)

	b.logger.Debug("subscriber disconnected",
		slog.String("subscriber_id", id),
		slog.Int("total", len(b.subs)),
	)
}

// Publish delivers brk to every current subscriber without blocking. Sends
// happen under the read lock, so a channel is never closed mid-send.
func (b *Broadcaster) Publish(brk domain.Break) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- brk:
		default:
			// Subscriber buffer full; drop for this subscriber only.
			b.logger.Warn("dropping break for slow subscriber",
				slog.String("subscriber_id", id),
				slog.String("break_id", brk.BreakID),
			)
		}
	}
}

// SubscriberCount returns the number of currently connected subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close disconnects all subscribers. Further Subscribe calls return a closed
// channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
