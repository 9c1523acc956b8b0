package recon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/reconbot/internal/domain"
)

func testBreak(id string) domain.Break {
	return domain.Break{
		BreakID:   "BRK-" + id + "-QTY",
		TradeID:   id,
		Type:      domain.BreakQuantityMismatch,
		Severity:  domain.SeverityHigh,
		CreatedAt: time.Now().UTC(),
	}
}

func recvOne(t *testing.T, ch <-chan domain.Break) domain.Break {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for break")
		return domain.Break{}
	}
}

func TestBroadcaster_FanOut(t *testing.T) {
	bc := NewBroadcaster(4, testLogger())
	defer bc.Close()

	_, ch1 := bc.Subscribe()
	_, ch2 := bc.Subscribe()
	require.Equal(t, 2, bc.SubscriberCount())

	bc.Publish(testBreak("T-1"))

	assert.Equal(t, "T-1", recvOne(t, ch1).TradeID)
	assert.Equal(t, "T-1", recvOne(t, ch2).TradeID)
}

func TestBroadcaster_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	bc := NewBroadcaster(1, testLogger())
	defer bc.Close()

	_, slow := bc.Subscribe()
	_, fast := bc.Subscribe()

	// Fill the slow subscriber's buffer, then keep publishing while the fast
	// subscriber keeps draining. Publish must never block and the fast
	// subscriber must keep receiving.
	bc.Publish(testBreak("T-1"))
	assert.Equal(t, "T-1", recvOne(t, fast).TradeID)
	bc.Publish(testBreak("T-2"))
	assert.Equal(t, "T-2", recvOne(t, fast).TradeID)

	// The slow subscriber kept only the first message; the second was
	// dropped for it alone.
	assert.Equal(t, "T-1", recvOne(t, slow).TradeID)
	select {
	case b := <-slow:
		t.Fatalf("slow subscriber should have dropped T-2, got %s", b.TradeID)
	default:
	}
}

func TestBroadcaster_UnsubscribeIdempotent(t *testing.T) {
	bc := NewBroadcaster(4, testLogger())
	defer bc.Close()

	id, ch := bc.Subscribe()
	bc.Unsubscribe(id)
	bc.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open, "channel must be closed after unsubscribe")
	assert.Equal(t, 0, bc.SubscriberCount())

	// Publishing to an empty set is a no-op, not a panic.
	bc.Publish(testBreak("T-1"))
}

func TestBroadcaster_NoReplayOnResubscribe(t *testing.T) {
	bc := NewBroadcaster(4, testLogger())
	defer bc.Close()

	id, _ := bc.Subscribe()
	bc.Publish(testBreak("T-before"))
	bc.Unsubscribe(id)

	_, ch := bc.Subscribe()
	bc.Publish(testBreak("T-after"))

	got := recvOne(t, ch)
	assert.Equal(t, "T-after", got.TradeID)
	select {
	case b := <-ch:
		t.Fatalf("unexpected backlog delivery: %s", b.TradeID)
	default:
	}
}

func TestBroadcaster_CloseDisconnectsAll(t *testing.T) {
	bc := NewBroadcaster(4, testLogger())

	_, ch := bc.Subscribe()
	bc.Close()

	_, open := <-ch
	assert.False(t, open)

	_, late := bc.Subscribe()
	_, open = <-late
	assert.False(t, open, "subscribe after close returns a closed channel")
}
