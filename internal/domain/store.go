package domain

import (
	"context"
	"io"
	"time"
)

// Stats is a snapshot of the reconciler's running counters.
type Stats struct {
	Processed      int64   `json:"processed"`
	DetectedBreaks int64   `json:"detected_breaks"`
	AvgDetectMs    float64 `json:"avg_detect_ms"`
}

// MissingTrade is a journal row for a trade past the SLA cutoff with no
// matching confirmation on record.
type MissingTrade struct {
	TradeID  string    `json:"trade_id"`
	Account  string    `json:"account"`
	Symbol   string    `json:"symbol"`
	Qty      int64     `json:"qty"`
	ExecTime time.Time `json:"exec_time"`
	Detail   string    `json:"detail"`
}

// JournalStore durably logs raw trade and confirm records for historical SLA
// queries. It is an optional collaborator: break detection never depends on
// it. Matching in ListMissing is tolerant -- exact trade_id first, then a
// composite account+symbol+qty match within a relative tolerance.
type JournalStore interface {
	RecordTrade(ctx context.Context, t Trade, raw []byte) error
	RecordConfirm(ctx context.Context, c Confirm, raw []byte) error
	ListMissing(ctx context.Context, cutoff time.Time, limit int) ([]MissingTrade, error)
	ListTradesBefore(ctx context.Context, before time.Time) ([]Trade, error)
	ListConfirmsBefore(ctx context.Context, before time.Time) ([]Confirm, error)
}

// BreakStore persists break history. Upsert is keyed by BreakID so repeated
// detection of the same condition overwrites rather than duplicates.
type BreakStore interface {
	Upsert(ctx context.Context, b Break) error
	ListRecent(ctx context.Context, limit int) ([]Break, error)
	ListBefore(ctx context.Context, before time.Time) ([]Break, error)
}

// SignalBus is a raw pub/sub channel used to mirror detected breaks to
// out-of-process consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter applies a sliding-window request limit per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver exports aged journal rows and break history to blob storage.
// Archiving never deletes from the primary store; retention is a separate,
// explicit step.
type Archiver interface {
	ArchiveJournal(ctx context.Context, before time.Time) (int64, error)
	ArchiveBreaks(ctx context.Context, before time.Time) (int64, error)
}
