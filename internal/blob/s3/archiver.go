package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/reconbot/internal/domain"
)

// JournalArchiveSource provides read access to aged journal rows. The
// archiver only needs the two time-ranged queries, not the full journal
// store.
type JournalArchiveSource interface {
	ListTradesBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
	ListConfirmsBefore(ctx context.Context, before time.Time) ([]domain.Confirm, error)
}

// BreakArchiveSource provides read access to aged break history.
type BreakArchiveSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Break, error)
}

// ArchiveImpl implements domain.Archiver by querying the stores for old
// records, serializing them to JSONL, and uploading the result to blob
// storage.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here; retention is a separate, explicit step executed after
// the archive has been verified.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	journal JournalArchiveSource
	breaks  BreakArchiveSource
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, journal JournalArchiveSource, breaks BreakArchiveSource) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		journal: journal,
		breaks:  breaks,
	}
}

// ArchiveJournal uploads all journaled trades and confirmations older than
// the cutoff as two JSONL files under archive/journal/, partitioned by the
// year-month of the cutoff. It returns the total number of rows archived.
func (a *ArchiveImpl) ArchiveJournal(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.journal.ListTradesBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive journal trades query: %w", err)
	}
	confirms, err := a.journal.ListConfirmsBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive journal confirms query: %w", err)
	}
	if len(trades) == 0 && len(confirms) == 0 {
		return 0, nil
	}

	if len(trades) > 0 {
		buf, err := marshalJSONL(trades)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive journal trades marshal: %w", err)
		}
		path := archivePath("journal/trades", before)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return 0, fmt.Errorf("s3blob: archive journal trades upload: %w", err)
		}
	}

	if len(confirms) > 0 {
		buf, err := marshalJSONL(confirms)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive journal confirms marshal: %w", err)
		}
		path := archivePath("journal/confirms", before)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return 0, fmt.Errorf("s3blob: archive journal confirms upload: %w", err)
		}
	}

	return int64(len(trades) + len(confirms)), nil
}

// ArchiveBreaks uploads all breaks created before the cutoff as a JSONL file
// at archive/breaks/YYYY-MM.jsonl and returns the number archived.
func (a *ArchiveImpl) ArchiveBreaks(ctx context.Context, before time.Time) (int64, error) {
	breaks, err := a.breaks.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive breaks query: %w", err)
	}
	if len(breaks) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(breaks)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive breaks marshal: %w", err)
	}

	path := archivePath("breaks", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive breaks upload: %w", err)
	}

	return int64(len(breaks)), nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/breaks/2026-09.jsonl
//	archive/journal/trades/2026-09.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON, one
// compact line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
