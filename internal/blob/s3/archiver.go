package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"

	// multipartThreshold switches uploads to the multipart manager.
	multipartThreshold = 32 * 1024 * 1024
)

// EventSource is the slice of the audit log the archiver reads and prunes.
type EventSource interface {
	ListBefore(ctx context.Context, events []string, before time.Time) ([]domain.AuditEntry, error)
	DeleteBefore(ctx context.Context, events []string, before time.Time) (int64, error)
}

// ObjectChecker reports whether an archive object already exists.
type ObjectChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// ArchiverConfig tunes an EventArchiver.
type ArchiverConfig struct {
	// Events are the audit event names to archive.
	Events []string
	// Prune deletes archived rows from the audit log once their month is
	// stored.
	Prune    bool
	PartSize int64
}

// EventArchiver implements domain.Archiver. It moves ledger events older
// than a cutoff from the audit log into one JSONL object per calendar month
// at archive/ledger_events/YYYY-MM.jsonl. Only complete months are archived,
// so a stored month never changes and a rerun skips it.
type EventArchiver struct {
	writer domain.BlobWriter
	exists ObjectChecker
	source EventSource
	audit  domain.AuditStore
	cfg    ArchiverConfig
	logger *slog.Logger
}

// NewEventArchiver creates an EventArchiver. audit records each run and may
// be nil.
func NewEventArchiver(
	writer domain.BlobWriter,
	exists ObjectChecker,
	source EventSource,
	audit domain.AuditStore,
	cfg ArchiverConfig,
	logger *slog.Logger,
) *EventArchiver {
	return &EventArchiver{
		writer: writer,
		exists: exists,
		source: source,
		audit:  audit,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveEvents archives every complete month before the month containing
// before, and returns how many events were uploaded.
func (a *EventArchiver) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	cutoff := monthStart(before)
	entries, err := a.source.ListBefore(ctx, a.cfg.Events, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	months := groupByMonth(entries)
	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var uploaded int64
	for _, month := range keys {
		path := archivePath("ledger_events", month)
		done, err := a.exists.Exists(ctx, path)
		if err != nil {
			return uploaded, err
		}
		if done {
			a.logger.InfoContext(ctx, "archiver: month already archived", slog.String("path", path))
			continue
		}
		n, err := a.upload(ctx, path, months[month])
		if err != nil {
			return uploaded, err
		}
		uploaded += n
	}

	if a.cfg.Prune {
		deleted, err := a.source.DeleteBefore(ctx, a.cfg.Events, cutoff)
		if err != nil {
			return uploaded, fmt.Errorf("s3blob: prune archived events: %w", err)
		}
		a.logger.InfoContext(ctx, "archiver: pruned audit log", slog.Int64("deleted", deleted))
	}
	return uploaded, nil
}

func (a *EventArchiver) upload(ctx context.Context, path string, entries []domain.AuditEntry) (int64, error) {
	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), a.cfg.PartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	count := int64(len(entries))
	a.logger.InfoContext(ctx, "archiver: month archived",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Int("bytes", len(buf)),
	)
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.ledger_events", map[string]any{
			"path":  path,
			"count": count,
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive events audit log: %w", err)
		}
	}
	return count, nil
}

// archiveRecord is one JSONL line.
type archiveRecord struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

func groupByMonth(entries []domain.AuditEntry) map[string][]domain.AuditEntry {
	out := make(map[string][]domain.AuditEntry)
	for _, e := range entries {
		k := e.CreatedAt.UTC().Format("2006-01")
		out[k] = append(out[k], e)
	}
	return out
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// archivePath builds the key of a monthly archive, e.g.
// archive/ledger_events/2026-09.jsonl.
func archivePath(kind, month string) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, month)
}

// marshalJSONL encodes entries as newline-delimited JSON.
func marshalJSONL(entries []domain.AuditEntry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, e := range entries {
		rec := archiveRecord{ID: e.ID, Event: e.Event, Detail: e.Detail, CreatedAt: e.CreatedAt.UTC()}
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*EventArchiver)(nil)
