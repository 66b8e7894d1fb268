package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

func TestNormaliseEndpoint(t *testing.T) {
	cases := []struct {
		in     string
		ssl    bool
		expect string
	}{
		{"https://s3.example.com", false, "https://s3.example.com"},
		{"minio:9000", false, "http://minio:9000"},
		{"r2.example.com", true, "https://r2.example.com"},
	}
	for _, tc := range cases {
		if got := normaliseEndpoint(tc.in, tc.ssl); got != tc.expect {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tc.in, tc.ssl, got, tc.expect)
		}
	}
}

func TestClientKey(t *testing.T) {
	c := &Client{prefix: normalisePrefix("/ledgers/main/")}
	if got := c.key("archive/ledger_events/2026-09.jsonl"); got != "ledgers/main/archive/ledger_events/2026-09.jsonl" {
		t.Errorf("key = %q", got)
	}
	bare := &Client{prefix: normalisePrefix("")}
	if got := bare.key("/a/b"); got != "a/b" {
		t.Errorf("key without prefix = %q", got)
	}
}

func TestIsNotFound(t *testing.T) {
	if !isNotFound(&types.NoSuchKey{}) {
		t.Error("NoSuchKey not recognised")
	}
	if !isNotFound(&types.NotFound{}) {
		t.Error("NotFound not recognised")
	}
	if isNotFound(errors.New("timeout")) {
		t.Error("plain error treated as not found")
	}
}

type memBlobs struct {
	objects   map[string][]byte
	multipart int
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	m.multipart++
	return m.Put(ctx, path, data, "")
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

type memSource struct {
	entries []domain.AuditEntry
	cutoffs []time.Time
}

func (s *memSource) ListBefore(_ context.Context, events []string, before time.Time) ([]domain.AuditEntry, error) {
	s.cutoffs = append(s.cutoffs, before)
	want := make(map[string]bool, len(events))
	for _, e := range events {
		want[e] = true
	}
	var out []domain.AuditEntry
	for _, e := range s.entries {
		if want[e.Event] && e.CreatedAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memSource) DeleteBefore(_ context.Context, events []string, before time.Time) (int64, error) {
	kept := s.entries[:0]
	var n int64
	for _, e := range s.entries {
		if e.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return n, nil
}

type memAudit struct{ events []string }

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func entryAt(id int64, ts string) domain.AuditEntry {
	at, _ := time.Parse(time.RFC3339, ts)
	return domain.AuditEntry{
		ID:        id,
		Event:     "ledger.market_created",
		Detail:    map[string]any{"market_id": "1"},
		CreatedAt: at,
	}
}

func newTestArchiver(t *testing.T, prune bool) (*EventArchiver, *memBlobs, *memSource, *memAudit) {
	t.Helper()
	blobs := &memBlobs{objects: map[string][]byte{}}
	src := &memSource{entries: []domain.AuditEntry{
		entryAt(1, "2026-08-03T10:00:00Z"),
		entryAt(2, "2026-08-30T23:59:59Z"),
		entryAt(3, "2026-09-12T08:00:00Z"),
		entryAt(4, "2026-10-02T12:00:00Z"),
	}}
	audit := &memAudit{}
	a := NewEventArchiver(blobs, blobs, src, audit, ArchiverConfig{
		Events: []string{"ledger.market_created"},
		Prune:  prune,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return a, blobs, src, audit
}

func TestEventArchiver_ArchivesCompleteMonths(t *testing.T) {
	a, blobs, src, audit := newTestArchiver(t, false)
	before := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	n, err := a.ArchiveEvents(context.Background(), before)
	if err != nil {
		t.Fatalf("ArchiveEvents: %v", err)
	}
	if n != 3 {
		t.Errorf("archived %d, want 3", n)
	}
	if want := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC); !src.cutoffs[0].Equal(want) {
		t.Errorf("cutoff = %s, want %s", src.cutoffs[0], want)
	}

	aug := blobs.objects["archive/ledger_events/2026-08.jsonl"]
	if lines := countLines(t, aug); lines != 2 {
		t.Errorf("august lines = %d, want 2", lines)
	}
	if _, ok := blobs.objects["archive/ledger_events/2026-09.jsonl"]; !ok {
		t.Error("september not archived")
	}
	if _, ok := blobs.objects["archive/ledger_events/2026-10.jsonl"]; ok {
		t.Error("current month archived")
	}
	if len(audit.events) != 2 {
		t.Errorf("audit runs = %d, want 2", len(audit.events))
	}
	if len(src.entries) != 4 {
		t.Error("entries pruned without Prune")
	}

	var rec archiveRecord
	if err := json.Unmarshal(bytes.SplitN(aug, []byte("\n"), 2)[0], &rec); err != nil {
		t.Fatal(err)
	}
	if rec.ID != 1 || rec.Event != "ledger.market_created" {
		t.Errorf("first record = %+v", rec)
	}
}

func TestEventArchiver_SkipsArchivedMonthsAndPrunes(t *testing.T) {
	a, blobs, src, _ := newTestArchiver(t, true)
	blobs.objects["archive/ledger_events/2026-08.jsonl"] = []byte("existing\n")

	n, err := a.ArchiveEvents(context.Background(), time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ArchiveEvents: %v", err)
	}
	if n != 1 {
		t.Errorf("archived %d, want 1", n)
	}
	if string(blobs.objects["archive/ledger_events/2026-08.jsonl"]) != "existing\n" {
		t.Error("existing month overwritten")
	}
	if len(src.entries) != 1 || src.entries[0].ID != 4 {
		t.Errorf("remaining entries = %+v", src.entries)
	}
}

func TestEventArchiver_NothingToDo(t *testing.T) {
	a, blobs, _, _ := newTestArchiver(t, false)
	n, err := a.ArchiveEvents(context.Background(), time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC))
	if err != nil || n != 0 {
		t.Fatalf("ArchiveEvents = %d, %v", n, err)
	}
	if len(blobs.objects) != 0 {
		t.Error("objects written with nothing to archive")
	}
}

func countLines(t *testing.T, b []byte) int {
	t.Helper()
	sc := bufio.NewScanner(bytes.NewReader(b))
	n := 0
	for sc.Scan() {
		n++
	}
	return n
}
