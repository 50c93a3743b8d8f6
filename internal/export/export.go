// Package export archives the hourly health log as JSONL.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

// Destination receives a finished JSONL document.
type Destination interface {
	Write(ctx context.Context, key string, data []byte) error
}

// header is the first JSONL record written by WriteJSONL.
type header struct {
	Version       string    `json:"version"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	Since         time.Time `json:"since"`
	SnapshotCount int       `json:"snapshot_count"`
}

type record struct {
	Type string               `json:"type"`
	Data types.HealthSnapshot `json:"data"`
}

// WriteJSONL writes every health log entry recorded at or after since to w,
// oldest first, preceded by a header line. It returns the number of
// snapshots written.
func WriteJSONL(ctx context.Context, logs store.HealthLogStore, since, now time.Time, w io.Writer) (int, error) {
	snaps, err := logs.ListSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("list health log: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:       "1",
		Type:          "header",
		Timestamp:     now.UTC(),
		Since:         since.UTC(),
		SnapshotCount: len(snaps),
	}); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	for _, s := range snaps {
		if err := enc.Encode(record{Type: "health_snapshot", Data: s}); err != nil {
			return 0, fmt.Errorf("write snapshot %s: %w", s.ID, err)
		}
	}
	return len(snaps), nil
}

// Exporter writes health log archives to a destination.
type Exporter struct {
	logs   store.HealthLogStore
	dest   Destination
	prefix string
	now    func() time.Time
}

// NewExporter returns an Exporter. Object keys are placed under prefix.
func NewExporter(logs store.HealthLogStore, dest Destination, prefix string) *Exporter {
	return &Exporter{
		logs:   logs,
		dest:   dest,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (e *Exporter) WithClock(now func() time.Time) *Exporter {
	e.now = now
	return e
}

// Result describes one export run.
type Result struct {
	Key       string `json:"key"`
	Snapshots int    `json:"snapshots"`
	Bytes     int    `json:"bytes"`
}

// Export archives the trailing window of the health log.
func (e *Exporter) Export(ctx context.Context, window time.Duration) (Result, error) {
	now := e.now()
	since := now.Add(-window)

	var buf bytes.Buffer
	n, err := WriteJSONL(ctx, e.logs, since, now, &buf)
	if err != nil {
		return Result{}, err
	}

	key := ObjectKey(e.prefix, now)
	if err := e.dest.Write(ctx, key, buf.Bytes()); err != nil {
		return Result{}, fmt.Errorf("write %s: %w", key, err)
	}
	return Result{Key: key, Snapshots: n, Bytes: buf.Len()}, nil
}

// ObjectKey names an archive by its export time.
func ObjectKey(prefix string, at time.Time) string {
	name := "health-log-" + at.UTC().Format("20060102T150405Z") + ".jsonl"
	if prefix == "" {
		return name
	}
	return filepath.ToSlash(filepath.Join(prefix, name))
}

// DirDestination writes archives into a local directory.
type DirDestination struct {
	Dir string
}

func (d DirDestination) Write(_ context.Context, key string, data []byte) error {
	path := filepath.Join(d.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
