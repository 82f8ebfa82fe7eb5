package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/optfolio/optfolio/internal/domain"
)

// ArchiveImpl implements domain.Archiver by reading aged portfolio snapshots
// from the snapshot store, serializing them to JSONL, and uploading the
// result to object storage. Snapshots are pruned from the primary store only
// after the upload has succeeded.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	reader    domain.BlobReader
	snapshots domain.SnapshotStore
}

// NewArchiver creates a new ArchiveImpl. reader may be nil; when set, uploads
// are verified with an existence check before the store is pruned.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, snapshots domain.SnapshotStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:    writer,
		reader:    reader,
		snapshots: snapshots,
	}
}

// ArchiveSnapshots uploads every snapshot older than the cutoff to
// archive/snapshots/YYYY-MM.jsonl, then prunes them from the store. The
// count of archived snapshots is returned.
func (a *ArchiveImpl) ArchiveSnapshots(ctx context.Context, before time.Time) (int64, error) {
	all, err := a.snapshots.ListSince(ctx, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots query: %w", err)
	}

	var aged []domain.PortfolioSnapshot
	for _, snap := range all {
		if snap.TakenAt.Before(before) {
			aged = append(aged, snap)
		}
	}
	if len(aged) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(aged)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots marshal: %w", err)
	}

	path := archivePath("snapshots", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots upload: %w", err)
	}

	// Never prune rows whose archive copy cannot be confirmed.
	if a.reader != nil {
		ok, err := a.reader.Exists(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("s3blob: verify archive %s: %w", path, err)
		}
		if !ok {
			return 0, fmt.Errorf("s3blob: archive %s missing after upload", path)
		}
	}

	if _, err := a.snapshots.DeleteBefore(ctx, before); err != nil {
		return int64(len(aged)), fmt.Errorf("s3blob: prune archived snapshots: %w", err)
	}

	return int64(len(aged)), nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/snapshots/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serializes a slice of records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*ArchiveImpl)(nil)
