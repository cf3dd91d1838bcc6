package etl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"harmonycore/internal/blob"
	"harmonycore/pkg/domain"
)

// Archive object names under runs/<batch-id>/.
const (
	ArchiveFields = "fields.tsv"
	ArchiveReport = "report.json"
)

// ArchivePrefix returns the blob prefix holding a batch's archive.
func ArchivePrefix(batchID string) string { return path.Join("runs", batchID) + "/" }

// Archive stores the raw batch and its report. Objects are create-only, so
// archiving the same batch twice fails with blob.ErrExists.
func Archive(ctx context.Context, store blob.Store, fields []domain.RawField, report *Report) ([]blob.Info, error) {
	if store == nil {
		return nil, errors.New("archive: blob store is required")
	}
	if report == nil || report.BatchID == "" {
		return nil, errors.New("archive: report has no batch id")
	}
	var raw bytes.Buffer
	if err := WriteFields(&raw, fields); err != nil {
		return nil, fmt.Errorf("archive fields: %w", err)
	}
	report.mu.Lock()
	doc, err := json.MarshalIndent(report, "", "  ")
	report.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("archive report: %w", err)
	}

	meta := map[string]string{"batch-id": report.BatchID}
	prefix := ArchivePrefix(report.BatchID)
	objects := []struct {
		name, contentType string
		body              []byte
	}{
		{ArchiveFields, "text/tab-separated-values", raw.Bytes()},
		{ArchiveReport, "application/json", doc},
	}
	infos := make([]blob.Info, 0, len(objects))
	for _, obj := range objects {
		info, err := store.Put(ctx, prefix+obj.name, bytes.NewReader(obj.body), blob.PutOptions{ContentType: obj.contentType, Metadata: meta})
		if err != nil {
			return infos, fmt.Errorf("archive %s: %w", obj.name, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// ErrNotArchived is returned by ReadArchive when no objects exist for a batch.
var ErrNotArchived = errors.New("batch is not archived")

// ArchivedRun is a batch read back from blob storage.
type ArchivedRun struct {
	BatchID string
	Objects []blob.Info
	Fields  []domain.RawField
	Report  *Report
}

// ReadArchive loads the objects Archive wrote for batchID.
func ReadArchive(ctx context.Context, store blob.Store, batchID string) (*ArchivedRun, error) {
	if store == nil {
		return nil, errors.New("archive: blob store is required")
	}
	if batchID == "" {
		return nil, errors.New("archive: batch id is required")
	}
	prefix := ArchivePrefix(batchID)
	listed, err := store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	if len(listed) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotArchived, batchID)
	}
	run := &ArchivedRun{BatchID: batchID, Objects: make([]blob.Info, 0, len(listed))}
	for _, obj := range listed {
		// List does not carry user metadata on every backend.
		info, err := store.Head(ctx, obj.Key)
		if err != nil {
			return nil, fmt.Errorf("head %s: %w", obj.Key, err)
		}
		run.Objects = append(run.Objects, info)
	}

	if err := readObject(ctx, store, prefix+ArchiveFields, func(r io.Reader) error {
		fields, err := ReadFields(r)
		run.Fields = fields
		return err
	}); err != nil {
		return nil, err
	}
	if err := readObject(ctx, store, prefix+ArchiveReport, func(r io.Reader) error {
		run.Report = &Report{}
		return json.NewDecoder(r).Decode(run.Report)
	}); err != nil {
		return nil, err
	}
	return run, nil
}

func readObject(ctx context.Context, store blob.Store, key string, decode func(io.Reader) error) error {
	_, body, err := store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = body.Close() }()
	if err := decode(body); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
