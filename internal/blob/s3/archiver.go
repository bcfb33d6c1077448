package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

// Archiver implements domain.ResultArchiver by serializing a finished run's
// result set to JSONL files and uploading them under a per-run prefix:
//
//	runs/<run_id>/trades.jsonl
//	runs/<run_id>/equity.jsonl
//	runs/<run_id>/events.jsonl
//	runs/<run_id>/sessions.jsonl
//
// Uploads are idempotent: a keyed replay overwrites the same keys with the
// same bytes.
type Archiver struct {
	writer putter
}

// putter is the single upload operation the archiver needs from a Writer.
type putter interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}

// NewArchiver creates an Archiver uploading through the given writer.
func NewArchiver(writer *Writer) *Archiver {
	return &Archiver{writer: writer}
}

// ArchiveRun uploads every artifact of the result set.
func (a *Archiver) ArchiveRun(ctx context.Context, rs domain.ResultSet) error {
	if err := a.put(ctx, rs.RunID, "trades", rs.Records); err != nil {
		return err
	}
	if err := a.put(ctx, rs.RunID, "equity", rs.Equity); err != nil {
		return err
	}
	if err := a.put(ctx, rs.RunID, "events", rs.Events); err != nil {
		return err
	}
	return a.put(ctx, rs.RunID, "sessions", rs.Sessions)
}

func (a *Archiver) put(ctx context.Context, runID, name string, records any) error {
	buf, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("s3blob: archive %s: %w", name, err)
	}
	key := fmt.Sprintf("runs/%s/%s.jsonl", runID, name)
	if err := a.writer.Put(ctx, key, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive %s: %w", name, err)
	}
	return nil
}

// marshalJSONL serializes a slice as newline-delimited JSON, one compact
// line per element.
func marshalJSONL(records any) ([]byte, error) {
	raw, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("jsonl marshal: %w", err)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("jsonl split: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, e := range elems {
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.ResultArchiver = (*Archiver)(nil)
