package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/maxscroll/internal/hit"
)

// ArchiveSink writes each batch as one newline-delimited JSON object in a
// Cloud Storage bucket, partitioned by the batch's first hit date.
type ArchiveSink struct {
	client *storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewArchiveSink wraps an existing client. Authentication is handled by the
// client, usually via Application Default Credentials.
func NewArchiveSink(client *storage.Client, bucket, prefix string, logger *zap.Logger) *ArchiveSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveSink{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// ObjectName returns the object key used for batch.
func (s *ArchiveSink) ObjectName(batch []hit.Hit) string {
	first := batch[0]
	ts := first.TS.UTC()
	return path.Join(
		s.prefix,
		ts.Format("2006/01/02"),
		fmt.Sprintf("%d-%s.jsonl", ts.UnixNano(), first.ID),
	)
}

// Consume uploads the batch.
func (s *ArchiveSink) Consume(ctx context.Context, batch []hit.Hit) error {
	if len(batch) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, h := range batch {
		if err := enc.Encode(h); err != nil {
			return fmt.Errorf("encode hit %s: %w", h.ID, err)
		}
	}

	objectName := s.ObjectName(batch)
	wc := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	wc.ContentType = "application/x-ndjson"
	if _, err := wc.Write(buf.Bytes()); err != nil {
		if cerr := wc.Close(); cerr != nil {
			s.logger.Warn("failed to close archive writer after write failure", zap.Error(cerr))
		}
		return fmt.Errorf("write archive object %s: %w", objectName, err)
	}
	// Close finalizes the upload.
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close archive object %s: %w", objectName, err)
	}
	return nil
}

// Close implements the Sink interface; the client is owned by the caller.
func (s *ArchiveSink) Close(context.Context) error {
	return nil
}
