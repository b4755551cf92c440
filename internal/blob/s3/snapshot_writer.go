package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

const (
	// jsonlContentType is the MIME type for newline-delimited JSON.
	jsonlContentType = "application/x-ndjson"

	// multipartThreshold is the payload size above which uploads switch to the
	// S3 multipart manager. Month objects grow with every cycle; a busy month
	// can exceed a single-shot PutObject's comfort zone.
	multipartThreshold = 8 * 1024 * 1024
)

// SnapshotWriter appends pruned market snapshots to month-partitioned JSONL
// objects:
//
//	<prefix>/snapshots/2025-01.jsonl
//	<prefix>/snapshots/2025-02.jsonl
//
// Each WriteBatch reads the current month object, appends one JSON line per
// snapshot, and writes it back. The scanner is the only writer, so the
// read-modify-write cycle needs no locking.
type SnapshotWriter struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewSnapshotWriter creates a SnapshotWriter that stores objects under the
// given key prefix in the client's bucket.
func NewSnapshotWriter(c *Client, prefix string) *SnapshotWriter {
	return &SnapshotWriter{
		client: c.S3(),
		bucket: c.Bucket(),
		prefix: strings.TrimSuffix(prefix, "/"),
	}
}

// WriteBatch archives the snapshots, grouped into month objects by their
// capture time. Batches spanning a month boundary update both objects.
func (w *SnapshotWriter) WriteBatch(ctx context.Context, snaps []domain.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	byMonth := make(map[string][]domain.Snapshot)
	for _, s := range snaps {
		key := w.monthKey(s.CapturedAt)
		byMonth[key] = append(byMonth[key], s)
	}

	keys := make([]string, 0, len(byMonth))
	for key := range byMonth {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := w.appendToObject(ctx, key, byMonth[key]); err != nil {
			return err
		}
	}
	return nil
}

// monthKey builds the object key for the month containing t.
func (w *SnapshotWriter) monthKey(t time.Time) string {
	return fmt.Sprintf("%s/snapshots/%s.jsonl", w.prefix, t.UTC().Format("2006-01"))
}

// appendToObject reads the existing month object (absent objects read as
// empty), appends the snapshot lines, and writes the result back.
func (w *SnapshotWriter) appendToObject(ctx context.Context, key string, snaps []domain.Snapshot) error {
	existing, err := w.getObject(ctx, key)
	if err != nil {
		return err
	}
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		existing = append(existing, '\n')
	}

	lines, err := marshalJSONL(snaps)
	if err != nil {
		return fmt.Errorf("s3blob: marshal snapshots for %s: %w", key, err)
	}

	return w.putObject(ctx, key, append(existing, lines...))
}

// getObject fetches the full object body, or nil when the key does not exist.
func (w *SnapshotWriter) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := w.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("s3blob: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read %s: %w", key, err)
	}
	return data, nil
}

// putObject uploads the payload, switching to the multipart manager once the
// month object outgrows a single-shot put.
func (w *SnapshotWriter) putObject(ctx context.Context, key string, payload []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(jsonlContentType),
	}

	if len(payload) >= multipartThreshold {
		uploader := manager.NewUploader(w.client)
		if _, err := uploader.Upload(ctx, input); err != nil {
			return fmt.Errorf("s3blob: multipart upload %s: %w", key, err)
		}
		return nil
	}

	if _, err := w.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", key, err)
	}
	return nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON. Each
// element is marshalled as a single compact JSON line followed by '\n'.
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

// isNotFound returns true when the error indicates the requested S3 object
// does not exist. It checks for both the SDK typed error (NoSuchKey) and the
// generic 404 response.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	// HeadObject and some S3-compatible providers return a generic 404
	// instead of NoSuchKey.
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}

	type httpResponseError interface {
		HTTPStatusCode() int
	}
	var httpErr httpResponseError
	if errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == 404 {
		return true
	}

	return false
}
