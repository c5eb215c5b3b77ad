// Package publisher uploads staged assets and the run manifest to an
// object-storage bucket, tolerating per-object failures: a failed
// upload is recorded against its node id and the run carries on.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gocloud.dev/blob"
	"golang.org/x/sync/errgroup"

	"github.com/hellenic-development/figma-publisher/pkg/retry"
)

// Status is an asset's terminal publish state.
type Status string

const (
	// StatusPending marks an asset staged and awaiting upload. Never a
	// terminal state; the manifest is built only after every record has
	// left it.
	StatusPending Status = "pending"

	// StatusUploaded marks a successful upload.
	StatusUploaded Status = "uploaded"

	// StatusFailed marks an asset that failed at export, download, or
	// upload; Error carries the reason.
	StatusFailed Status = "failed"

	// StatusSkipped marks an asset intentionally not uploaded
	// (download-only runs).
	StatusSkipped Status = "skipped"
)

// UploadError marks an asset whose bucket put failed.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Retryable reports whether another put can succeed. Bucket puts are
// all-or-nothing, so a failed one is always safe to repeat.
func (e *UploadError) Retryable() bool { return true }

// Record tracks one selected node through the publish stage.
type Record struct {
	NodeID   string `json:"node_id"`
	NodeName string `json:"node_name"`
	Key      string `json:"key,omitempty"`
	Size     int64  `json:"size,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
	URL      string `json:"url,omitempty"`

	// StagingPath is the local staged file; empty for assets that never
	// reached staging. Not serialized: the manifest describes the
	// bucket, not the producing host.
	StagingPath string `json:"-"`
}

// Manifest is the run record uploaded next to the assets and optionally
// written locally. Its record list covers exactly the selected node
// set: one entry per node id, each in a terminal state.
type Manifest struct {
	Document     string            `json:"document"`
	FileKey      string            `json:"file_key"`
	GeneratedAt  time.Time         `json:"generated_at"`
	StartedAt    time.Time         `json:"started_at"`
	RunOptions   map[string]string `json:"run_options"`
	Succeeded    int               `json:"succeeded"`
	Failed       int               `json:"failed"`
	Skipped      int               `json:"skipped"`
	Assets       []*Record         `json:"assets"`
}

// Options configures the publish stage.
type Options struct {
	// DocumentName and FileKey identify the source document in the
	// manifest.
	DocumentName string
	FileKey      string

	// ManifestKey is the bucket key for the manifest object.
	ManifestKey string

	// ManifestPath, when set, also writes the manifest to this local file.
	ManifestPath string

	// PublicBaseURL, when set, is prepended to each uploaded key to
	// record the asset's public URL in the manifest.
	PublicBaseURL string

	// RunOptions is echoed verbatim into the manifest.
	RunOptions map[string]string

	// Parallelism bounds concurrent uploads. Defaults to 5.
	Parallelism int

	// Retry is the backoff policy for each object put.
	Retry retry.Policy

	// DownloadOnly skips every bucket call; pending records become
	// skipped and the manifest is only written locally.
	DownloadOnly bool

	// StartedAt is the pipeline start time recorded in the manifest.
	StartedAt time.Time
}

func (o Options) parallelism() int {
	if o.Parallelism < 1 {
		return 5
	}
	return o.Parallelism
}

// Publish drives every pending record to a terminal state, then builds
// the manifest and uploads it. Per-object failures after retry
// exhaustion are recorded in the manifest without aborting; only a
// manifest that cannot itself be written is returned as an error
// alongside the (still valid) manifest value.
func Publish(ctx context.Context, bucket *blob.Bucket, records []*Record, opts Options) (*Manifest, error) {
	if opts.DownloadOnly {
		for _, rec := range records {
			if rec.Status == StatusPending {
				rec.Status = StatusSkipped
			}
		}
	} else {
		uploadAll(ctx, bucket, records, opts)
	}

	m := &Manifest{
		Document:    opts.DocumentName,
		FileKey:     opts.FileKey,
		GeneratedAt: time.Now().UTC(),
		StartedAt:   opts.StartedAt.UTC(),
		RunOptions:  opts.RunOptions,
		Assets:      records,
	}
	for _, rec := range records {
		switch rec.Status {
		case StatusUploaded:
			m.Succeeded++
		case StatusSkipped:
			m.Skipped++
		default:
			m.Failed++
		}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return m, fmt.Errorf("encode manifest: %w", err)
	}

	if opts.ManifestPath != "" {
		if err := os.WriteFile(opts.ManifestPath, data, 0o644); err != nil {
			return m, fmt.Errorf("write local manifest: %w", err)
		}
	}

	if !opts.DownloadOnly {
		err := opts.Retry.Do(ctx, func() error {
			if putErr := put(ctx, bucket, opts.ManifestKey, data, "application/json"); putErr != nil {
				return &UploadError{Key: opts.ManifestKey, Err: putErr}
			}
			return nil
		})
		if err != nil {
			return m, fmt.Errorf("publish manifest: %w", err)
		}
	}

	return m, nil
}

// uploadAll puts every pending record's staged file under its derived
// key, with bounded parallelism and per-object retry.
func uploadAll(ctx context.Context, bucket *blob.Bucket, records []*Record, opts Options) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.parallelism())

	for _, rec := range records {
		if rec.Status != StatusPending {
			continue
		}
		rec := rec
		g.Go(func() error {
			err := opts.Retry.Do(gctx, func() error {
				data, readErr := os.ReadFile(rec.StagingPath)
				if readErr != nil {
					return readErr
				}
				if putErr := put(gctx, bucket, rec.Key, data, contentType(rec.Key)); putErr != nil {
					return &UploadError{Key: rec.Key, Err: putErr}
				}
				return nil
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rec.Status = StatusFailed
				rec.Error = err.Error()
			} else {
				rec.Status = StatusUploaded
				if opts.PublicBaseURL != "" {
					rec.URL = fmt.Sprintf("%s/%s", opts.PublicBaseURL, rec.Key)
				}
			}
			return nil
		})
	}

	g.Wait()
}

// put writes one object. The writer commits on Close, so a failed put
// leaves no partially-written object behind.
func put(ctx context.Context, bucket *blob.Bucket, key string, data []byte, ct string) error {
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: ct})
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// contentType maps a key's extension to a MIME type, defaulting to
// octet-stream like the mimetypes fallback every uploader uses.
func contentType(key string) string {
	ext := filepath.Ext(key)
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	switch ext {
	case ".svg":
		return "image/svg+xml"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".pdf":
		return "application/pdf"
	}
	return "application/octet-stream"
}

// Cleanup removes the staged files of successfully uploaded assets.
// It runs once, after the whole publish stage: per-asset deletion would
// risk removing inputs a later retry still needs. Failed uploads always
// keep their staged files for inspection or resumption. Returns the
// number of files removed.
func Cleanup(records []*Record, enabled bool) (int, error) {
	if !enabled {
		return 0, nil
	}

	removed := 0
	var firstErr error
	for _, rec := range records {
		if rec.Status != StatusUploaded || rec.StagingPath == "" {
			continue
		}
		if err := os.Remove(rec.StagingPath); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}
