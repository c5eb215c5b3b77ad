// Package imager turns selected node ids into staged image files: it
// requests rendered-image URLs from the Figma API in size-bounded
// batches, then downloads the results into a local staging directory.
package imager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hellenic-development/figma-publisher/pkg/retry"
)

// maxNodesPerRequest is the Figma API's per-request node limit.
const maxNodesPerRequest = 100

// Renderer requests server-side rendering of nodes. *figma.Client
// satisfies it.
type Renderer interface {
	GetImages(ctx context.Context, fileKey string, nodeIDs []string, format string, scale float64) (map[string]string, error)
}

// Config holds the export and download settings for one run.
type Config struct {
	// Format is the render format: "png", "svg", "jpg", "pdf".
	Format string

	// Scale is the raster render scale; ignored for svg and pdf.
	Scale float64

	// BatchSize caps the node ids per export request. Values below 1 or
	// above the API limit fall back to the limit.
	BatchSize int

	// Parallelism bounds concurrent export calls and downloads.
	// Defaults to 5.
	Parallelism int

	// StagingDir receives the downloaded files.
	StagingDir string

	// Retry is the backoff policy for export calls and downloads.
	Retry retry.Policy

	// DownloadTimeout applies to each staged download. Zero means 2 minutes.
	DownloadTimeout time.Duration
}

func (c Config) batchSize() int {
	if c.BatchSize < 1 || c.BatchSize > maxNodesPerRequest {
		return maxNodesPerRequest
	}
	return c.BatchSize
}

func (c Config) parallelism() int {
	if c.Parallelism < 1 {
		return 5
	}
	return c.Parallelism
}

// ExportError marks a node whose rendered-image URL could not be
// obtained, either because its batch failed outright or because the
// response omitted the node.
type ExportError struct {
	NodeID string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export node %s: %v", e.NodeID, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// DownloadError marks a node whose rendered image could not be fetched
// from its temporary URL. Terminal reports whether the URL itself was
// rejected: export URLs carry a validity window, so a rejected URL
// means the node needs re-exporting, not re-downloading.
type DownloadError struct {
	NodeID   string
	Terminal bool
	Err      error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download node %s: %v", e.NodeID, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Retryable reports whether re-fetching the same URL can succeed.
func (e *DownloadError) Retryable() bool { return !e.Terminal }

// ExportResult maps every requested node id to either a temporary
// download URL or a failure. Every id appears in exactly one of the two
// maps.
type ExportResult struct {
	URLs   map[string]string
	Failed map[string]error
}

// ExportURLs requests rendered-image URLs for the given node ids in
// batches of at most Config.BatchSize, with bounded parallelism across
// batches. Retry-with-backoff belongs to the Renderer; a batch whose
// call fails after the Renderer gives up marks every id in that batch
// failed, while a batch whose response omits individual ids marks only
// those ids failed.
func ExportURLs(ctx context.Context, r Renderer, fileKey string, nodeIDs []string, cfg Config) *ExportResult {
	result := &ExportResult{
		URLs:   make(map[string]string, len(nodeIDs)),
		Failed: make(map[string]error),
	}

	size := cfg.batchSize()
	var batches [][]string
	for i := 0; i < len(nodeIDs); i += size {
		end := min(i+size, len(nodeIDs))
		batches = append(batches, nodeIDs[i:end])
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.parallelism())

	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			images, err := r.GetImages(gctx, fileKey, batch, cfg.Format, cfg.Scale)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				for _, id := range batch {
					result.Failed[id] = &ExportError{NodeID: id, Err: err}
				}
				return nil
			}

			for _, id := range batch {
				if url, ok := images[id]; ok && url != "" {
					result.URLs[id] = url
				} else {
					result.Failed[id] = &ExportError{NodeID: id, Err: fmt.Errorf("renderer returned no URL")}
				}
			}
			return nil
		})
	}

	g.Wait()
	return result
}

// Asset is one staged image file, ready for key derivation and publish.
type Asset struct {
	NodeID string
	Path   string
	Size   int64
	SHA256 string
}

// DownloadAll fetches every exported URL into the staging directory
// under a deterministic name derived from the node id. Zero-byte
// payloads count as failures. Returns the staged assets and the per-id
// failures; every input id lands in exactly one of the two maps.
func DownloadAll(ctx context.Context, urls map[string]string, cfg Config) (map[string]*Asset, map[string]error, error) {
	if err := os.MkdirAll(cfg.StagingDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create staging directory %q: %w", cfg.StagingDir, err)
	}

	timeout := cfg.DownloadTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	client := &http.Client{Timeout: timeout}

	assets := make(map[string]*Asset, len(urls))
	failed := make(map[string]error)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.parallelism())

	for id, url := range urls {
		id, url := id, url
		g.Go(func() error {
			dest := filepath.Join(cfg.StagingDir, StagingName(id, cfg.Format))

			var asset *Asset
			err := cfg.Retry.Do(gctx, func() error {
				var dlErr error
				asset, dlErr = downloadFile(gctx, client, id, url, dest)
				return dlErr
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[id] = err
			} else {
				assets[id] = asset
			}
			return nil
		})
	}

	g.Wait()
	return assets, failed, nil
}

// downloadFile performs one GET of a temporary render URL, hashing the
// bytes while writing them to dest.
func downloadFile(ctx context.Context, client *http.Client, nodeID, url, dest string) (*Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &DownloadError{NodeID: nodeID, Terminal: true, Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &DownloadError{NodeID: nodeID, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return nil, &DownloadError{NodeID: nodeID, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	default:
		// 403/410 from the CDN means the export URL expired.
		return nil, &DownloadError{NodeID: nodeID, Terminal: true, Err: fmt.Errorf("render URL rejected with status %d", resp.StatusCode)}
	}

	f, err := os.Create(dest)
	if err != nil {
		return nil, &DownloadError{NodeID: nodeID, Terminal: true, Err: err}
	}

	hash := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, hash), resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return nil, &DownloadError{NodeID: nodeID, Err: err}
	}
	if n == 0 {
		os.Remove(dest)
		return nil, &DownloadError{NodeID: nodeID, Err: fmt.Errorf("empty payload")}
	}

	return &Asset{
		NodeID: nodeID,
		Path:   dest,
		Size:   n,
		SHA256: hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

// StagingName derives the staging filename for a node id: the id with
// ":" replaced by "_", plus the format extension. Deterministic so that
// re-runs overwrite instead of accumulating.
func StagingName(nodeID, format string) string {
	return strings.ReplaceAll(nodeID, ":", "_") + "." + format
}
