package figmapublisher

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gocloud.dev/blob"

	"github.com/hellenic-development/figma-publisher/pkg/document"
	"github.com/hellenic-development/figma-publisher/pkg/figma"
	"github.com/hellenic-development/figma-publisher/pkg/imager"
	"github.com/hellenic-development/figma-publisher/pkg/keys"
	"github.com/hellenic-development/figma-publisher/pkg/publisher"
	"github.com/hellenic-development/figma-publisher/pkg/retry"
	"github.com/hellenic-development/figma-publisher/pkg/selector"
)

// Options configures one publishing run.
type Options struct {
	AccessToken string
	FileURL     string // Figma file URL, or a bare file key

	// Names switches to selective mode: only the subtrees of pages or
	// frames matching these names (case-insensitive) are exported.
	// Empty means full mode.
	Names []string

	Format string  // "png", "svg", "jpg", "pdf"; default "png"
	Scale  float64 // raster render scale; default 1

	// Bucket is the destination. Either an already-open bucket or a
	// gocloud URL ("s3://space?endpoint=...", "file:///path") to open;
	// Bucket wins when both are set. Ignored in download-only runs.
	Bucket    *blob.Bucket
	BucketURL string

	KeyPrefix     string // leading destination key segment
	PublicBaseURL string // recorded per uploaded asset in the manifest

	StagingDir string // default "figma-staging"

	// ManifestPath is an optional local manifest copy. Download-only
	// runs default it to <StagingDir>/manifest.json so the run record
	// is never lost.
	ManifestPath string

	BatchSize     int           // export ids per API call; default/max 100
	Parallelism   int           // bounded worker pool size; default 5
	RetryAttempts int           // per remote call; default 3
	Timeout       time.Duration // per network call; default 2m

	Cleanup      bool // delete staged files of uploaded assets afterwards
	DownloadOnly bool // stage and write the manifest locally, no bucket calls

	APIBaseURL string // override for tests/proxies; default the public API

	Logger Logger // nil = no logging
}

// Logger receives progress messages. A nil Logger means silent operation.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

func (o *Options) logInfo(f string, a ...any) {
	if o.Logger != nil {
		o.Logger.Infof(f, a...)
	}
}

func (o *Options) logWarn(f string, a ...any) {
	if o.Logger != nil {
		o.Logger.Warnf(f, a...)
	}
}

// NodeFailure is one node id that reached a terminal failure state,
// with its reason.
type NodeFailure struct {
	NodeID string
	Reason string
}

// Result summarizes a run. A run with Failed > 0 still returns from Run
// without an error: partial failure is success-with-warnings, and the
// caller decides the exit status.
type Result struct {
	FileName string
	FileKey  string

	Selected  int
	Succeeded int
	Failed    int
	Skipped   int

	// FailedNodes lists terminal per-node failures in key order.
	FailedNodes []NodeFailure

	// SelectionWarnings are selective-mode names that matched nothing.
	SelectionWarnings []string

	// ManifestKey is where the manifest was published; empty for
	// download-only runs.
	ManifestKey string

	// ManifestErr is non-nil when every asset reached a terminal state
	// but the manifest itself could not be published.
	ManifestErr error

	Manifest *publisher.Manifest
}

// Run executes the pipeline: load the document tree, select nodes,
// export rendered images in batches, download to staging, derive
// destination keys, publish, and clean up.
func Run(ctx context.Context, opts Options) (*Result, error) {
	startedAt := time.Now().UTC()
	applyDefaults(&opts)

	fileKey := opts.FileURL
	if strings.Contains(opts.FileURL, "figma.com/") {
		var err error
		fileKey, err = figma.ExtractFileKey(opts.FileURL)
		if err != nil {
			return nil, fmt.Errorf("extract file key: %w", err)
		}
	}

	policy := retry.Policy{Attempts: opts.RetryAttempts, BaseDelay: time.Second}
	client := figma.NewClient(opts.AccessToken, figma.ClientOptions{
		BaseURL: opts.APIBaseURL,
		Timeout: opts.Timeout,
		Retry:   policy,
	})

	// Load.
	opts.logInfo("Fetching document tree for %s...", fileKey)
	fileResp, err := client.GetFile(ctx, fileKey)
	if err != nil {
		return nil, fmt.Errorf("fetch file: %w", err)
	}
	doc := document.Build(fileKey, fileResp)
	opts.logInfo("Document %q: %d nodes", doc.Name, doc.Len())

	// Select.
	var (
		ids      []string
		warnings []*selector.SelectionError
	)
	if len(opts.Names) > 0 {
		var counts []selector.MatchCount
		ids, warnings, counts, err = selector.Names(opts.Names...).SelectWithCounts(doc)
		for _, c := range counts {
			if c.Count > 1 {
				opts.logInfo("Name %q matched %d nodes; exporting all matches", c.Name, c.Count)
			}
		}
	} else {
		ids, warnings, err = selector.Full().Select(doc)
	}
	if err != nil {
		return nil, fmt.Errorf("select nodes: %w", err)
	}
	for _, w := range warnings {
		opts.logWarn("%v", w)
	}
	opts.logInfo("Selected %d exportable node(s)", len(ids))

	// Derive keys in traversal order before any network work: key
	// derivation depends only on the document and must not be affected
	// by which exports succeed.
	kb := keys.NewBuilder(keys.Config{
		Prefix:       opts.KeyPrefix,
		DocumentName: doc.Name,
		Format:       opts.Format,
	})
	keyByID := make(map[string]string, len(ids))
	for _, id := range ids {
		keyByID[id] = kb.Key(doc.Path(id), id)
	}

	imgCfg := imager.Config{
		Format:          opts.Format,
		Scale:           opts.Scale,
		BatchSize:       opts.BatchSize,
		Parallelism:     opts.Parallelism,
		StagingDir:      opts.StagingDir,
		Retry:           policy,
		DownloadTimeout: opts.Timeout,
	}

	// Export.
	opts.logInfo("Requesting rendered images (%s, scale %g)...", opts.Format, opts.Scale)
	export := imager.ExportURLs(ctx, client, fileKey, ids, imgCfg)
	if len(export.Failed) > 0 {
		opts.logWarn("%d node(s) failed to export", len(export.Failed))
	}

	// Download.
	opts.logInfo("Downloading %d image(s) to %s...", len(export.URLs), opts.StagingDir)
	assets, dlFailed, err := imager.DownloadAll(ctx, export.URLs, imgCfg)
	if err != nil {
		return nil, err
	}
	if len(dlFailed) > 0 {
		opts.logWarn("%d download(s) failed", len(dlFailed))
	}

	// Assemble one record per selected id, in traversal order.
	records := make([]*publisher.Record, 0, len(ids))
	for _, id := range ids {
		node, _ := doc.Node(id)
		name := ""
		if node != nil {
			name = node.Name
		}
		rec := &publisher.Record{NodeID: id, NodeName: name, Key: keyByID[id]}

		switch {
		case export.Failed[id] != nil:
			rec.Status = publisher.StatusFailed
			rec.Error = export.Failed[id].Error()
		case dlFailed[id] != nil:
			rec.Status = publisher.StatusFailed
			rec.Error = dlFailed[id].Error()
		default:
			asset := assets[id]
			rec.Status = publisher.StatusPending
			rec.StagingPath = asset.Path
			rec.Size = asset.Size
			rec.SHA256 = asset.SHA256
		}
		records = append(records, rec)
	}

	// Publish.
	bucket := opts.Bucket
	if bucket == nil && !opts.DownloadOnly {
		bucket, err = blob.OpenBucket(ctx, opts.BucketURL)
		if err != nil {
			return nil, fmt.Errorf("open bucket: %w", err)
		}
		defer bucket.Close()
	}

	manifestKey := ""
	if !opts.DownloadOnly {
		manifestKey = manifestKeyFor(opts.KeyPrefix, doc.Name)
		opts.logInfo("Uploading %d staged asset(s)...", len(assets))
	} else {
		opts.logInfo("Download-only run: skipping upload of %d staged asset(s)", len(assets))
	}

	manifest, pubErr := publisher.Publish(ctx, bucket, records, publisher.Options{
		DocumentName:  doc.Name,
		FileKey:       fileKey,
		ManifestKey:   manifestKey,
		ManifestPath:  opts.ManifestPath,
		PublicBaseURL: strings.TrimSuffix(opts.PublicBaseURL, "/"),
		RunOptions:    runOptions(opts),
		Parallelism:   opts.Parallelism,
		Retry:         policy,
		DownloadOnly:  opts.DownloadOnly,
		StartedAt:     startedAt,
	})

	// Cleanup runs once, after the entire publish stage.
	if removed, cerr := publisher.Cleanup(records, opts.Cleanup && !opts.DownloadOnly); cerr != nil {
		opts.logWarn("Cleanup: %v", cerr)
	} else if removed > 0 {
		opts.logInfo("Cleaned up %d staged file(s)", removed)
	}

	result := &Result{
		FileName:    doc.Name,
		FileKey:     fileKey,
		Selected:    len(ids),
		Succeeded:   manifest.Succeeded,
		Failed:      manifest.Failed,
		Skipped:     manifest.Skipped,
		ManifestKey: manifestKey,
		ManifestErr: pubErr,
		Manifest:    manifest,
	}
	for _, w := range warnings {
		result.SelectionWarnings = append(result.SelectionWarnings, w.Name)
	}
	for _, rec := range records {
		if rec.Status == publisher.StatusFailed {
			result.FailedNodes = append(result.FailedNodes, NodeFailure{NodeID: rec.NodeID, Reason: rec.Error})
		}
	}
	sort.Slice(result.FailedNodes, func(i, j int) bool {
		return result.FailedNodes[i].NodeID < result.FailedNodes[j].NodeID
	})

	return result, nil
}

func applyDefaults(opts *Options) {
	if opts.Format == "" {
		opts.Format = "png"
	}
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	if opts.StagingDir == "" {
		opts.StagingDir = "figma-staging"
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.DownloadOnly && opts.ManifestPath == "" {
		opts.ManifestPath = filepath.Join(opts.StagingDir, "manifest.json")
	}
}

// manifestKeyFor places the manifest next to the document's assets.
func manifestKeyFor(prefix, docName string) string {
	segments := []string{}
	if prefix != "" {
		segments = append(segments, strings.Trim(prefix, "/"))
	}
	doc := keys.Sanitize(docName)
	if doc == "" {
		doc = "untitled"
	}
	segments = append(segments, doc, "manifest.json")
	return strings.Join(segments, "/")
}

// runOptions captures the configuration surface in the manifest, so a
// reader of the bucket can tell how a run was produced.
func runOptions(opts Options) map[string]string {
	m := map[string]string{
		"format":        opts.Format,
		"scale":         strconv.FormatFloat(opts.Scale, 'g', -1, 64),
		"prefix":        opts.KeyPrefix,
		"cleanup":       strconv.FormatBool(opts.Cleanup),
		"download_only": strconv.FormatBool(opts.DownloadOnly),
	}
	if len(opts.Names) > 0 {
		m["names"] = strings.Join(opts.Names, ",")
	}
	return m
}
