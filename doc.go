// Package figmapublisher exports image assets from a Figma file and
// republishes them into an object-storage bucket, preserving the
// document's page/frame structure as a key hierarchy. Each run also
// publishes a JSON manifest recording the configuration and the
// terminal outcome of every selected node.
//
// The CLI lives in cmd/figma-publisher; this root package exposes the
// same pipeline as a Go API so that callers can embed publishing in
// their own tools without shelling out.
//
// # Quick start
//
//	result, err := figmapublisher.Run(ctx, figmapublisher.Options{
//	    AccessToken: os.Getenv("FIGMA_API_TOKEN"),
//	    FileURL:     "https://www.figma.com/design/ABC123/My-Design",
//	    BucketURL:   "s3://my-space?endpoint=nyc3.digitaloceanspaces.com&region=nyc3",
//	    KeyPrefix:   "designs",
//	    Cleanup:     true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d succeeded, %d failed\n", result.Succeeded, result.Failed)
//
// Buckets are addressed by gocloud.dev URL; register the drivers you
// need with blank imports (the CLI registers s3blob and fileblob).
// Alternatively pass an already-open *blob.Bucket in [Options.Bucket].
//
// # Selective mode
//
// By default every renderable node in the file is exported. Set
// [Options.Names] to restrict the run to the subtrees of pages or
// frames matching those names (case-insensitive). A name that matches
// nothing is reported as a warning; the run only aborts when the whole
// selection comes up empty.
//
// # Partial failures
//
// Per-node export, download, and upload failures never abort a run:
// they are retried under the configured backoff policy and, once
// exhausted, recorded against the node id in the manifest and in
// [Result.FailedNodes]. A run with failures is success-with-warnings;
// callers decide the exit status from the counts.
//
// # Logging
//
// Pass a [Logger] implementation in [Options.Logger] to receive
// progress messages. A nil Logger silences all output.
package figmapublisher
