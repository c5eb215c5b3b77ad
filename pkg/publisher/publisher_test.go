package publisher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"

	"github.com/hellenic-development/figma-publisher/pkg/retry"
)

func fastRetry(attempts int) retry.Policy {
	return retry.Policy{Attempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func openMemBucket(t *testing.T) *blob.Bucket {
	t.Helper()
	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	if err != nil {
		t.Fatalf("open memory bucket: %v", err)
	}
	t.Cleanup(func() { bucket.Close() })
	return bucket
}

func stageFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("stage %s: %v", name, err)
	}
	return path
}

func TestPublishUploadsPendingRecords(t *testing.T) {
	bucket := openMemBucket(t)
	dir := t.TempDir()
	ctx := context.Background()

	records := []*Record{
		{NodeID: "1:1", NodeName: "Hero", Key: "p/doc/Page 1/Hero.png", Status: StatusPending,
			StagingPath: stageFile(t, dir, "1_1.png", "hero bytes")},
		{NodeID: "1:2", NodeName: "Logo", Key: "p/doc/Page 1/Logo.png", Status: StatusPending,
			StagingPath: stageFile(t, dir, "1_2.png", "logo bytes")},
	}

	m, err := Publish(ctx, bucket, records, Options{
		DocumentName: "doc", FileKey: "KEY",
		ManifestKey: "p/doc/manifest.json",
		Retry:       fastRetry(1),
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if m.Succeeded != 2 || m.Failed != 0 || m.Skipped != 0 {
		t.Errorf("counts = %d/%d/%d, want 2/0/0", m.Succeeded, m.Failed, m.Skipped)
	}
	for _, rec := range records {
		if rec.Status != StatusUploaded {
			t.Errorf("record %s status = %s, want uploaded", rec.NodeID, rec.Status)
		}
	}

	data, err := bucket.ReadAll(ctx, "p/doc/Page 1/Hero.png")
	if err != nil || string(data) != "hero bytes" {
		t.Errorf("bucket object = %q, %v; want the staged bytes", data, err)
	}

	manifest, err := bucket.ReadAll(ctx, "p/doc/manifest.json")
	if err != nil {
		t.Fatalf("manifest object missing: %v", err)
	}
	var decoded Manifest
	if err := json.Unmarshal(manifest, &decoded); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	if decoded.Succeeded != 2 || len(decoded.Assets) != 2 {
		t.Errorf("decoded manifest = %d succeeded / %d assets, want 2 / 2", decoded.Succeeded, len(decoded.Assets))
	}
}

func TestPublishTracksFailuresWithoutAborting(t *testing.T) {
	bucket := openMemBucket(t)
	dir := t.TempDir()

	// 1:2 points at a staging file that does not exist, so its upload
	// fails while the others proceed.
	records := []*Record{
		{NodeID: "1:1", Key: "doc/a.png", Status: StatusPending,
			StagingPath: stageFile(t, dir, "a.png", "a")},
		{NodeID: "1:2", Key: "doc/b.png", Status: StatusPending,
			StagingPath: filepath.Join(dir, "missing.png")},
		{NodeID: "1:3", Key: "doc/c.png", Status: StatusPending,
			StagingPath: stageFile(t, dir, "c.png", "c")},
	}

	m, err := Publish(context.Background(), bucket, records, Options{
		DocumentName: "doc", FileKey: "KEY",
		ManifestKey: "doc/manifest.json",
		Retry:       fastRetry(2),
	})
	if err != nil {
		t.Fatalf("Publish() error = %v, want per-object failure tolerated", err)
	}

	if m.Succeeded != 2 || m.Failed != 1 {
		t.Errorf("counts = %d succeeded / %d failed, want 2 / 1", m.Succeeded, m.Failed)
	}
	if records[1].Status != StatusFailed || records[1].Error == "" {
		t.Errorf("record 1:2 = %s %q, want failed with a reason", records[1].Status, records[1].Error)
	}
}

func TestPublishPreservesTerminalRecords(t *testing.T) {
	bucket := openMemBucket(t)

	// A record already failed at export or download must pass through
	// untouched and be counted as failed.
	records := []*Record{
		{NodeID: "1:1", Status: StatusFailed, Error: "export node 1:1: renderer returned no URL"},
	}

	m, err := Publish(context.Background(), bucket, records, Options{
		ManifestKey: "doc/manifest.json", Retry: fastRetry(1),
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if m.Failed != 1 || m.Succeeded != 0 {
		t.Errorf("counts = %d/%d, want 0 succeeded / 1 failed", m.Succeeded, m.Failed)
	}
	if records[0].Error != "export node 1:1: renderer returned no URL" {
		t.Errorf("failure reason was rewritten: %q", records[0].Error)
	}
}

func TestPublishDownloadOnlySkipsAllBucketCalls(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "urls.json")

	records := []*Record{
		{NodeID: "1:1", Key: "doc/a.png", Status: StatusPending,
			StagingPath: stageFile(t, dir, "a.png", "a")},
	}

	// nil bucket: download-only must never touch it.
	m, err := Publish(context.Background(), nil, records, Options{
		DocumentName: "doc", FileKey: "KEY",
		ManifestKey:  "doc/manifest.json",
		ManifestPath: manifestPath,
		DownloadOnly: true,
		Retry:        fastRetry(1),
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if m.Skipped != 1 || m.Succeeded != 0 {
		t.Errorf("counts = %d succeeded / %d skipped, want 0 / 1", m.Succeeded, m.Skipped)
	}
	if records[0].Status != StatusSkipped {
		t.Errorf("record status = %s, want skipped", records[0].Status)
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		t.Fatalf("local manifest missing: %v", err)
	}
	var decoded Manifest
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("local manifest is not valid JSON: %v", err)
	}
}

func TestPublishRecordsPublicURL(t *testing.T) {
	bucket := openMemBucket(t)
	dir := t.TempDir()

	records := []*Record{
		{NodeID: "1:1", Key: "doc/Page 1/Hero.png", Status: StatusPending,
			StagingPath: stageFile(t, dir, "a.png", "a")},
	}

	_, err := Publish(context.Background(), bucket, records, Options{
		ManifestKey:   "doc/manifest.json",
		PublicBaseURL: "https://cdn.example.com",
		Retry:         fastRetry(1),
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if want := "https://cdn.example.com/doc/Page 1/Hero.png"; records[0].URL != want {
		t.Errorf("URL = %q, want %q", records[0].URL, want)
	}
}

func TestCleanupRemovesOnlyUploadedFiles(t *testing.T) {
	dir := t.TempDir()
	uploaded := stageFile(t, dir, "ok.png", "x")
	failed := stageFile(t, dir, "bad.png", "x")

	records := []*Record{
		{NodeID: "1:1", Status: StatusUploaded, StagingPath: uploaded},
		{NodeID: "1:2", Status: StatusFailed, StagingPath: failed},
		{NodeID: "1:3", Status: StatusFailed},
	}

	removed, err := Cleanup(records, true)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(uploaded); !os.IsNotExist(err) {
		t.Error("uploaded staging file not removed")
	}
	if _, err := os.Stat(failed); err != nil {
		t.Error("failed asset's staging file must be kept")
	}
}

func TestCleanupDisabledRemovesNothing(t *testing.T) {
	dir := t.TempDir()
	path := stageFile(t, dir, "ok.png", "x")

	records := []*Record{{NodeID: "1:1", Status: StatusUploaded, StagingPath: path}}

	removed, err := Cleanup(records, false)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("staging file removed although cleanup was disabled")
	}
}

func TestContentType(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{key: "doc/a.png", want: "image/png"},
		{key: "doc/a.svg", want: "image/svg+xml"},
		{key: "doc/a.pdf", want: "application/pdf"},
		{key: "doc/a", want: "application/octet-stream"},
	}

	for _, tt := range tests {
		if got := contentType(tt.key); got != tt.want {
			t.Errorf("contentType(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
