package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/s3blob"

	figmapublisher "github.com/hellenic-development/figma-publisher"
	"github.com/hellenic-development/figma-publisher/pkg/figma"
)

// Exit codes
const (
	exitSuccess      = 0
	exitRunError     = 1
	exitInvalidArgs  = 2
	exitAuthError    = 3
	exitNotFound     = 4
	exitStorageError = 5
)

var (
	figmaURL      string
	accessToken   string
	bucketURL     string
	keyPrefix     string
	names         string
	format        string
	scale         float64
	batchSize     int
	parallelism   int
	retries       int
	timeout       time.Duration
	stagingDir    string
	manifestPath  string
	publicBaseURL string
	cleanup       bool
	downloadOnly  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "figma-publisher",
		Short: "Publish Figma assets to an object-storage bucket",
		Long: "Export rendered images from a Figma file and upload them to an " +
			"object-storage bucket (S3, DigitalOcean Spaces, or a local directory), " +
			"preserving the page/frame structure as a key hierarchy.",
		RunE: run,
	}

	rootCmd.Flags().StringVarP(&figmaURL, "url", "u", "", "Figma file URL or file key (required)")
	rootCmd.Flags().StringVarP(&accessToken, "token", "t", "", "Figma Personal Access Token (or FIGMA_API_TOKEN)")
	rootCmd.Flags().StringVarP(&bucketURL, "bucket", "b", "", "Destination bucket URL, e.g. s3://space?endpoint=nyc3.digitaloceanspaces.com (or FIGMA_BUCKET_URL)")
	rootCmd.Flags().StringVar(&keyPrefix, "prefix", "", "Destination key prefix")
	rootCmd.Flags().StringVarP(&names, "names", "n", "", "Comma-separated page/frame names for selective export (default: everything renderable)")
	rootCmd.Flags().StringVar(&format, "format", "png", "Image format: png, svg, jpg, pdf")
	rootCmd.Flags().Float64Var(&scale, "scale", 1, "Raster render scale")
	rootCmd.Flags().IntVar(&batchSize, "batch-size", 100, "Node ids per export request (API max 100)")
	rootCmd.Flags().IntVar(&parallelism, "parallelism", 5, "Bounded worker pool size for exports, downloads, and uploads")
	rootCmd.Flags().IntVar(&retries, "retries", 3, "Attempts per remote call")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Timeout per network call")
	rootCmd.Flags().StringVar(&stagingDir, "staging-dir", "figma-staging", "Local staging directory for downloaded assets")
	rootCmd.Flags().StringVar(&manifestPath, "manifest", "", "Also write the run manifest to this local file")
	rootCmd.Flags().StringVar(&publicBaseURL, "public-base-url", "", "Public base URL recorded per uploaded asset in the manifest")
	rootCmd.Flags().BoolVar(&cleanup, "cleanup", false, "Delete staged files of successfully uploaded assets afterwards")
	rootCmd.Flags().BoolVar(&downloadOnly, "download-only", false, "Stage assets and write the manifest locally without touching the bucket")

	rootCmd.MarkFlagRequired("url")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("figma-publisher version %s\n", version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitInvalidArgs)
	}
}

const version = "1.0.0"

func run(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	if accessToken == "" {
		accessToken = os.Getenv("FIGMA_API_TOKEN")
	}
	if bucketURL == "" {
		bucketURL = os.Getenv("FIGMA_BUCKET_URL")
	}

	if accessToken == "" {
		red.Fprintln(os.Stderr, "Error: an access token is required (--token or FIGMA_API_TOKEN)")
		os.Exit(exitInvalidArgs)
	}
	if bucketURL == "" && !downloadOnly {
		red.Fprintln(os.Stderr, "Error: a bucket URL is required (--bucket or FIGMA_BUCKET_URL), or pass --download-only")
		os.Exit(exitInvalidArgs)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		yellow.Fprintln(os.Stderr, "\nReceived interrupt, shutting down...")
		cancel()
	}()

	cyan.Println("\n🎨 Figma Asset Publisher")
	cyan.Println("========================")
	cyan.Println()

	opts := figmapublisher.Options{
		AccessToken:   accessToken,
		FileURL:       figmaURL,
		Names:         splitNames(names),
		Format:        format,
		Scale:         scale,
		BucketURL:     bucketURL,
		KeyPrefix:     keyPrefix,
		PublicBaseURL: publicBaseURL,
		StagingDir:    stagingDir,
		ManifestPath:  manifestPath,
		BatchSize:     batchSize,
		Parallelism:   parallelism,
		RetryAttempts: retries,
		Timeout:       timeout,
		Cleanup:       cleanup,
		DownloadOnly:  downloadOnly,
		Logger:        &cliLogger{},
	}

	result, err := figmapublisher.Run(ctx, opts)
	if err != nil {
		red.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}

	cyan.Println("\n📊 Run Summary:")
	fmt.Printf("  • File: %s\n", result.FileName)
	fmt.Printf("  • Selected nodes: %d\n", result.Selected)
	if result.Skipped > 0 {
		fmt.Printf("  • %d succeeded, %d failed, %d skipped\n", result.Succeeded, result.Failed, result.Skipped)
	} else {
		fmt.Printf("  • %d succeeded, %d failed\n", result.Succeeded, result.Failed)
	}

	for _, name := range result.SelectionWarnings {
		yellow.Printf("  ⚠ no node named %q\n", name)
	}
	for _, f := range result.FailedNodes {
		red.Printf("  ✗ %s: %s\n", f.NodeID, f.Reason)
	}

	if result.ManifestErr != nil {
		red.Printf("\n✗ Manifest publish failed: %v\n", result.ManifestErr)
		os.Exit(exitStorageError)
	}
	if result.ManifestKey != "" {
		green.Printf("\n📋 Manifest: %s\n", result.ManifestKey)
	}

	if result.Failed > 0 {
		yellow.Printf("\n⚠ Completed with %d failed asset(s)\n\n", result.Failed)
		os.Exit(exitRunError)
	}

	if downloadOnly {
		green.Printf("\n✨ Staged %d asset(s) locally\n\n", result.Skipped)
	} else {
		green.Print("\n✨ All assets published successfully\n\n")
	}
	return nil
}

// exitCodeFor maps the fatal error taxonomy onto process exit codes.
func exitCodeFor(err error) int {
	var authErr *figma.AuthError
	var notFoundErr *figma.NotFoundError
	switch {
	case errors.As(err, &authErr):
		return exitAuthError
	case errors.As(err, &notFoundErr):
		return exitNotFound
	case strings.Contains(err.Error(), "open bucket"):
		return exitStorageError
	default:
		return exitRunError
	}
}

func splitNames(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// cliLogger implements figmapublisher.Logger with colored terminal output.
type cliLogger struct{}

func (l *cliLogger) Infof(format string, args ...any) {
	color.New(color.FgYellow).Printf(format+"\n", args...)
}

func (l *cliLogger) Warnf(format string, args ...any) {
	color.New(color.FgYellow).Printf("⚠ "+format+"\n", args...)
}

func (l *cliLogger) Errorf(format string, args ...any) {
	color.New(color.FgRed).Printf("✗ "+format+"\n", args...)
}
