package figma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hellenic-development/figma-publisher/pkg/retry"
)

// DefaultBaseURL is the production Figma REST API endpoint.
const DefaultBaseURL = "https://api.figma.com/v1"

// ClientOptions configures a Client beyond the access token.
type ClientOptions struct {
	// BaseURL overrides the API endpoint. Empty means DefaultBaseURL.
	BaseURL string

	// Timeout applies to each individual request. Zero means 2 minutes.
	Timeout time.Duration

	// Retry is the backoff policy for transient failures. A zero value
	// falls back to retry.Default().
	Retry retry.Policy
}

// Client talks to the Figma REST API. The transport disables HTTP/2:
// large file responses trip h2 stream errors.
type Client struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client
	retry       retry.Policy
}

// NewClient creates a Figma API client for the given personal access token.
func NewClient(accessToken string, opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = retry.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConnsPerHost: 10,
		ForceAttemptHTTP2:   false,
	}

	return &Client{
		accessToken: accessToken,
		baseURL:     strings.TrimSuffix(opts.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		retry: opts.Retry,
	}
}

// ExtractFileKey extracts the file key from a Figma URL. Both /file/ and
// /design/ URL patterns are accepted. The pattern is anchored so that
// only real figma.com URLs match.
func ExtractFileKey(figmaURL string) (string, error) {
	re := regexp.MustCompile(`^https?://(?:www\.)?figma\.com/(?:file|design)/([A-Za-z0-9]+)(?:/|$|\?)`)
	matches := re.FindStringSubmatch(figmaURL)
	if len(matches) < 2 {
		return "", fmt.Errorf("invalid Figma URL format: must be a figma.com URL with a /file/ or /design/ path")
	}
	return matches[1], nil
}

// GetFile retrieves the document tree and metadata for a file key.
// Credential rejections surface as *AuthError, unknown keys as
// *NotFoundError; rate limits and server errors are retried under the
// client's backoff policy before surfacing as *TransientError.
func (c *Client) GetFile(ctx context.Context, fileKey string) (*FileResponse, error) {
	endpoint := fmt.Sprintf("%s/files/%s", c.baseURL, fileKey)

	var fileResp FileResponse
	err := c.retry.Do(ctx, func() error {
		body, err := c.get(ctx, endpoint, fileKey)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &fileResp); err != nil {
			return fmt.Errorf("parse file response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &fileResp, nil
}

// GetImages requests server-side rendering of the given nodes and
// returns a map of node id to temporary download URL. Nodes the
// renderer fails on are omitted from the map; callers must treat
// missing ids as per-node failures, not as a request failure.
//
// The caller is responsible for keeping len(nodeIDs) within the API's
// per-request limit.
func (c *Client) GetImages(ctx context.Context, fileKey string, nodeIDs []string, format string, scale float64) (map[string]string, error) {
	params := url.Values{}
	params.Set("ids", strings.Join(nodeIDs, ","))
	params.Set("format", format)
	if format == "svg" {
		params.Set("svg_include_id", "true")
		params.Set("svg_simplify_stroke", "true")
	} else {
		params.Set("scale", strconv.FormatFloat(scale, 'g', -1, 64))
	}

	endpoint := fmt.Sprintf("%s/images/%s?%s", c.baseURL, fileKey, params.Encode())

	var imagesResp ImagesResponse
	err := c.retry.Do(ctx, func() error {
		body, err := c.get(ctx, endpoint, fileKey)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &imagesResp); err != nil {
			return fmt.Errorf("parse images response: %w", err)
		}
		if imagesResp.Err != "" {
			return fmt.Errorf("figma render error: %s", imagesResp.Err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return imagesResp.Images, nil
}

// get performs a single authenticated GET and maps HTTP failures onto
// the error taxonomy.
func (c *Client) get(ctx context.Context, endpoint, fileKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Figma-Token", c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("read response body: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{FileKey: fileKey}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &TransientError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	default:
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}
}
