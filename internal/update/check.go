// Package update checks for newer clockcord releases via a release manifest.
//
// The manifest is a JSON object mapping release channels to versions; the
// "." key holds the latest stable release:
//
//	{".": "1.4.0"}
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ///////////////////////////////////////////////
// Checker
// ///////////////////////////////////////////////

// Checker fetches a release manifest.
type Checker struct {
	url    string
	client *retryablehttp.Client
}

// NewChecker returns a Checker for manifestURL with a small retry budget.
func NewChecker(manifestURL string) *Checker {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 5 * time.Second
	client.Logger = nil // suppress retryablehttp's default logging
	return &Checker{url: manifestURL, client: client}
}

// Latest returns the stable version from the manifest.
func (c *Checker) Latest(ctx context.Context) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", c.url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var manifest map[string]string
	if err := json.Unmarshal(body, &manifest); err != nil {
		return "", fmt.Errorf("parsing manifest: %w", err)
	}
	return manifest["."], nil
}

// Newer returns the manifest version when it is newer than current, or ""
// when current is up to date.
func (c *Checker) Newer(ctx context.Context, current string) (string, error) {
	latest, err := c.Latest(ctx)
	if err != nil {
		return "", err
	}
	if latest == "" || latest == current || !semverLess(current, latest) {
		return "", nil
	}
	return latest, nil
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Check logs when a newer release than current is listed at manifestURL.
// Failures are logged at debug level and otherwise ignored.
func Check(ctx context.Context, manifestURL, current string) {
	if manifestURL == "" {
		slog.Debug("skipping version check: no manifest_url configured")
		return
	}
	latest, err := NewChecker(manifestURL).Newer(ctx, current)
	if err != nil {
		slog.Debug("version check failed", "error", err)
		return
	}
	if latest != "" {
		slog.Info("new version available", "current", current, "latest", latest)
	}
}

// ///////////////////////////////////////////////
// Version Comparison
// ///////////////////////////////////////////////

// semverLess returns true if a < b using simple numeric comparison.
// Handles versions like "0.1.0", "1.2.3". Non-semver strings are not compared.
// A pre-release version is less than the same version without one
// (e.g., "0.1.0-dev" < "0.1.0").
func semverLess(a, b string) bool {
	pa := parseSemver(a)
	pb := parseSemver(b)
	if pa == nil || pb == nil {
		return false
	}
	for i := range 3 {
		if pa[i] != pb[i] {
			return pa[i] < pb[i]
		}
	}
	return hasPreRelease(a) && !hasPreRelease(b)
}

// hasPreRelease reports whether a version string carries a "-" suffix.
func hasPreRelease(s string) bool {
	return strings.Contains(strings.TrimPrefix(s, "v"), "-")
}

// parseSemver splits "v1.2.3" or "0.1.0-dev" into [major, minor, patch].
// Suffixes after "-" or "+" are stripped. Returns nil if s is not semver.
func parseSemver(s string) []int {
	s = strings.TrimPrefix(s, "v")
	if idx := strings.IndexAny(s, "-+"); idx >= 0 {
		s = s[:idx]
	}
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return nil
	}
	result := make([]int, 3)
	for i, p := range parts {
		if p == "" {
			return nil
		}
		n := 0
		for _, c := range p {
			if c < '0' || c > '9' {
				return nil
			}
			n = n*10 + int(c-'0')
		}
		result[i] = n
	}
	return result
}
