package capture

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/retry"
)

const titleFetchBodyLimit = 64 * 1024

var titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// HTTPTitleFetcher resolves page titles over plain HTTP GET. Failures are
// soft; callers fall back to a truncated message title.
type HTTPTitleFetcher struct {
	client *http.Client
}

// NewHTTPTitleFetcher creates a fetcher with the given lookup timeout.
func NewHTTPTitleFetcher(timeout time.Duration) *HTTPTitleFetcher {
	return &HTTPTitleFetcher{client: &http.Client{Timeout: timeout}}
}

// FetchTitle retrieves the page and extracts its <title> text.
func (f *HTTPTitleFetcher) FetchTitle(ctx context.Context, url string) (string, error) {
	body, err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "parabrain/1.0")

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, titleFetchBodyLimit))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &retry.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(data)}
		}
		return data, nil
	})
	if err != nil {
		return "", fmt.Errorf("fetch title %s: %w", url, err)
	}

	m := titlePattern.FindSubmatch(body)
	if m == nil {
		return "", nil
	}
	title := html.UnescapeString(strings.TrimSpace(string(m[1])))
	return strings.Join(strings.Fields(title), " "), nil
}
