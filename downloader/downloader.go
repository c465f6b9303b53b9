package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrTooLarge = errors.New("response exceeds max size")

const userAgent = "journeys/1 (+https://tidbyt.dev)"

// Non-200 response from a network export host.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

type GetOptions struct {
	// Larger responses fail with ErrTooLarge. Zero means no limit.
	MaxSize int

	Timeout time.Duration

	// Caching downloaders reuse a response for CacheTTL when set.
	Cache    bool
	CacheTTL time.Duration
}

// Fetches network exports, optionally with caching.
type Downloader interface {
	Get(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error)
}

// Fetches a network export over HTTP without caching. Caller headers
// (API keys and the like) are sent as given.
func HTTPGet(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/zip, application/octet-stream;q=0.9, */*;q=0.1")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}
	if options.MaxSize > 0 && resp.ContentLength > int64(options.MaxSize) {
		return nil, fmt.Errorf("%s: %w (%d > %d bytes)", url, ErrTooLarge, resp.ContentLength, options.MaxSize)
	}

	var body io.Reader = resp.Body
	if options.MaxSize > 0 {
		// One extra byte tells a full read from a truncated one
		body = io.LimitReader(resp.Body, int64(options.MaxSize)+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	if options.MaxSize > 0 && len(data) > options.MaxSize {
		return nil, fmt.Errorf("%s: %w (%d bytes)", url, ErrTooLarge, options.MaxSize)
	}

	return data, nil
}
