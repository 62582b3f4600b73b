package cdn

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ProgressFunc receives (downloaded, total) after each chunk; total is 0 if
// the server didn't report Content-Length.
type ProgressFunc func(downloaded, total int64)

// Client performs ranged/full downloads and HEAD size discovery against a
// single CDN endpoint. It does no fallback across hosts or transports; the
// root cascstore.Client falls back across transports, and
// protocol/cdn/serverpool tracks per-server health and connection limits.
type Client struct {
	HTTP *http.Client
}

// NewClient returns a Client with a sane default timeout.
func NewClient() *Client {
	return &Client{HTTP: &http.Client{Timeout: 30 * time.Second}}
}

// Download fetches the full content at url.
func (c *Client) Download(ctx context.Context, url string, progress ProgressFunc) ([]byte, error) {
	return c.download(ctx, url, 0, progress)
}

// DownloadRange fetches url starting at offset via an HTTP Range request.
// If the server ignores the range and answers 200, the full body is
// returned instead (per spec.md §4.5); a 416 (range not satisfiable)
// yields an empty, non-error result.
func (c *Client) DownloadRange(ctx context.Context, url string, offset int64, progress ProgressFunc) ([]byte, error) {
	return c.download(ctx, url, offset, progress)
}

func (c *Client) download(ctx context.Context, url string, offset int64, progress ProgressFunc) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		// fall through
	case http.StatusRequestedRangeNotSatisfiable:
		return nil, nil
	default:
		return nil, &HTTPStatusError{URL: url, Status: resp.StatusCode}
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}

	var buf []byte
	chunk := make([]byte, 64*1024)
	var downloaded int64
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			downloaded += int64(n)
			if progress != nil {
				progress(downloaded, total)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, &NetworkError{URL: url, Err: rerr}
		}
	}
	return buf, nil
}

// Head returns the content length reported for url, or 0 if the server
// doesn't report one.
func (c *Client) Head(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, &HTTPStatusError{URL: url, Status: resp.StatusCode}
	}
	if resp.ContentLength < 0 {
		return 0, nil
	}
	return resp.ContentLength, nil
}

// DownloadWithRetry wraps Download with spec.md §7's retry schedule,
// retrying only on network errors and 5xx responses.
func (c *Client) DownloadWithRetry(ctx context.Context, url string, cfg BackoffConfig, progress ProgressFunc) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		data, err := c.Download(ctx, url, progress)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == cfg.MaxAttempts {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.Delay(attempt)):
		}
	}
	return nil, lastErr
}

func isRetryable(err error) bool {
	switch e := err.(type) {
	case *HTTPStatusError:
		return e.Retryable()
	case *NetworkError:
		return true
	default:
		return false
	}
}
