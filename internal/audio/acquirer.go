package audio

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	encerr "github.com/tessro/encore/internal/errors"
)

// DurationHeader lets an audio server report the exact track length.
const DurationHeader = "X-Duration-Seconds"

// HTTPAcquirer acquires resources by probing the audio server for the
// locator. A successful probe yields a Stream sized from the response.
type HTTPAcquirer struct {
	httpClient  *http.Client
	bitrateKbps int
	tick        time.Duration
	logger      zerolog.Logger
}

// AcquirerOption configures an HTTPAcquirer.
type AcquirerOption func(*HTTPAcquirer)

// WithHTTPClient sets the client used for probes.
func WithHTTPClient(c *http.Client) AcquirerOption {
	return func(a *HTTPAcquirer) {
		a.httpClient = c
	}
}

// WithBitrate sets the bitrate used to estimate duration from content length.
func WithBitrate(kbps int) AcquirerOption {
	return func(a *HTTPAcquirer) {
		a.bitrateKbps = kbps
	}
}

// WithTickInterval sets how often acquired streams report status.
func WithTickInterval(d time.Duration) AcquirerOption {
	return func(a *HTTPAcquirer) {
		a.tick = d
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) AcquirerOption {
	return func(a *HTTPAcquirer) {
		a.logger = l
	}
}

// NewHTTPAcquirer creates an acquirer with the given options.
func NewHTTPAcquirer(opts ...AcquirerOption) *HTTPAcquirer {
	a := &HTTPAcquirer{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		bitrateKbps: 128,
		tick:        500 * time.Millisecond,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Acquire probes locator and returns a Stream for it.
func (a *HTTPAcquirer) Acquire(ctx context.Context, locator string) (Resource, error) {
	resp, err := a.probe(ctx, http.MethodHead, locator)
	if err == nil && (resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented) {
		resp, err = a.probe(ctx, http.MethodGet, locator)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", encerr.ErrAcquireFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned %d", encerr.ErrAcquireFailed, locator, resp.StatusCode)
	}

	duration := a.estimateDuration(resp)
	a.logger.Debug().
		Str("locator", locator).
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Msg("acquired audio resource")

	return NewStream(duration, a.tick), nil
}

func (a *HTTPAcquirer) probe(ctx context.Context, method, locator string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	_ = resp.Body.Close()
	return resp, nil
}

// estimateDuration prefers the explicit duration header, then falls back to
// the total size divided by the configured bitrate. Zero means unknown.
func (a *HTTPAcquirer) estimateDuration(resp *http.Response) time.Duration {
	if v := resp.Header.Get(DurationHeader); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}

	size := totalSize(resp)
	if size <= 0 || a.bitrateKbps <= 0 {
		return 0
	}
	bytesPerSecond := int64(a.bitrateKbps) * 1000 / 8
	return time.Duration(size) * time.Second / time.Duration(bytesPerSecond)
}

// totalSize reads the full resource size from Content-Range on a ranged
// response, or Content-Length otherwise.
func totalSize(resp *http.Response) int64 {
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if i := strings.LastIndex(cr, "/"); i >= 0 {
			if n, err := strconv.ParseInt(cr[i+1:], 10, 64); err == nil {
				return n
			}
		}
	}
	return resp.ContentLength
}
