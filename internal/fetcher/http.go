package fetcher

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/pointraster/internal/resilience"
)

// HTTPOptions configures the HTTP client.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	Rate      rate.Limit // requests per second, 0 selects 5
	Backoff   resilience.Backoff
}

// HTTP downloads files with rate limiting and retries on transient failures.
type HTTP struct {
	client  *http.Client
	limiter *rate.Limiter
	opts    HTTPOptions
}

// NewHTTP returns an HTTP client.
func NewHTTP(opts HTTPOptions) *HTTP {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "pointraster/1.0"
	}
	if opts.Rate == 0 {
		opts.Rate = 5
	}
	return &HTTP{
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(opts.Rate, 1),
		opts:    opts,
	}
}

// Do sends req after waiting on the limiter. Non-2xx responses are closed and
// returned as errors; throttling and 5xx responses are transient.
func (h *HTTP) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "http: rate limiter wait")
	}
	req = req.WithContext(ctx)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", h.opts.UserAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "http: %s %s", req.Method, req.URL)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, resilience.StatusError("http: "+req.Method+" "+req.URL.String(), resp.StatusCode)
	}
	return resp, nil
}

// Get returns the body of url, retrying transient failures.
func (h *HTTP) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := resilience.Retry(ctx, h.opts.Backoff, "http get", func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, eris.Wrap(err, "http: create request")
		}
		return h.Do(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// ToFile downloads url to path and returns the bytes written.
func (h *HTTP) ToFile(ctx context.Context, url, path string) (int64, error) {
	body, err := h.Get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck
	return writeFile(path, body)
}

func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		return n, eris.Wrap(err, "fetcher: write file")
	}
	if err := f.Close(); err != nil {
		return n, eris.Wrap(err, "fetcher: close file")
	}
	return n, nil
}
