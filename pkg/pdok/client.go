// Package pdok is a client for the PDOK BGT custom download API, used to fetch
// water polygons ("waterdeel") for a bounding box.
package pdok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/pointraster/internal/resilience"
)

const (
	defaultBaseURL = "https://api.pdok.nl"
	customPath     = "/lv/bgt/download/v1_0/full/custom"
)

// Job states reported by the status endpoint.
const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// DownloadRequest is the body for POST /full/custom.
type DownloadRequest struct {
	FeatureTypes []string `json:"featuretypes"`
	Format       string   `json:"format"`
	GeoFilter    string   `json:"geofilter"`
}

// Link is a HAL link.
type Link struct {
	Href string `json:"href"`
}

// Links are the HAL links returned by the API.
type Links struct {
	Status   *Link `json:"status,omitempty"`
	Download *Link `json:"download,omitempty"`
}

// DownloadResponse is the response from POST /full/custom.
type DownloadResponse struct {
	DownloadRequestID string `json:"downloadRequestId"`
	Links             Links  `json:"_links"`
}

// StatusResponse is the response from GET {status href}.
type StatusResponse struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Links    Links  `json:"_links"`
}

// APIError is returned when PDOK responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pdok: HTTP %d: %s", e.StatusCode, e.Body)
}

// Client talks to the BGT download API.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	backoff resilience.Backoff
	breaker *resilience.Breaker
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API host.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit caps requests per second across all endpoints.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1) }
}

// WithBackoff sets the retry schedule for individual requests.
func WithBackoff(b resilience.Backoff) Option {
	return func(c *Client) { c.backoff = b }
}

// WithBreaker guards requests with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// NewClient returns a BGT download client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 5 * time.Minute},
		limiter: rate.NewLimiter(2, 1),
		backoff: resilience.DefaultBackoff(),
		breaker: resilience.NewBreaker(5, 30*time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestDownload starts a custom download job.
func (c *Client) RequestDownload(ctx context.Context, req DownloadRequest) (*DownloadResponse, error) {
	var resp DownloadResponse
	if err := c.call(ctx, http.MethodPost, c.baseURL+customPath, req, &resp); err != nil {
		return nil, eris.Wrap(err, "pdok: request download")
	}
	if resp.Links.Status == nil || resp.Links.Status.Href == "" {
		return nil, eris.New("pdok: request download: response has no status link")
	}
	return &resp, nil
}

// Status fetches the state of a job from its status link.
func (c *Client) Status(ctx context.Context, href string) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call(ctx, http.MethodGet, c.resolve(href), nil, &resp); err != nil {
		return nil, eris.Wrap(err, "pdok: get status")
	}
	return &resp, nil
}

// Download streams the archive behind a download link into w.
func (c *Client) Download(ctx context.Context, href string, w io.Writer) (int64, error) {
	return resilience.Call(ctx, c.breaker, func(ctx context.Context) (int64, error) {
		body, err := resilience.Retry(ctx, c.backoff, "pdok download", func(ctx context.Context) (io.ReadCloser, error) {
			resp, err := c.send(ctx, http.MethodGet, c.resolve(href), nil)
			if err != nil {
				return nil, err
			}
			return resp.Body, nil
		})
		if err != nil {
			return 0, eris.Wrap(err, "pdok: download")
		}
		defer body.Close() //nolint:errcheck
		n, err := io.Copy(w, body)
		return n, eris.Wrap(err, "pdok: read archive")
	})
}

func (c *Client) resolve(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return c.baseURL + href
}

// call sends a JSON request through the breaker with retries and decodes the
// JSON response into out.
func (c *Client) call(ctx context.Context, method, url string, body, out any) error {
	var buf []byte
	if body != nil {
		var err error
		if buf, err = json.Marshal(body); err != nil {
			return eris.Wrap(err, "marshal request")
		}
	}

	_, err := resilience.Call(ctx, c.breaker, func(ctx context.Context) (struct{}, error) {
		return resilience.Retry(ctx, c.backoff, "pdok "+method, func(ctx context.Context) (struct{}, error) {
			resp, err := c.send(ctx, method, url, buf)
			if err != nil {
				return struct{}{}, err
			}
			defer resp.Body.Close() //nolint:errcheck
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return struct{}{}, eris.Wrap(err, "decode response")
			}
			return struct{}{}, nil
		})
	})
	return err
}

func (c *Client) send(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "execute request")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.Transient(apiErr, resp.StatusCode)
		}
		return nil, apiErr
	}
	return resp, nil
}
