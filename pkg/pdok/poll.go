package pdok

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultPollInitial = time.Second
	defaultPollCap     = 10 * time.Second
	defaultPollTimeout = 10 * time.Minute
)

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	initial time.Duration
	cap     time.Duration
	timeout time.Duration
}

// WithPollInterval overrides the initial poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) { c.initial = d }
}

// WithPollCap overrides the maximum poll interval.
func WithPollCap(d time.Duration) PollOption {
	return func(c *pollConfig) { c.cap = d }
}

// WithPollTimeout bounds the whole poll when ctx has no deadline.
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) { c.timeout = d }
}

// Poll follows a status link until the job completes, fails, or ctx expires.
// The interval doubles after each pending response up to the cap.
func (c *Client) Poll(ctx context.Context, href string, opts ...PollOption) (*StatusResponse, error) {
	cfg := pollConfig{initial: defaultPollInitial, cap: defaultPollCap, timeout: defaultPollTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	interval := cfg.initial
	for {
		status, err := c.Status(ctx, href)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrapf(err, "pdok: poll %s timed out", href)
			}
			return nil, eris.Wrapf(err, "pdok: poll %s", href)
		}

		switch status.Status {
		case StatusCompleted:
			if status.Links.Download == nil || status.Links.Download.Href == "" {
				return nil, eris.Errorf("pdok: job %s completed without a download link", href)
			}
			return status, nil
		case StatusFailed:
			return nil, eris.Errorf("pdok: job %s failed", href)
		}

		zap.L().Debug("pdok: waiting for download",
			zap.String("status", status.Status),
			zap.Int("progress", status.Progress),
		)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, eris.Wrapf(ctx.Err(), "pdok: poll %s timed out", href)
		case <-timer.C:
		}

		interval *= 2
		if interval > cfg.cap {
			interval = cfg.cap
		}
	}
}
