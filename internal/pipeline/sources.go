package pipeline

import (
	"context"
	"time"

	"github.com/sells-group/pointraster/internal/config"
	"github.com/sells-group/pointraster/internal/db"
	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/polygons"
	"github.com/sells-group/pointraster/internal/resilience"
	"github.com/sells-group/pointraster/pkg/pdok"
)

// NewSource builds the polygon source named by cfg.Source. The returned
// close func releases any connection the source holds and is never nil.
func NewSource(ctx context.Context, cfg config.PolygonsConfig, tempDir string) (polygons.Source, func(), error) {
	noop := func() {}
	switch cfg.Source {
	case config.SourceNone, "":
		return nil, noop, nil
	case config.SourceFile:
		return polygons.NewFile(cfg.Path), noop, nil
	case config.SourcePostGIS:
		pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolConfig{})
		if err != nil {
			return nil, noop, model.NewError(model.KindExternal, "postgis connect", err)
		}
		return polygons.NewPostGIS(pool, cfg.Table, cfg.SRID), pool.Close, nil
	case config.SourcePDOK:
		return NewPDOKSource(cfg.PDOK, tempDir), noop, nil
	default:
		return nil, noop, model.Errorf(model.KindConfig, "polygons", "unknown polygon source %q", cfg.Source)
	}
}

// NewPDOKSource builds the BGT waterdeel source from cfg.
func NewPDOKSource(cfg config.PDOKConfig, tempDir string) *pdok.Waterdelen {
	backoff := resilience.DefaultBackoff()
	if cfg.MaxRetries > 0 {
		backoff.Attempts = cfg.MaxRetries
	}
	opts := []pdok.Option{
		pdok.WithBackoff(backoff),
		pdok.WithBreaker(resilience.NewBreaker(cfg.BreakerThreshold, time.Duration(cfg.BreakerCooldownSecs)*time.Second)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, pdok.WithBaseURL(cfg.BaseURL))
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, pdok.WithRateLimit(cfg.RateLimit))
	}

	var poll []pdok.PollOption
	if cfg.PollIntervalSecs > 0 {
		poll = append(poll, pdok.WithPollInterval(time.Duration(cfg.PollIntervalSecs)*time.Second))
	}
	if cfg.PollTimeoutSecs > 0 {
		poll = append(poll, pdok.WithPollTimeout(time.Duration(cfg.PollTimeoutSecs)*time.Second))
	}
	return pdok.NewWaterdelen(pdok.NewClient(opts...), tempDir, poll...)
}
