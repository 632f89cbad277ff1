package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/pointraster/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker evaluates run health on a timer and forwards new alerts.
//
// The snapshot covers a sliding window, so a single bad run keeps breaching
// thresholds until it ages out. An alert type that was delivered is held
// back until one full lookback window has passed.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	now       func() time.Time

	mu       sync.Mutex
	lastSent map[AlertType]time.Time
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		now:       time.Now,
		lastSent:  make(map[AlertType]time.Time),
	}
}

// Run checks once immediately and then every CheckIntervalSecs until ctx
// is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	if ctx.Err() != nil {
		return
	}
	log.Info("alert checker started",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		c.Check(ctx)
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Check collects one snapshot, evaluates it and delivers alerts that are not
// held back. It returns the number of alerts the snapshot triggered.
func (c *Checker) Check(ctx context.Context) int {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("collect metrics", zap.Error(err))
		return 0
	}

	alerts := c.alerter.Evaluate(snap)
	fresh := c.unsent(alerts)
	if len(fresh) == 0 {
		log.Debug("no new alerts", zap.Int("triggered", len(alerts)))
		return len(alerts)
	}

	if sent := c.alerter.SendAlerts(ctx, fresh); sent > 0 {
		c.markSent(fresh)
	}
	log.Info("alert check complete",
		zap.Int("triggered", len(alerts)),
		zap.Int("new", len(fresh)),
	)
	return len(alerts)
}

func (c *Checker) holdBack() time.Duration {
	hours := c.cfg.LookbackWindowHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

func (c *Checker) unsent(alerts []Alert) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var fresh []Alert
	for _, a := range alerts {
		if at, ok := c.lastSent[a.Type]; ok && now.Sub(at) < c.holdBack() {
			continue
		}
		fresh = append(fresh, a)
	}
	return fresh
}

func (c *Checker) markSent(alerts []Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, a := range alerts {
		c.lastSent[a.Type] = now
	}
}
