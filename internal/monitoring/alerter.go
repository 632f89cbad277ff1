package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pointraster/internal/config"
	"github.com/sells-group/pointraster/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertSkippedPoints  AlertType = "skipped_points"
	AlertDegradedRuns   AlertType = "degraded_runs"
)

// minFinishedRuns is the sample size below which failure rate is not judged.
const minFinishedRuns = 5

// Alert is one breached threshold.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Notification is the webhook body: every alert from one check plus the
// window they were measured over.
type Notification struct {
	Service       string    `json:"service"`
	LookbackHours int       `json:"lookback_hours,omitempty"`
	Alerts        []Alert   `json:"alerts"`
	SentAt        time.Time `json:"sent_at"`
}

// Alerter turns a MetricsSnapshot into alerts and posts them to a webhook.
type Alerter struct {
	cfg     config.MonitoringConfig
	client  *http.Client
	backoff resilience.Backoff
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		backoff: resilience.DefaultBackoff(),
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts,
// most severe first.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	now := time.Now().UTC()
	raise := func(t AlertType, severity, msg string, details map[string]any) Alert {
		return Alert{Type: t, Severity: severity, Message: msg, Details: details, Timestamp: now}
	}

	var alerts []Alert
	finished := snap.RunsComplete + snap.RunsFailed
	if finished >= minFinishedRuns && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, raise(AlertRunFailureRate, "high",
			fmt.Sprintf("Run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100, snap.RunsFailed, finished, snap.LookbackHours),
			map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			}))
	}

	// A zero threshold turns the skipped-points check off.
	if a.cfg.SkipRateThreshold > 0 && snap.SkipRate > a.cfg.SkipRateThreshold {
		alerts = append(alerts, raise(AlertSkippedPoints, "medium",
			fmt.Sprintf("%d of %d points (%.2f%%) fell outside every chunk in last %dh",
				snap.PointsSkipped, snap.PointsIn, snap.SkipRate*100, snap.LookbackHours),
			map[string]any{
				"skipped":   snap.PointsSkipped,
				"points_in": snap.PointsIn,
				"skip_rate": snap.SkipRate,
				"threshold": a.cfg.SkipRateThreshold,
			}))
	}

	if snap.DegradedRuns > 0 {
		alerts = append(alerts, raise(AlertDegradedRuns, "low",
			fmt.Sprintf("%d completed run(s) reported warnings in last %dh", snap.DegradedRuns, snap.LookbackHours),
			map[string]any{
				"degraded": snap.DegradedRuns,
				"complete": snap.RunsComplete,
			}))
	}

	return alerts
}

// SendAlerts posts alerts as a single Notification. It returns how many
// alerts were delivered: all of them or none.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}
	log := zap.L().With(zap.String("component", "monitoring.alerter"))

	note := Notification{
		Service:       "pointraster",
		LookbackHours: a.cfg.LookbackWindowHours,
		Alerts:        alerts,
		SentAt:        time.Now().UTC(),
	}
	_, err := resilience.Retry(ctx, a.backoff, "alert webhook", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.post(ctx, note)
	})
	if err != nil {
		log.Error("failed to deliver alerts", zap.Int("alerts", len(alerts)), zap.Error(err))
		return 0
	}

	for _, alert := range alerts {
		log.Info("alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
	}
	return len(alerts)
}

func (a *Alerter) post(ctx context.Context, note Notification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 300 {
		return resilience.StatusError("monitoring: webhook", resp.StatusCode)
	}
	return nil
}
