package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pointraster/internal/config"
	"github.com/sells-group/pointraster/internal/resilience"
)

func thresholds() config.MonitoringConfig {
	return config.MonitoringConfig{
		FailureRateThreshold: 0.10,
		SkipRateThreshold:    0.01,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	snap := &MetricsSnapshot{
		RunsTotal:     100,
		RunsComplete:  95,
		RunsFailed:    5,
		FailRate:      0.05,
		PointsIn:      1000,
		PointsSkipped: 5,
		SkipRate:      0.005,
		LookbackHours: 24,
	}
	assert.Empty(t, NewAlerter(thresholds()).Evaluate(snap))
}

func TestAlerter_Evaluate_RunFailureRate(t *testing.T) {
	snap := &MetricsSnapshot{
		RunsTotal:     20,
		RunsComplete:  12,
		RunsFailed:    8,
		FailRate:      0.4,
		LookbackHours: 24,
	}

	alerts := NewAlerter(thresholds()).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Equal(t, 20, alerts[0].Details["finished"])
}

func TestAlerter_Evaluate_MinimumRunsRequired(t *testing.T) {
	snap := &MetricsSnapshot{
		RunsTotal:    3,
		RunsComplete: 1,
		RunsFailed:   2,
		FailRate:     0.67,
	}
	assert.Empty(t, NewAlerter(thresholds()).Evaluate(snap))
}

func TestAlerter_Evaluate_SkippedPoints(t *testing.T) {
	snap := &MetricsSnapshot{
		PointsIn:      1000,
		PointsSkipped: 50,
		SkipRate:      0.05,
		LookbackHours: 6,
	}

	alerts := NewAlerter(thresholds()).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSkippedPoints, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "50 of 1000 points")
}

func TestAlerter_Evaluate_ZeroSkipThresholdDisables(t *testing.T) {
	snap := &MetricsSnapshot{PointsIn: 10, PointsSkipped: 10, SkipRate: 1}
	alerts := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.1}).Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	snap := &MetricsSnapshot{
		RunsComplete:  5,
		RunsFailed:    5,
		FailRate:      0.5,
		PointsIn:      100,
		PointsSkipped: 20,
		SkipRate:      0.2,
		DegradedRuns:  2,
		LookbackHours: 24,
	}

	alerts := NewAlerter(thresholds()).Evaluate(snap)
	require.Len(t, alerts, 3)
	types := []AlertType{alerts[0].Type, alerts[1].Type, alerts[2].Type}
	assert.Equal(t, []AlertType{AlertRunFailureRate, AlertSkippedPoints, AlertDegradedRuns}, types)
	assert.Equal(t, "low", alerts[2].Severity)
}

func fastBackoff() resilience.Backoff {
	return resilience.Backoff{Attempts: 3, Initial: time.Millisecond, Max: time.Millisecond}
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var note Notification
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&note))
		assert.Equal(t, "pointraster", note.Service)
		assert.Equal(t, 24, note.LookbackHours)
		if assert.Len(t, note.Alerts, 2) {
			assert.Equal(t, AlertDegradedRuns, note.Alerts[0].Type)
			assert.Equal(t, "two", note.Alerts[1].Message)
		}

		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL, LookbackWindowHours: 24})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertDegradedRuns, Severity: "low", Message: "one"},
		{Type: AlertDegradedRuns, Severity: "low", Message: "two"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(1), received.Load())
}

func TestAlerter_SendAlerts_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	a.backoff = fastBackoff()
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailureRate}})
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailureRate}})
	assert.Zero(t, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: "http://localhost:1"})
	assert.Zero(t, a.SendAlerts(context.Background(), nil))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	a.backoff = fastBackoff()
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailureRate}})
	assert.Zero(t, sent)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAlerter_SendAlerts_BadRequestNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	a.backoff = fastBackoff()
	assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailureRate}}))
	assert.Equal(t, int32(1), calls.Load())
}
