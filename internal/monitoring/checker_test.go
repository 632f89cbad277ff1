package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/pointraster/internal/config"
	"github.com/sells-group/pointraster/internal/model"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{
		CheckIntervalSecs:    1,
		LookbackWindowHours:  24,
		FailureRateThreshold: 0.10,
	}
	checker := NewChecker(NewCollector(&mockStore{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(&mockStore{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_CheckSendsAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	st := &mockStore{runs: []model.Run{
		completeRun(time.Minute, 100, 0, 100, "no points left to rasterize in a.las"),
	}}
	cfg := config.MonitoringConfig{
		WebhookURL:           ts.URL,
		LookbackWindowHours:  1,
		FailureRateThreshold: 0.5,
	}
	checker := NewChecker(NewCollector(st), NewAlerter(cfg), cfg)

	assert.Equal(t, 1, checker.Check(context.Background()))
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_CheckCollectError(t *testing.T) {
	cfg := config.MonitoringConfig{LookbackWindowHours: 1}
	checker := NewChecker(NewCollector(&mockStore{listErr: assert.AnError}), NewAlerter(cfg), cfg)
	assert.Zero(t, checker.Check(context.Background()))
}

func TestChecker_HoldsBackRepeatedAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	st := &mockStore{runs: []model.Run{
		completeRun(time.Minute, 100, 0, 100, "no points left to rasterize in a.las"),
	}}
	cfg := config.MonitoringConfig{
		WebhookURL:           ts.URL,
		LookbackWindowHours:  2,
		FailureRateThreshold: 0.5,
	}
	checker := NewChecker(NewCollector(st), NewAlerter(cfg), cfg)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	checker.now = func() time.Time { return clock }

	assert.Equal(t, 1, checker.Check(context.Background()))
	assert.Equal(t, 1, checker.Check(context.Background()))
	assert.Equal(t, int32(1), received.Load())

	clock = clock.Add(2*time.Hour + time.Second)
	assert.Equal(t, 1, checker.Check(context.Background()))
	assert.Equal(t, int32(2), received.Load())
}

func TestChecker_FailedDeliveryIsRetriedNextCheck(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if received.Add(1) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	st := &mockStore{runs: []model.Run{
		completeRun(time.Minute, 100, 0, 100, "no points left to rasterize in a.las"),
	}}
	cfg := config.MonitoringConfig{WebhookURL: ts.URL, LookbackWindowHours: 1}
	checker := NewChecker(NewCollector(st), NewAlerter(cfg), cfg)

	checker.Check(context.Background())
	checker.Check(context.Background())
	checker.Check(context.Background())
	assert.Equal(t, int32(2), received.Load())
}
