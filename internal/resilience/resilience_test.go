package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff() Backoff {
	return Backoff{Attempts: 3, Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", Transient(errors.New("x"), 503), true},
		{"wrapped explicit", eris.Wrap(Transient(errors.New("x"), 429), "pdok"), true},
		{"reset", errors.New("read: connection reset by peer"), true},
		{"timeout text", errors.New("dial tcp: i/o timeout"), true},
		{"permanent", errors.New("bad request"), false},
		{"status 404", StatusError("pdok", http.StatusNotFound), false},
		{"status 503", StatusError("pdok", http.StatusServiceUnavailable), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransient_Nil(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Transient(nil, 500))
}

func TestStatusError_Message(t *testing.T) {
	t.Parallel()
	err := StatusError("pdok: create", 429)
	assert.Equal(t, "pdok: create: unexpected status 429 Too Many Requests", err.Error())
	var te *TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 429, te.StatusCode)
}

func TestBackoff_Delay(t *testing.T) {
	t.Parallel()
	b := Backoff{Attempts: 5, Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 10*time.Millisecond, b.Delay(0))
	assert.Equal(t, 40*time.Millisecond, b.Delay(2))
	assert.Equal(t, 50*time.Millisecond, b.Delay(6))

	b.Jitter = 0.5
	for i := 0; i < 20; i++ {
		d := b.Delay(1)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 30*time.Millisecond)
	}
}

func TestRetry(t *testing.T) {
	t.Parallel()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		t.Parallel()
		calls := 0
		v, err := Retry(context.Background(), fastBackoff(), "test", func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, Transient(errors.New("busy"), 503)
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		t.Parallel()
		calls := 0
		_, err := Retry(context.Background(), fastBackoff(), "test", func(context.Context) (int, error) {
			calls++
			return 0, errors.New("bad request")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		t.Parallel()
		calls := 0
		_, err := Retry(context.Background(), fastBackoff(), "test", func(context.Context) (string, error) {
			calls++
			return "", Transient(errors.New("busy"), 503)
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		_, err := Retry(ctx, fastBackoff(), "test", func(context.Context) (int, error) {
			calls++
			return 0, Transient(errors.New("busy"), 503)
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestBreaker(t *testing.T) {
	t.Parallel()
	now := time.Unix(0, 0)
	b := NewBreaker(2, time.Minute)
	b.now = func() time.Time { return now }

	fail := func(context.Context) (int, error) { return 0, errors.New("down") }
	ok := func(context.Context) (int, error) { return 1, nil }
	ctx := context.Background()

	_, _ = Call(ctx, b, fail)
	assert.Equal(t, Closed, b.State())
	_, _ = Call(ctx, b, fail)
	assert.Equal(t, Open, b.State())

	_, err := Call(ctx, b, ok)
	assert.ErrorIs(t, err, ErrOpen)

	now = now.Add(time.Minute)
	assert.Equal(t, HalfOpen, b.State())

	// a failed probe reopens
	_, _ = Call(ctx, b, fail)
	assert.Equal(t, Open, b.State())

	now = now.Add(time.Minute)
	v, err := Call(ctx, b, ok)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, "closed", b.State().String())
}

func TestNewBreaker_Defaults(t *testing.T) {
	t.Parallel()
	b := NewBreaker(0, 0)
	assert.Equal(t, 5, b.Threshold)
	assert.Equal(t, 30*time.Second, b.Cooldown)
}
