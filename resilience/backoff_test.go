package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExponentialBackoffGrowsAndCaps(t *testing.T) {
	b := NewExponentialBackoff(BackoffConfig{
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     40 * time.Millisecond,
		Multiplier:      2.0,
		MaxRetries:      10,
	})

	want := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		40 * time.Millisecond, // capped
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() #%d = %v, want %v", i, got, w)
		}
	}
	if b.Attempts() != len(want) {
		t.Errorf("Attempts = %d, want %d", b.Attempts(), len(want))
	}
}

func TestExponentialBackoffExhausts(t *testing.T) {
	b := NewExponentialBackoff(BackoffConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
		MaxRetries:      2,
	})

	if b.Next() == 0 || b.Next() == 0 {
		t.Fatal("backoff exhausted before MaxRetries")
	}
	if b.Next() != 0 {
		t.Error("backoff not exhausted after MaxRetries")
	}

	b.Reset()
	if b.Next() != time.Millisecond {
		t.Error("Reset did not restore the initial interval")
	}
}

func TestExponentialBackoffJitterBounds(t *testing.T) {
	b := NewExponentialBackoff(BackoffConfig{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      1.0,
		Jitter:          true,
		JitterFactor:    0.1,
	})

	for i := 0; i < 50; i++ {
		got := b.Next()
		if got < 90*time.Millisecond || got > 110*time.Millisecond {
			t.Fatalf("jittered interval %v outside +/-10%% of 100ms", got)
		}
	}
}

func TestConstantBackoff(t *testing.T) {
	b := NewConstantBackoff(5*time.Millisecond, 3)

	for i := 0; i < 3; i++ {
		if got := b.Next(); got != 5*time.Millisecond {
			t.Errorf("Next() #%d = %v, want 5ms", i, got)
		}
	}
	if b.Next() != 0 {
		t.Error("constant backoff not exhausted after maxRetries")
	}

	unlimited := NewConstantBackoff(time.Millisecond, 0)
	for i := 0; i < 100; i++ {
		if unlimited.Next() == 0 {
			t.Fatal("unlimited constant backoff exhausted")
		}
	}
}

func TestRetryWithBackoff(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), NewConstantBackoff(time.Microsecond, 10), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RetryWithBackoff: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryWithBackoffReturnsLastError(t *testing.T) {
	boom := errors.New("permanent")
	err := RetryWithBackoff(context.Background(), NewConstantBackoff(time.Microsecond, 2), func() error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestRetryWithBackoffHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, NewConstantBackoff(time.Hour, 0), func() error {
		return errors.New("keep going")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
