package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return nil
	}, DefaultConfig())

	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if calls != 1 {
		t.Errorf("ожидали 1 вызов, получили %d", calls)
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	cfg := Config{MaxRetries: 5, InitialDelay: time.Millisecond, Multiplier: 1.0}
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary failure")
		}
		return nil
	}, cfg)

	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if calls != 3 {
		t.Errorf("ожидали 3 вызова, получили %d", calls)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	cfg := Config{MaxRetries: 3, InitialDelay: time.Millisecond, Multiplier: 1.0}
	wantErr := errors.New("always fails")
	calls := 0

	err := Do(context.Background(), func() error {
		calls++
		return wantErr
	}, cfg)

	if !errors.Is(err, wantErr) {
		t.Errorf("ожидали последнюю ошибку, получили %v", err)
	}
	if calls != 3 {
		t.Errorf("ожидали 3 вызова, получили %d", calls)
	}
}

func TestDo_PermanentStopsRetries(t *testing.T) {
	cfg := Config{MaxRetries: 5, InitialDelay: time.Millisecond, RetryIf: IsRetryable}
	calls := 0

	err := Do(context.Background(), func() error {
		calls++
		return Permanent(errors.New("validation failed"))
	}, cfg)

	if err == nil {
		t.Fatal("ожидали ошибку")
	}
	if calls != 1 {
		t.Errorf("permanent ошибка не должна retry'иться: %d вызовов", calls)
	}
}

func TestDo_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func() error {
		t.Error("операция не должна вызываться с отменённым контекстом")
		return nil
	}, DefaultConfig())

	if !errors.Is(err, context.Canceled) {
		t.Errorf("ожидали context.Canceled, получили %v", err)
	}
}

func TestDoWithResult(t *testing.T) {
	cfg := Config{MaxRetries: 3, InitialDelay: time.Millisecond, Multiplier: 1.0}
	calls := 0

	got, err := DoWithResult(context.Background(), func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("not yet")
		}
		return 42, nil
	}, cfg)

	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if got != 42 {
		t.Errorf("ожидали 42, получили %d", got)
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil не retry'ится")
	}
	if IsRetryable(Permanent(errors.New("x"))) {
		t.Error("permanent не retry'ится")
	}
	if !IsRetryable(Temporary(errors.New("x"))) {
		t.Error("temporary retry'ится")
	}
	if !IsRetryable(errors.New("plain")) {
		t.Error("обычная ошибка retry'ится по умолчанию")
	}
}

func TestCalculateDelay_CappedByMax(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 2 * time.Second, Multiplier: 10, JitterFactor: 0}
	cfg.validate()

	if d := cfg.calculateDelay(5); d > 2*time.Second {
		t.Errorf("задержка %v превышает MaxDelay", d)
	}
}
