/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package retry_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/toolgate/gateway/retry"
)

func testConfig() retry.Config {
	return retry.Config{
		MaxAttempts: 4,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  10 * time.Millisecond,
		MaxJitter:   time.Millisecond,
	}
}

func anyError(err error) bool { return err != nil }

func TestDoFirstAttemptSucceeds(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	got, err := retry.Do(context.Background(), testConfig(), "op", anyError, func() (string, error) {
		attempts.Add(1)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Fatalf("result = %q", got)
	}
	if n := attempts.Load(); n != 1 {
		t.Fatalf("attempts = %d, want 1", n)
	}
}

func TestDoRecoversAfterRetries(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	got, err := retry.Do(context.Background(), testConfig(), "op", anyError, func() (string, error) {
		if attempts.Add(1) < 3 {
			return "", errors.New("429 too many requests")
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "recovered" {
		t.Fatalf("result = %q", got)
	}
	if n := attempts.Load(); n != 3 {
		t.Fatalf("attempts = %d, want 3", n)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	persistent := errors.New("still overloaded")
	_, err := retry.Do(context.Background(), testConfig(), "op", anyError, func() (int, error) {
		attempts.Add(1)
		return 0, persistent
	})
	if !errors.Is(err, persistent) {
		t.Fatalf("expected wrapped persistent error, got %v", err)
	}
	if n := attempts.Load(); n != 4 {
		t.Fatalf("attempts = %d, want 4", n)
	}
}

func TestDoNonRetryableFailsImmediately(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	fatal := errors.New("401 unauthorized")
	_, err := retry.Do(context.Background(), testConfig(), "op", func(error) bool { return false }, func() (int, error) {
		attempts.Add(1)
		return 0, fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected the fatal error unwrapped, got %v", err)
	}
	if n := attempts.Load(); n != 1 {
		t.Fatalf("attempts = %d, want 1", n)
	}
}

func TestDoContextCancelsBackoff(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cfg := testConfig()
	cfg.BaseBackoff = time.Hour // only cancellation can end the wait

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := retry.Do(ctx, cfg, "op", anyError, func() (int, error) {
		return 0, errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     retry.Config
		wantErr bool
	}{
		{name: "default", cfg: retry.Default()},
		{name: "single attempt", cfg: retry.Config{MaxAttempts: 1}},
		{name: "zero attempts", cfg: retry.Config{MaxAttempts: 0}, wantErr: true},
		{name: "negative backoff", cfg: retry.Config{MaxAttempts: 1, BaseBackoff: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
