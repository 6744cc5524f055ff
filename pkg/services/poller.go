package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrNotReady signals the backend has accepted the request but has not
// produced the certificate yet. The poller retries it; any other error is
// treated as fatal.
var ErrNotReady = errors.New("certificate not ready yet")

type PollConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

const (
	defaultPollMaxAttempts  = 10
	defaultPollInitialDelay = 1 * time.Second
)

// Poll drives an asynchronous issuance to completion. The first fetch runs
// immediately, then each retry waits initialDelay * 2^attempt, with no
// jitter. Exhausting every attempt yields an error naming the certificate
// handle so an operator can inspect it out-of-band.
func Poll[T any](ctx context.Context, cfg PollConfig, handle string, fetch func(ctx context.Context) (T, error)) (T, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultPollMaxAttempts
	}

	initialDelay := cfg.InitialDelay
	if initialDelay <= 0 {
		initialDelay = defaultPollInitialDelay
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = initialDelay
	expBackoff.Multiplier = 2
	expBackoff.RandomizationFactor = 0
	expBackoff.MaxInterval = 1 * time.Hour
	expBackoff.MaxElapsedTime = 0

	operation := func() (T, error) {
		out, err := fetch(ctx)
		if err == nil {
			return out, nil
		}

		if errors.Is(err, ErrNotReady) {
			return out, err
		}

		return out, backoff.Permanent(err)
	}

	out, err := backoff.RetryWithData(operation, backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(maxAttempts-1)), ctx))
	if err != nil {
		var zero T
		if errors.Is(err, ErrNotReady) {
			return zero, fmt.Errorf("certificate issuance did not complete after %d attempts: %s", maxAttempts, handle)
		}
		return zero, err
	}

	return out, nil
}
