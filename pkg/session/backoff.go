package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/snehendu098/ghost/clearclient/pkg/log"
	"github.com/snehendu098/ghost/clearclient/pkg/rpc"
)

// DialRetry bounds the attempts made to open the socket. The signing
// handshake is never retried.
type DialRetry struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

var DefaultDialRetry = DialRetry{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    4 * time.Second,
}

// retryDial runs dial until it succeeds, fails with a non-dial error or
// runs out of attempts.
func retryDial(ctx context.Context, cfg DialRetry, dial func() error) error {
	lg := log.FromContext(ctx)
	attempts := max(cfg.MaxAttempts, 1)

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = dial(); err == nil {
			return nil
		}
		if !errors.Is(err, rpc.ErrDialingWebsocket) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		delay := backoffDelay(attempt, cfg.BaseDelay, cfg.MaxDelay)
		lg.Warn("dial failed, backing off", "attempt", attempt+1, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("dial failed after %d attempts: %w", attempts, err)
}

// backoffDelay doubles base per attempt up to maxDelay and picks a value in
// [delay/2, delay).
func backoffDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base << attempt
	if delay <= 0 || (maxDelay > 0 && delay > maxDelay) {
		delay = maxDelay
	}
	half := delay / 2
	if half <= 0 {
		return delay
	}
	return half + rand.N(half)
}
