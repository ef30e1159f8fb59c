package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"spool/internal/ipcsession"
	"spool/internal/logging"
)

// ErrRetriesExhausted reports that a bounded retry policy gave up.
var ErrRetriesExhausted = errors.New("rewrite service retries exhausted")

// RetryPolicy controls how failed exchanges are retried.
type RetryPolicy struct {
	// MaxAttempts bounds the number of exchanges. Zero retries until the
	// context is done.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy waits one second after the first failure and backs
// off to ten seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	return p
}

// exchange runs one request/response on conn.
type exchange func(conn net.Conn) error

// withRetry runs fn on the session connection until it succeeds, the
// policy gives up, or ctx is done. The session is recovered after every
// failure.
func (c *Client) withRetry(ctx context.Context, op string, fn exchange) error {
	delay := c.retry.BaseDelay
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.attempt(ctx, fn)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("rewrite service reachable again",
					logging.String("op", op),
					logging.Int("attempts", attempt))
			}
			return nil
		}
		if errors.Is(err, ipcsession.ErrFreed) {
			return fmt.Errorf("%s: %w", op, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		c.session.Recover()
		metrics.GetOrCreateCounter(`spool_resolve_retries_total{op="` + op + `"}`).Inc()
		attrs := []logging.Attr{
			logging.String("op", op),
			logging.Int("attempt", attempt),
			logging.Duration("retry_in", delay),
			logging.Error(err),
		}
		if attempt == 1 {
			logging.WarnWithContext(c.logger, "rewrite service request failed", "resolve_retry",
				append(attrs, logging.String(logging.FieldErrorHint, "check that the rewrite service is running"))...)
		} else {
			c.logger.Debug("rewrite service request failed again", logging.Args(attrs...)...)
		}

		if c.retry.MaxAttempts > 0 && attempt >= c.retry.MaxAttempts {
			return fmt.Errorf("%s after %d attempts: %w: %v", op, attempt, ErrRetriesExhausted, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(delay):
		}
		delay = time.Duration(float64(delay) * c.retry.Multiplier)
		if delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
	}
}

// attempt performs one exchange. Cancelling ctx unblocks pending I/O by
// expiring the connection deadline.
func (c *Client) attempt(ctx context.Context, fn exchange) error {
	conn, err := c.session.Access(ctx)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	err = fn(conn)
	c.session.Done()
	if stop() {
		_ = conn.SetDeadline(time.Time{})
	} else {
		c.session.Recover()
	}
	return err
}
