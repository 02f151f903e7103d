package lattice

import (
	"time"

	"github.com/aretw0/lattice/pkg/domain"
)

const (
	// DefaultRetryTimeout bounds each per-attempt wait for connectivity.
	DefaultRetryTimeout = 10 * time.Second

	// DefaultMaxRetries allows this many retries after the first attempt.
	DefaultMaxRetries = 5
)

type retryConfig struct {
	timeout    time.Duration
	maxRetries int
	unbounded  bool
}

// RetryOption configures a Retry call.
type RetryOption func(*retryConfig)

// WithRetryTimeout sets the per-attempt connectivity wait budget.
func WithRetryTimeout(d time.Duration) RetryOption {
	return func(cfg *retryConfig) {
		cfg.timeout = d
	}
}

// WithMaxRetries sets the retry budget. n retries means at most n+1
// attempts; 0 performs exactly one attempt.
func WithMaxRetries(n int) RetryOption {
	return func(cfg *retryConfig) {
		cfg.maxRetries = n
	}
}

// WithUnboundedRetries retries forever. There is no built-in termination:
// the caller must ensure the operation eventually succeeds or give up by
// other means. A pathological configuration, kept for parity with callers
// that genuinely cannot make progress without coordination.
func WithUnboundedRetries() RetryOption {
	return func(cfg *retryConfig) {
		cfg.unbounded = true
	}
}

// Retry executes op under a bounded retry budget, re-establishing
// connectivity between attempts. An attempt is consumed when waiting for
// connectivity fails or when op returns a connection-loss error; any other
// outcome, success or failure, is returned immediately. An exhausted
// budget yields *domain.RetryLimitError.
func Retry[T any](c *Conn, desc string, op func() (T, error), opts ...RetryOption) (T, error) {
	cfg := retryConfig{
		timeout:    DefaultRetryTimeout,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var zero T
	attempts := 0
	for cfg.unbounded || attempts <= cfg.maxRetries {
		attempts++
		c.metrics.RetryAttempts.WithLabelValues(desc).Inc()
		if err := c.WaitConnected(cfg.timeout); err != nil {
			c.logger.Debug("retry: no connectivity, attempt consumed",
				"op", desc,
				"attempt", attempts,
				"err", err,
			)
			continue
		}
		v, err := op()
		if err == nil {
			return v, nil
		}
		if !domain.IsConnError(err) {
			return zero, err
		}
		c.logger.Debug("retry: connection dropped during operation",
			"op", desc,
			"attempt", attempts,
			"err", err,
		)
	}
	c.metrics.RetryExhausted.WithLabelValues(desc).Inc()
	return zero, &domain.RetryLimitError{Desc: desc, Attempts: attempts}
}

// Retry is the result-less convenience form of the package-level Retry.
func (c *Conn) Retry(desc string, op func() error, opts ...RetryOption) error {
	_, err := Retry(c, desc, func() (struct{}, error) {
		return struct{}{}, op()
	}, opts...)
	return err
}
