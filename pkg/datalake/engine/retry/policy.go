// Package retry provides the fixed-interval retry policies of the export pipeline and a
// bounded retry combinator whose waits honour context cancellation.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/tigerroll/datalake-export/pkg/datalake/core/config"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/exception"
)

// RetryPolicy defines retry logic.
type RetryPolicy interface {
	// ShouldRetry determines if a given error is retryable.
	ShouldRetry(err error) bool
	// GetBackoffInterval returns the wait before the attempt following attempt (starting from 1).
	GetBackoffInterval(attempt int) time.Duration
	// GetMaxAttempts returns the total number of attempts, including the first one.
	GetMaxAttempts() int
}

// DefaultRetryPolicyFactory creates fixed-interval policies.
type DefaultRetryPolicyFactory struct{}

// NewDefaultRetryPolicyFactory creates a new DefaultRetryPolicyFactory.
func NewDefaultRetryPolicyFactory() *DefaultRetryPolicyFactory {
	return &DefaultRetryPolicyFactory{}
}

// Create creates a policy with maxAttempts total attempts, a fixed interval and the names of
// registered error types that are retried in addition to errors flagged retryable.
func (f *DefaultRetryPolicyFactory) Create(maxAttempts int, interval time.Duration, retryableExceptions []string) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &defaultRetryPolicy{
		maxAttempts:         maxAttempts,
		interval:            interval,
		retryableExceptions: retryableExceptions,
	}
}

// FromConfig creates a policy from a retry section of the configuration.
func (f *DefaultRetryPolicyFactory) FromConfig(cfg config.RetryConfig) RetryPolicy {
	return f.Create(cfg.MaxAttempts, cfg.Interval(), cfg.RetryableExceptions)
}

type defaultRetryPolicy struct {
	maxAttempts         int
	interval            time.Duration
	retryableExceptions []string
}

func (p *defaultRetryPolicy) GetMaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry is true for a BatchError flagged retryable or an error matching a configured type.
// Context cancellation is never retried.
func (p *defaultRetryPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var be *exception.BatchError
	if errors.As(err, &be) && be.IsRetryable() {
		return true
	}

	for _, typeName := range p.retryableExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return false
}

func (p *defaultRetryPolicy) GetBackoffInterval(attempt int) time.Duration {
	return p.interval
}

// Verify interfaces
var _ RetryPolicy = (*defaultRetryPolicy)(nil)
