package retry

import (
	"context"
	"errors"
	"time"

	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/logger"
)

// Sleeper waits for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleeper is the production Sleeper backed by a timer.
func ContextSleeper(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retryer runs an operation under a RetryPolicy.
type Retryer struct {
	Policy RetryPolicy
	Sleep  Sleeper
	// Name identifies the operation in log output.
	Name string
}

// NewRetryer creates a Retryer. A nil sleeper selects ContextSleeper.
func NewRetryer(name string, policy RetryPolicy, sleeper Sleeper) *Retryer {
	if sleeper == nil {
		sleeper = ContextSleeper
	}
	return &Retryer{Policy: policy, Sleep: sleeper, Name: name}
}

// Do calls op with attempt numbers starting at 1 until it succeeds, returns an error the policy
// does not retry, or GetMaxAttempts attempts were made. The policy interval is waited between
// attempts only. The last error is returned; a cancelled wait joins the context error to it.
func (r *Retryer) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	maxAttempts := r.Policy.GetMaxAttempts()
	var err error
	for attempt := 1; ; attempt++ {
		err = op(ctx, attempt)
		if err == nil {
			return nil
		}
		if attempt >= maxAttempts || !r.Policy.ShouldRetry(err) {
			return err
		}

		wait := r.Policy.GetBackoffInterval(attempt)
		logger.Debugf("%s: attempt %d/%d failed, retrying in %s: %v", r.Name, attempt, maxAttempts, wait, err)
		if sleepErr := r.Sleep(ctx, wait); sleepErr != nil {
			logger.Warnf("%s: retry wait aborted after attempt %d: %v", r.Name, attempt, sleepErr)
			return errors.Join(sleepErr, err)
		}
	}
}
