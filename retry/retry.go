// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/poiesic/lexis/core"
)

// Policy controls how a provider call is retried.
type Policy struct {
	// MaxRetries is the total number of attempts. Default: 3
	MaxRetries int

	// BackoffBase is raised to the attempt index to get the wait after a
	// rate limit, in BackoffUnit. Default: 2
	BackoffBase float64

	// BackoffUnit scales the backoff. Default: 1s
	BackoffUnit time.Duration

	// Timeout bounds the first attempt. Zero leaves the caller's deadline alone.
	Timeout time.Duration

	// TimeoutFactor shrinks the timeout after each timed-out attempt. Default: 0.7
	TimeoutFactor float64

	// Temperature is the sampling temperature of the first attempt.
	Temperature float64

	// TemperatureStep is added after each invalid response, wrapping past MaxTemperature.
	TemperatureStep float64

	// MaxTemperature caps perturbed temperatures. Default: 1.0
	MaxTemperature float64
}

// DefaultPolicy returns the standard provider retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      3,
		BackoffBase:     2,
		BackoffUnit:     time.Second,
		Timeout:         30 * time.Second,
		TimeoutFactor:   0.7,
		Temperature:     0,
		TemperatureStep: 0.2,
		MaxTemperature:  1.0,
	}
}

// Validate checks the policy for values that would never terminate or never wait.
func (p Policy) Validate() error {
	if p.MaxRetries <= 0 {
		return ErrInvalidMaxRetries
	}
	if p.BackoffBase < 1 {
		return fmt.Errorf("%w: backoff base must be at least 1, got %v", core.ErrConfiguration, p.BackoffBase)
	}
	if p.TimeoutFactor <= 0 || p.TimeoutFactor > 1 {
		return fmt.Errorf("%w: timeout factor must be in (0, 1], got %v", core.ErrConfiguration, p.TimeoutFactor)
	}
	if p.Timeout < 0 || p.BackoffUnit < 0 {
		return fmt.Errorf("%w: durations cannot be negative", core.ErrConfiguration)
	}
	return nil
}

// Backoff returns the wait before retrying after the given zero-based attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	return time.Duration(float64(p.BackoffUnit) * math.Pow(p.BackoffBase, float64(attempt)))
}

// Attempt describes the parameters of one try of a retried call.
type Attempt struct {
	Number      int // Zero-based
	Timeout     time.Duration
	Temperature float64
}

// Do runs op until it succeeds, the parent context ends, or the policy is exhausted.
//
// The retry strategy depends on the error class:
//   - core.ErrRateLimit: wait Backoff(attempt) then retry
//   - core.ErrTimeout or an attempt deadline: shrink the next timeout by TimeoutFactor
//   - core.ErrInvalidResponse: perturb the next attempt's temperature
//   - anything else: treated as transient, backoff like a rate limit
//
// When every attempt fails, Do returns a *core.ExhaustedRetriesError carrying the last error.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context, attempt Attempt) error) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	attempt := Attempt{Timeout: policy.Timeout, Temperature: policy.Temperature}
	var lastErr error
	for attempt.Number = 0; attempt.Number < policy.MaxRetries; attempt.Number++ {
		// Check context before attempting
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = runAttempt(ctx, attempt, op)
		if lastErr == nil {
			if attempt.Number > 0 {
				slog.Debug("operation succeeded after retry", "attempt", attempt.Number)
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		slog.Debug("operation failed, will retry", "attempt", attempt.Number, "maxRetries", policy.MaxRetries, "err", lastErr)

		// Don't sleep after the last attempt
		if attempt.Number == policy.MaxRetries-1 {
			break
		}

		var delay time.Duration
		switch {
		case errors.Is(lastErr, core.ErrTimeout):
			if attempt.Timeout > 0 {
				attempt.Timeout = time.Duration(float64(attempt.Timeout) * policy.TimeoutFactor)
			}
		case errors.Is(lastErr, core.ErrInvalidResponse):
			attempt.Temperature = perturb(attempt.Temperature, policy)
		default:
			delay = policy.Backoff(attempt.Number)
		}

		if delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
	}

	return &core.ExhaustedRetriesError{Attempts: policy.MaxRetries, Last: lastErr}
}

func runAttempt(ctx context.Context, attempt Attempt, op func(ctx context.Context, attempt Attempt) error) error {
	if attempt.Timeout <= 0 {
		return op(ctx, attempt)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, attempt.Timeout)
	defer cancel()

	err := op(attemptCtx, attempt)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, core.ErrTimeout) {
		err = fmt.Errorf("%w: %w", core.ErrTimeout, err)
	}
	return err
}

func perturb(temperature float64, policy Policy) float64 {
	maxTemp := policy.MaxTemperature
	if maxTemp <= 0 {
		maxTemp = 1.0
	}
	step := policy.TemperatureStep
	if step <= 0 {
		step = 0.2
	}
	next := temperature + step
	if next > maxTemp {
		next = math.Mod(next, maxTemp)
	}
	return next
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
