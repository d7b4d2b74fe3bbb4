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
	"log/slog"
	"time"

	"github.com/lthibault/jitterbug/v2"
)

// Policy describes how an operation is retried.
//
// Before every attempt the policy waits a random interval drawn uniformly from
// [JitterMin, JitterMax). After a failed attempt it waits CoolDown when
// IsCoolDown reports the error as a throttling signal, and otherwise
// BaseDelay * Multiplier^(attempt-1), capped at MaxDelay when MaxDelay > 0.
// No wait follows the last attempt.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64 // values <= 1 keep the delay constant
	MaxDelay    time.Duration
	CoolDown    time.Duration
	IsCoolDown  func(error) bool
	JitterMin   time.Duration
	JitterMax   time.Duration
}

// DownloadPolicy returns the policy used for document downloads:
// three attempts, 1-3s of jitter before each, 2s after an ordinary failure
// and a 30s cool-down after the caller has been throttled.
func DownloadPolicy(isThrottled func(error) bool) Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		CoolDown:    30 * time.Second,
		IsCoolDown:  isThrottled,
		JitterMin:   1 * time.Second,
		JitterMax:   3 * time.Second,
	}
}

// StorePolicy returns the policy used when the job store reports contention.
func StorePolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
	}
}

// EmbedPolicy returns the policy used for embedding requests.
// Callers mark input-size rejections with Permanent so they are not resent.
func EmbedPolicy() Policy {
	return Policy{
		MaxAttempts: 2,
		BaseDelay:   1 * time.Second,
		Multiplier:  2,
	}
}

// Validate checks that the policy can be executed.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	if p.BaseDelay < 0 || p.CoolDown < 0 || p.MaxDelay < 0 {
		return ErrNegativeDelay
	}
	if p.JitterMin < 0 || p.JitterMax < p.JitterMin {
		return ErrInvalidJitter
	}
	return nil
}

// Do runs op until it succeeds, returns a Permanent error, or the attempts are exhausted.
// op receives the 1-based attempt number. The error from the last attempt is
// returned when all attempts fail; a Permanent error is returned unwrapped.
func (p Policy) Do(ctx context.Context, op func(attempt int) error) error {
	if err := p.Validate(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := Sleep(ctx, p.jitter()); err != nil {
			return err
		}

		lastErr = op(attempt)
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		slog.Debug("operation failed, will retry", "attempt", attempt, "maxAttempts", p.MaxAttempts, "err", lastErr)

		if attempt == p.MaxAttempts {
			break
		}
		if err := Sleep(ctx, p.Delay(lastErr, attempt)); err != nil {
			return err
		}
	}

	return lastErr
}

// Delay returns the wait that follows a failed attempt.
func (p Policy) Delay(err error, attempt int) time.Duration {
	if p.IsCoolDown != nil && err != nil && p.IsCoolDown(err) {
		return p.CoolDown
	}
	delay := p.BaseDelay
	if p.Multiplier > 1 {
		for i := 1; i < attempt; i++ {
			delay = time.Duration(float64(delay) * p.Multiplier)
			if p.MaxDelay > 0 && delay >= p.MaxDelay {
				break
			}
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

func (p Policy) jitter() time.Duration {
	if p.JitterMax <= p.JitterMin {
		return p.JitterMin
	}
	// Uniform draws from [Min, d), so d is the upper bound, not the span.
	return (&jitterbug.Uniform{Min: p.JitterMin}).Jitter(p.JitterMax)
}

// Sleep waits for d or until ctx is done, whichever happens first.
func Sleep(ctx context.Context, d time.Duration) error {
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

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Policy.Do returns err itself.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
