/* Copyright 2025 Dnote Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package retry decides whether a failed remote call is worth another attempt
package retry

import (
	"context"
	"net/http"
	"time"

	"github.com/dnote/readlater/pkg/cli/client"
	"github.com/matryer/try"
	"github.com/pkg/errors"
)

// Class is the category of a failure
type Class int

const (
	// ClassTransient is a failure that may go away on its own, such as a timeout
	// or a 5xx response
	ClassTransient Class = iota
	// ClassPermanent is a failure that will not go away by retrying, such as an
	// authentication failure or a malformed response
	ClassPermanent
	// ClassPersistence is a failure to write to the local store
	ClassPersistence
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassPersistence:
		return "persistence"
	}

	return "unknown"
}

// MaxAttemptsLimit is the largest supported MaxAttempts
const MaxAttemptsLimit = 10

func init() {
	try.MaxRetries = MaxAttemptsLimit
}

type persistenceError struct {
	err error
}

func (e *persistenceError) Error() string { return e.err.Error() }
func (e *persistenceError) Unwrap() error { return e.err }
func (e *persistenceError) Cause() error  { return e.err }

// MarkPersistence marks err as a local store failure
func MarkPersistence(err error) error {
	if err == nil {
		return nil
	}

	return &persistenceError{err: err}
}

// Classify returns the class of the given error
func Classify(err error) Class {
	var pErr *persistenceError
	if errors.As(err, &pErr) {
		return ClassPersistence
	}

	if errors.Is(err, context.Canceled) {
		return ClassPermanent
	}

	var httpErr *client.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusRequestTimeout,
			httpErr.StatusCode == http.StatusTooManyRequests,
			httpErr.StatusCode >= 500:
			return ClassTransient
		default:
			return ClassPermanent
		}
	}

	if errors.Is(err, client.ErrMalformedResponse) ||
		errors.Is(err, client.ErrContentTypeMismatch) ||
		errors.Is(err, client.ErrNoToken) {
		return ClassPermanent
	}

	// timeouts, connection failures and anything unrecognized
	return ClassTransient
}

// IsAuth returns true if err is an authentication or authorization failure
func IsAuth(err error) bool {
	if errors.Is(err, client.ErrNoToken) {
		return true
	}

	var httpErr *client.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsAuth()
	}

	return false
}

// IsFatal returns true if err must abort a whole run even when it happened while
// syncing a single item: authentication, local store and cancellation failures.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	return IsAuth(err) || Classify(err) == ClassPersistence || errors.Is(err, context.Canceled)
}

// Policy is an exponential backoff policy with a bounded number of attempts
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy returns the default policy
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
	}
}

// Decision is the outcome of Decide
type Decision struct {
	Retry bool
	Delay time.Duration
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	if p.MaxAttempts > MaxAttemptsLimit {
		return MaxAttemptsLimit
	}

	return p.MaxAttempts
}

// Backoff returns the delay before the attempt following the given one
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}

	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}

	return d
}

// Decide returns whether to retry after the given failed attempt, which counts
// from 1, and how long to wait before doing so. Only transient failures are
// retried.
func (p Policy) Decide(err error, attempt int) Decision {
	if err == nil || Classify(err) != ClassTransient {
		return Decision{}
	}
	if attempt >= p.maxAttempts() {
		return Decision{}
	}

	delay := p.Backoff(attempt)

	var httpErr *client.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > delay {
		delay = httpErr.RetryAfter
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return Decision{Retry: true, Delay: delay}
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retrier runs a call under a Policy
type Retrier struct {
	Policy Policy
	// Start is the number of attempts already made before this Retrier ran,
	// for instance by a process that crashed during backoff.
	Start int
	// OnFailure is called after every failed attempt with the attempt number.
	// An error from it aborts the retries.
	OnFailure func(attempt int, err error) error
	// Sleep waits between attempts. It defaults to the package Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do calls fn until it succeeds or the policy gives up, returning the last error
func (r Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	sleep := r.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	err := try.Do(func(n int) (bool, error) {
		err := fn(ctx)
		if err == nil {
			return false, nil
		}
		lastErr = err

		attempt := r.Start + n
		if r.OnFailure != nil {
			if fErr := r.OnFailure(attempt, err); fErr != nil {
				return false, fErr
			}
		}

		d := r.Policy.Decide(err, attempt)
		if !d.Retry {
			return false, err
		}

		if sErr := sleep(ctx, d.Delay); sErr != nil {
			return false, errors.Wrapf(sErr, "waiting to retry after: %v", err)
		}

		return true, err
	})
	if try.IsMaxRetries(err) {
		return lastErr
	}

	return err
}
