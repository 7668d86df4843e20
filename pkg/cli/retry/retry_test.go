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

package retry

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/dnote/readlater/pkg/assert"
	"github.com/dnote/readlater/pkg/cli/client"
	"github.com/pkg/errors"
)

func httpErr(status int) error {
	return errors.Wrap(&client.HTTPError{StatusCode: status}, "listing bookmarks")
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		err      error
		expected Class
	}{
		{err: httpErr(http.StatusUnauthorized), expected: ClassPermanent},
		{err: httpErr(http.StatusForbidden), expected: ClassPermanent},
		{err: httpErr(http.StatusNotFound), expected: ClassPermanent},
		{err: httpErr(http.StatusUnprocessableEntity), expected: ClassPermanent},
		{err: httpErr(http.StatusRequestTimeout), expected: ClassTransient},
		{err: httpErr(http.StatusTooManyRequests), expected: ClassTransient},
		{err: httpErr(http.StatusInternalServerError), expected: ClassTransient},
		{err: httpErr(http.StatusBadGateway), expected: ClassTransient},
		{err: errors.Wrap(client.ErrMalformedResponse, "decoding"), expected: ClassPermanent},
		{err: errors.Wrap(client.ErrContentTypeMismatch, "checking"), expected: ClassPermanent},
		{err: errors.Wrap(context.DeadlineExceeded, "making http request"), expected: ClassTransient},
		{err: errors.Wrap(context.Canceled, "making http request"), expected: ClassPermanent},
		{err: MarkPersistence(errors.New("disk I/O error")), expected: ClassPersistence},
		{err: errors.Wrap(MarkPersistence(errors.New("disk I/O error")), "committing batch"), expected: ClassPersistence},
		{err: errors.New("connection reset by peer"), expected: ClassTransient},
	}

	for idx, tc := range testCases {
		t.Run(fmt.Sprintf("test case %d", idx), func(t *testing.T) {
			assert.Equal(t, Classify(tc.err), tc.expected, "class mismatch for "+tc.err.Error())
		})
	}
}

func TestIsAuth(t *testing.T) {
	assert.Equal(t, IsAuth(httpErr(http.StatusUnauthorized)), true, "401")
	assert.Equal(t, IsAuth(httpErr(http.StatusForbidden)), true, "403")
	assert.Equal(t, IsAuth(httpErr(http.StatusNotFound)), false, "404")
	assert.Equal(t, IsAuth(client.ErrNoToken), true, "no token")
	assert.Equal(t, IsAuth(errors.New("x")), false, "plain error")
}

func TestDecide(t *testing.T) {
	p := Policy{MaxAttempts: 4, BaseDelay: time.Second, MaxDelay: 5 * time.Second}

	testCases := []struct {
		err      error
		attempt  int
		expected Decision
	}{
		{err: httpErr(503), attempt: 1, expected: Decision{Retry: true, Delay: time.Second}},
		{err: httpErr(503), attempt: 2, expected: Decision{Retry: true, Delay: 2 * time.Second}},
		{err: httpErr(503), attempt: 3, expected: Decision{Retry: true, Delay: 4 * time.Second}},
		// attempts exhausted
		{err: httpErr(503), attempt: 4, expected: Decision{}},
		{err: httpErr(503), attempt: 9, expected: Decision{}},
		// permanent errors give up immediately
		{err: httpErr(401), attempt: 1, expected: Decision{}},
		{err: client.ErrMalformedResponse, attempt: 1, expected: Decision{}},
		{err: MarkPersistence(errors.New("locked")), attempt: 1, expected: Decision{}},
		// Retry-After raises the delay but is capped
		{err: &client.HTTPError{StatusCode: 429, RetryAfter: 3 * time.Second}, attempt: 1, expected: Decision{Retry: true, Delay: 3 * time.Second}},
		{err: &client.HTTPError{StatusCode: 429, RetryAfter: time.Hour}, attempt: 1, expected: Decision{Retry: true, Delay: 5 * time.Second}},
		{err: nil, attempt: 1, expected: Decision{}},
	}

	for idx, tc := range testCases {
		t.Run(fmt.Sprintf("test case %d", idx), func(t *testing.T) {
			assert.Equal(t, p.Decide(tc.err, tc.attempt), tc.expected, "decision mismatch")
		})
	}
}

func TestBackoffCap(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: time.Minute}

	assert.Equal(t, p.Backoff(1), time.Second, "attempt 1")
	assert.Equal(t, p.Backoff(6), 32*time.Second, "attempt 6")
	assert.Equal(t, p.Backoff(7), time.Minute, "attempt 7")
	assert.Equal(t, p.Backoff(60), time.Minute, "attempt 60")
}

func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestRetrierDo(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		var delays []time.Duration
		var failures []int

		r := Retrier{
			Policy: Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Minute},
			OnFailure: func(attempt int, err error) error {
				failures = append(failures, attempt)
				return nil
			},
			Sleep: noSleep(&delays),
		}

		calls := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return httpErr(502)
			}
			return nil
		})

		assert.Equal(t, err, nil, "error mismatch")
		assert.Equal(t, calls, 3, "call count mismatch")
		assert.DeepEqual(t, failures, []int{1, 2}, "failure attempts mismatch")
		assert.DeepEqual(t, delays, []time.Duration{time.Second, 2 * time.Second}, "delays mismatch")
	})

	t.Run("gives up on permanent failure", func(t *testing.T) {
		var delays []time.Duration
		r := Retrier{Policy: DefaultPolicy(), Sleep: noSleep(&delays)}

		calls := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return httpErr(401)
		})

		assert.Equal(t, IsAuth(err), true, "error should be the auth failure")
		assert.Equal(t, calls, 1, "call count mismatch")
		assert.Equal(t, len(delays), 0, "should not sleep")
	})

	t.Run("exhausts attempts and returns the last error", func(t *testing.T) {
		var delays []time.Duration
		r := Retrier{Policy: Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, Sleep: noSleep(&delays)}

		calls := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return httpErr(500 + calls)
		})

		var hErr *client.HTTPError
		if !errors.As(err, &hErr) {
			t.Fatalf("expected HTTPError, got %v", err)
		}
		assert.Equal(t, hErr.StatusCode, 503, "last error mismatch")
		assert.Equal(t, calls, 3, "call count mismatch")
	})

	t.Run("counts attempts made before a restart", func(t *testing.T) {
		var delays []time.Duration
		r := Retrier{Policy: Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Minute}, Start: 3, Sleep: noSleep(&delays)}

		calls := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return httpErr(503)
		})

		assert.NotEqual(t, err, nil, "should fail")
		assert.Equal(t, calls, 2, "call count mismatch")
		assert.DeepEqual(t, delays, []time.Duration{8 * time.Second}, "delays mismatch")
	})

	t.Run("OnFailure error aborts", func(t *testing.T) {
		var delays []time.Duration
		stop := errors.New("saving cursor")
		r := Retrier{
			Policy:    DefaultPolicy(),
			OnFailure: func(int, error) error { return stop },
			Sleep:     noSleep(&delays),
		}

		err := r.Do(context.Background(), func(ctx context.Context) error { return httpErr(503) })
		assert.Equal(t, err, stop, "error mismatch")
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		r := Retrier{Policy: Policy{MaxAttempts: 5, BaseDelay: time.Hour}}
		err := r.Do(ctx, func(ctx context.Context) error { return httpErr(503) })

		assert.Equal(t, errors.Is(err, context.Canceled), true, "should be cancelled")
		assert.Equal(t, Classify(err), ClassPermanent, "cancellation should be permanent")
	})
}

func TestIsFatal(t *testing.T) {
	assert.Equal(t, IsFatal(nil), false, "nil")
	assert.Equal(t, IsFatal(httpErr(401)), true, "auth")
	assert.Equal(t, IsFatal(MarkPersistence(errors.New("readonly database"))), true, "persistence")
	assert.Equal(t, IsFatal(errors.Wrap(context.Canceled, "downloading")), true, "cancelled")
	assert.Equal(t, IsFatal(httpErr(404)), false, "missing item")
	assert.Equal(t, IsFatal(httpErr(503)), false, "transient")
	assert.Equal(t, IsFatal(client.ErrMalformedResponse), false, "malformed item")
}
