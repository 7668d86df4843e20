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

package keepalive

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dnote/readlater/pkg/assert"
	"github.com/dnote/readlater/pkg/clock"
	"github.com/pkg/errors"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatal("condition not met in time")
}

func TestGuardIdempotent(t *testing.T) {
	var calls int32
	g := New(time.Hour, func() error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	// stop before start is a no-op
	g.Stop()
	assert.Equal(t, g.Running(), false, "should not be running")

	g.Start()
	g.Start()
	waitFor(t, func() bool { return atomic.LoadInt32(&calls) >= 1 })

	assert.Equal(t, g.Running(), true, "should be running")

	g.Stop()
	g.Stop()

	assert.Equal(t, g.Running(), false, "should be stopped")
	// a single goroutine beat once; a duplicate timer would have beaten twice
	assert.Equal(t, atomic.LoadInt32(&calls), int32(1), "beat count mismatch")
	assert.Equal(t, g.Beats(), 1, "beats mismatch")
}

func TestGuardTicks(t *testing.T) {
	var calls int32
	g := New(5*time.Millisecond, func() error {
		atomic.AddInt32(&calls, 1)
		return errors.New("beats keep going after an error")
	})

	g.Start()
	waitFor(t, func() bool { return atomic.LoadInt32(&calls) >= 3 })
	g.Stop()

	stopped := atomic.LoadInt32(&calls)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, atomic.LoadInt32(&calls), stopped, "no beats after stop")

	// restart after stop
	g.Start()
	waitFor(t, func() bool { return atomic.LoadInt32(&calls) > stopped })
	g.Stop()
}

func TestHeartbeatFile(t *testing.T) {
	c := clock.NewMock()
	h := HeartbeatFile{Path: filepath.Join(t.TempDir(), "heartbeat"), Clock: c}

	last, err := h.Last()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, last.IsZero(), true, "no heartbeat yet")

	if err := h.Beat(); err != nil {
		t.Fatal(err)
	}

	last, err = h.Last()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, last.Equal(c.Now()), true, "heartbeat time mismatch")

	if err := h.Clear(); err != nil {
		t.Fatal(err)
	}
	if err := h.Clear(); err != nil {
		t.Fatal(err)
	}
	last, _ = h.Last()
	assert.Equal(t, last.IsZero(), true, "cleared heartbeat")
}
