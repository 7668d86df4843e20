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

// Package keepalive signals that a sync is still making progress while it runs
package keepalive

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dnote/readlater/pkg/clock"
	"github.com/dnote/readlater/pkg/log"
	"github.com/pkg/errors"
)

// DefaultInterval is the default time between beats
const DefaultInterval = 20 * time.Second

// Guard periodically calls a beat function while started. Start and Stop are
// idempotent.
type Guard struct {
	interval time.Duration
	beat     func() error

	mu    sync.Mutex
	stop  chan struct{}
	done  chan struct{}
	beats int
}

// New returns a stopped Guard that calls beat every interval once started
func New(interval time.Duration, beat func() error) *Guard {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Guard{
		interval: interval,
		beat:     beat,
	}
}

// Start beats once immediately and then on every interval until Stop
func (g *Guard) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stop != nil {
		return
	}

	g.stop = make(chan struct{})
	g.done = make(chan struct{})

	go g.loop(g.stop, g.done)
}

func (g *Guard) loop(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.doBeat()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			g.doBeat()
		}
	}
}

func (g *Guard) doBeat() {
	g.mu.Lock()
	g.beats++
	n := g.beats
	g.mu.Unlock()

	if g.beat == nil {
		return
	}

	if err := g.beat(); err != nil {
		log.WithFields(log.Fields{"beat": n}).ErrorWrap(err, "keepalive beat")
	}
}

// Stop stops beating and waits for the beat goroutine to exit. It is a no-op
// when the guard is not running.
func (g *Guard) Stop() {
	g.mu.Lock()
	stop, done := g.stop, g.done
	g.stop, g.done = nil, nil
	g.mu.Unlock()

	if stop == nil {
		return
	}

	close(stop)
	<-done
}

// Running returns true if the guard is started
func (g *Guard) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.stop != nil
}

// Beats returns the number of beats so far
func (g *Guard) Beats() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.beats
}

// HeartbeatFile records the time of the latest beat in a file, so that other
// processes can tell whether a sync is alive.
type HeartbeatFile struct {
	Path  string
	Clock clock.Clock
}

// Beat writes the current time to the file
func (h HeartbeatFile) Beat() error {
	now := h.Clock.Now().UTC()

	tmp := h.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(now.Format(time.RFC3339Nano)), 0644); err != nil {
		return errors.Wrap(err, "writing heartbeat")
	}
	if err := os.Rename(tmp, h.Path); err != nil {
		return errors.Wrap(err, "replacing heartbeat")
	}

	log.WithFields(log.Fields{"path": filepath.Base(h.Path)}).Debug("heartbeat")

	return nil
}

// Last returns the time of the latest beat, or the zero time if there was none
func (h HeartbeatFile) Last() (time.Time, error) {
	b, err := os.ReadFile(h.Path)
	if os.IsNotExist(err) {
		return time.Time{}, nil
	} else if err != nil {
		return time.Time{}, errors.Wrap(err, "reading heartbeat")
	}

	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(b)))
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parsing heartbeat")
	}

	return t, nil
}

// Clear removes the heartbeat file
func (h HeartbeatFile) Clear() error {
	if err := os.Remove(h.Path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing heartbeat")
	}

	return nil
}
