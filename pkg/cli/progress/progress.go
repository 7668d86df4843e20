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

// Package progress fans sync events out to observers
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/dnote/readlater/pkg/clock"
	"github.com/dnote/readlater/pkg/log"
)

// Kind is the type of a message
type Kind string

// Message kinds
const (
	KindProgress        Kind = "SYNC_PROGRESS"
	KindState           Kind = "SYNC_STATE"
	KindError           Kind = "SYNC_ERROR"
	KindComplete        Kind = "SYNC_COMPLETE"
	KindLockUnavailable Kind = "LOCK_UNAVAILABLE"
)

// Message is an event published to observers. Which fields are set depends on Kind.
type Message struct {
	Kind Kind
	At   time.Time

	// SYNC_PROGRESS
	Phase   string
	Current int
	Total   int

	// SYNC_STATE
	State string

	// SYNC_ERROR
	Error string
	// Retained reports whether progress made before the error was kept
	Retained bool

	// SYNC_COMPLETE
	Success   bool
	Processed int
	Touched   []int64
}

func (m Message) String() string {
	switch m.Kind {
	case KindProgress:
		return fmt.Sprintf("%s %s %d/%d", m.Kind, m.Phase, m.Current, m.Total)
	case KindState:
		return fmt.Sprintf("%s %s", m.Kind, m.State)
	case KindError:
		return fmt.Sprintf("%s %s", m.Kind, m.Error)
	case KindComplete:
		return fmt.Sprintf("%s success=%t processed=%d", m.Kind, m.Success, m.Processed)
	}

	return string(m.Kind)
}

// Observer receives messages. It runs on its own goroutine and may be slow, but
// progress messages are dropped while its buffer is full.
type Observer func(Message)

const (
	// DefaultBuffer is the number of messages queued per observer
	DefaultBuffer = 64
	// terminalReserve is the room kept in every queue for terminal messages
	terminalReserve = 8
)

// terminal reports whether a message ends a run. Terminal messages may use the
// reserved room of a queue that progress messages have filled.
func (k Kind) terminal() bool {
	return k == KindError || k == KindComplete || k == KindLockUnavailable
}

type subscriber struct {
	id int
	ch chan Message
}

// Reporter publishes messages to subscribed observers without ever blocking the publisher
type Reporter struct {
	clock  clock.Clock
	buffer int

	mu      sync.Mutex
	subs    map[int]*subscriber
	nextID  int
	closed  bool
	dropped int
	wg      sync.WaitGroup
}

// New returns a Reporter that queues up to buffer messages per observer
func New(c clock.Clock, buffer int) *Reporter {
	if buffer < 1 {
		buffer = DefaultBuffer
	}

	return &Reporter{
		clock:  c,
		buffer: buffer,
		subs:   map[int]*subscriber{},
	}
}

// Subscribe registers an observer and returns a function that unregisters it
func (r *Reporter) Subscribe(o Observer) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return func() {}
	}

	r.nextID++
	s := &subscriber{id: r.nextID, ch: make(chan Message, r.buffer+terminalReserve)}
	r.subs[s.id] = s

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		for m := range s.ch {
			deliver(o, m)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(s.id) })
	}
}

func (r *Reporter) remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.subs[id]; ok {
		delete(r.subs, id)
		close(s.ch)
	}
}

func deliver(o Observer, m Message) {
	defer func() {
		if p := recover(); p != nil {
			log.WithFields(log.Fields{
				"kind":  string(m.Kind),
				"panic": fmt.Sprintf("%v", p),
			}).Warn("progress observer panicked")
		}
	}()

	o(m)
}

func (r *Reporter) publish(m Message) {
	m.At = r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	for _, s := range r.subs {
		// publishers hold r.mu, so the queue can only shrink under this check
		if !m.Kind.terminal() && len(s.ch) >= r.buffer {
			r.drop(s, m)
			continue
		}

		select {
		case s.ch <- m:
		default:
			r.drop(s, m)
		}
	}
}

func (r *Reporter) drop(s *subscriber, m Message) {
	r.dropped++

	l := log.WithFields(log.Fields{
		"kind":       string(m.Kind),
		"subscriber": s.id,
	})
	if m.Kind.terminal() {
		l.Warn("dropped terminal message for a slow observer")
	} else {
		l.Debug("dropped progress message for a slow observer")
	}
}

// Report publishes the progress of a phase
func (r *Reporter) Report(phase string, current, total int) {
	r.publish(Message{Kind: KindProgress, Phase: phase, Current: current, Total: total})
}

// ReportState publishes a state transition
func (r *Reporter) ReportState(state string) {
	r.publish(Message{Kind: KindState, State: state})
}

// ReportError publishes a terminal error
func (r *Reporter) ReportError(err error, retained bool) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}

	r.publish(Message{Kind: KindError, Error: msg, Retained: retained})
}

// ReportComplete publishes the end of a run
func (r *Reporter) ReportComplete(success bool, processed int, touched []int64) {
	ids := make([]int64, len(touched))
	copy(ids, touched)

	r.publish(Message{Kind: KindComplete, Success: success, Processed: processed, Touched: ids})
}

// ReportLockUnavailable publishes that a sync is running in another context
func (r *Reporter) ReportLockUnavailable() {
	r.publish(Message{Kind: KindLockUnavailable})
}

// Dropped returns the number of messages dropped so far
func (r *Reporter) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.dropped
}

// Close unregisters every observer and waits for queued messages to be delivered
func (r *Reporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for id, s := range r.subs {
		delete(r.subs, id)
		close(s.ch)
	}
	r.mu.Unlock()

	r.wg.Wait()
}
