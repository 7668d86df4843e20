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

package trigger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dnote/readlater/pkg/log"
	"github.com/pkg/errors"
	"github.com/radovskyb/watcher"
)

// Kind is the kind of a control message
type Kind string

// Control message kinds
const (
	KindRequest Kind = "request"
	KindPause   Kind = "pause"
	KindResume  Kind = "resume"
)

var kinds = map[Kind]bool{
	KindRequest: true,
	KindPause:   true,
	KindResume:  true,
}

// ParseKind returns the kind with the given name
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !kinds[k] {
		return "", errors.Errorf("unknown control message '%s'", s)
	}

	return k, nil
}

// DefaultPollInterval is how often the listener checks the control directory
const DefaultPollInterval = 500 * time.Millisecond

// Send drops a control message of the given kind in dir. The message is
// written under a hidden name and renamed so that listeners never see a
// partial file.
func Send(dir string, k Kind) error {
	if !kinds[k] {
		return errors.Errorf("unknown control message '%s'", k)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "creating control directory")
	}

	name := fmt.Sprintf("%s-%d", k, time.Now().UnixNano())
	tmp := filepath.Join(dir, "."+name)

	if err := os.WriteFile(tmp, nil, 0644); err != nil {
		return errors.Wrap(err, "writing control message")
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		return errors.Wrap(err, "publishing control message")
	}

	return nil
}

type message struct {
	kind Kind
	seq  int64
	path string
}

func parseMessage(dir, name string) (message, bool) {
	prefix, suffix, ok := strings.Cut(name, "-")
	if !ok {
		return message{}, false
	}

	k, err := ParseKind(prefix)
	if err != nil {
		return message{}, false
	}
	seq, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return message{}, false
	}

	return message{kind: k, seq: seq, path: filepath.Join(dir, name)}, true
}

// Listener watches a control directory and calls Handle for every message in
// the order they were sent. Handled messages are removed.
type Listener struct {
	Dir      string
	Interval time.Duration
	Handle   func(Kind)

	mu      sync.Mutex
	w       *watcher.Watcher
	done    chan struct{}
	handled int
}

// Start handles the messages already present and starts watching for new ones
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.w != nil {
		return nil
	}

	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return errors.Wrap(err, "creating control directory")
	}

	w := watcher.New()
	w.SetMaxEvents(1)
	w.IgnoreHiddenFiles(true)
	if err := w.Add(l.Dir); err != nil {
		return errors.Wrapf(err, "watching '%s'", l.Dir)
	}

	l.drain()

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	l.w = w
	l.done = make(chan struct{})

	go l.loop(w, l.done)
	go func() {
		if err := w.Start(interval); err != nil {
			log.ErrorWrap(err, "watching control directory")
		}
	}()
	w.Wait()

	return nil
}

func (l *Listener) loop(w *watcher.Watcher, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-w.Event:
			l.mu.Lock()
			l.drain()
			l.mu.Unlock()
		case err := <-w.Error:
			log.ErrorWrap(err, "watching control directory")
		case <-w.Closed:
			return
		}
	}
}

// drain handles every message in the directory. The caller holds l.mu.
func (l *Listener) drain() {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		log.ErrorWrap(err, "reading control directory")
		return
	}

	msgs := []message{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if m, ok := parseMessage(l.Dir, e.Name()); ok {
			msgs = append(msgs, m)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].seq < msgs[j].seq })

	for _, m := range msgs {
		if err := os.Remove(m.path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			log.ErrorWrap(err, "removing control message")
			continue
		}

		log.WithFields(log.Fields{"kind": string(m.kind)}).Debug("control message")
		l.handled++
		if l.Handle != nil {
			l.Handle(m.kind)
		}
	}
}

// Handled returns the number of messages handled so far
func (l *Listener) Handled() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.handled
}

// Close stops watching and waits for the listener goroutine to exit
func (l *Listener) Close() {
	l.mu.Lock()
	w, done := l.w, l.done
	l.w = nil
	l.mu.Unlock()

	if w == nil {
		return
	}

	w.Close()
	<-done
}
