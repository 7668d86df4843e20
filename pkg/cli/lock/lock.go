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

// Package lock provides mutual exclusion of sync runs across processes
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/dnote/readlater/pkg/cli/database"
	"github.com/dnote/readlater/pkg/clock"
	"github.com/dnote/readlater/pkg/log"
	"github.com/pkg/errors"
)

// ErrUnavailable is returned by TryAcquire when another context holds the lock
var ErrUnavailable = errors.New("lock is held by another context")

// ErrLost is returned by Held.Check once another context has taken the lock over
var ErrLost = errors.New("lock was taken over by another context")

// Lock modes
const (
	ModeAuto  = "auto"
	ModeFile  = "file"
	ModeLease = "lease"
	ModeNone  = "none"
)

// Held is an acquired lock
type Held struct {
	Name  string
	Owner string

	once    sync.Once
	release func() error
	err     error

	lostOnce sync.Once
	lost     chan struct{}
	// confirm, if set, verifies that the lock is still owned
	confirm  func() error
}

func newHeld(name, owner string, release func() error) *Held {
	return &Held{
		Name:    name,
		Owner:   owner,
		release: release,
		lost:    make(chan struct{}),
	}
}

func (h *Held) doRelease() error {
	h.once.Do(func() {
		h.err = h.release()
	})

	return h.err
}

func (h *Held) markLost() {
	h.lostOnce.Do(func() {
		close(h.lost)
	})
}

// Lost returns a channel that is closed once the lock is known to be taken
// over by another context
func (h *Held) Lost() <-chan struct{} {
	return h.lost
}

// Check returns ErrLost if the lock is no longer owned. Locks that cannot be
// taken over always pass.
func (h *Held) Check() error {
	select {
	case <-h.lost:
		return ErrLost
	default:
	}

	if h.confirm == nil {
		return nil
	}

	err := h.confirm()
	if errors.Cause(err) == ErrLost {
		h.markLost()
	}

	return err
}

// Coordinator grants exclusive, non-reentrant locks by name
type Coordinator interface {
	// TryAcquire returns a held lock or ErrUnavailable. It never waits longer
	// than the coordinator's configured bound.
	TryAcquire(ctx context.Context, name string) (*Held, error)
	// Release releases a held lock. Releasing twice is a no-op.
	Release(h *Held) error
	// HeldElsewhere reports whether the lock is currently held by anyone
	HeldElsewhere(ctx context.Context, name string) (bool, error)
	// CrossContext reports whether the lock excludes other processes. When
	// false, the coordinator only assumes sole ownership.
	CrossContext() bool
	// Mode returns the name of the mechanism in use
	Mode() string
}

// Options configures New
type Options struct {
	// Dir holds lock files
	Dir string
	// DB holds lease records
	DB    *database.DB
	Clock clock.Clock
	// LeaseTTL is the lifetime of a lease between renewals
	LeaseTTL time.Duration
}

// New returns the coordinator for the given mode. In auto mode it prefers file
// locks, then leases in the local store, then assumed sole ownership.
func New(mode string, opts Options) (Coordinator, error) {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	switch mode {
	case ModeFile:
		c := NewFile(opts.Dir)
		if err := c.probe(); err != nil {
			return nil, errors.Wrap(err, "checking file lock support")
		}
		return c, nil
	case ModeLease:
		if opts.DB == nil {
			return nil, errors.New("lease locks need a database")
		}
		return NewLease(opts.DB, opts.Clock, opts.LeaseTTL), nil
	case ModeNone:
		return NewSolo(), nil
	case ModeAuto, "":
		c := NewFile(opts.Dir)
		err := c.probe()
		if err == nil {
			return c, nil
		}

		l := log.WithFields(log.Fields{"dir": opts.Dir, "err": err})
		if opts.DB != nil {
			l.Warn("file locks unsupported, falling back to leases")
			return NewLease(opts.DB, opts.Clock, opts.LeaseTTL), nil
		}

		l.Warn("no cross-process lock available, assuming sole ownership")
		return NewSolo(), nil
	}

	return nil, errors.Errorf("unknown lock mode '%s'", mode)
}
