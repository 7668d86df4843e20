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

// Package engine runs sync sessions: it takes the sync lock, resumes from the
// persisted cursor and drives the phases in order.
package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dnote/readlater/pkg/cli/assets"
	"github.com/dnote/readlater/pkg/cli/client"
	"github.com/dnote/readlater/pkg/cli/database"
	"github.com/dnote/readlater/pkg/cli/keepalive"
	"github.com/dnote/readlater/pkg/cli/lock"
	"github.com/dnote/readlater/pkg/cli/progress"
	"github.com/dnote/readlater/pkg/cli/readstatus"
	"github.com/dnote/readlater/pkg/cli/retry"
	"github.com/dnote/readlater/pkg/clock"
	"github.com/dnote/readlater/pkg/log"
	"github.com/pkg/errors"
)

// ErrSyncInProgress is returned by Run when this scheduler already runs a session
var ErrSyncInProgress = errors.New("a sync is already in progress")

const (
	// DefaultLockName is the name of the sync lock
	DefaultLockName = "readlater-sync"
	// MaxPageSize is the largest page requested from the remote
	MaxPageSize = 100

	// SystemLastSummary is the system key holding the summary of the last complete run
	SystemLastSummary = "last_sync_summary"
)

// Remote is the remote service consumed by the engine
type Remote interface {
	ListUnarchived(ctx context.Context, opts client.ListOptions) (client.Page, error)
	ListArchived(ctx context.Context, opts client.ListOptions) (client.Page, error)
	assets.Remote
	readstatus.Remote
}

// Params configures a Scheduler
type Params struct {
	DB       *database.DB
	Remote   Remote
	Locks    lock.Coordinator
	LockName string
	Reporter *progress.Reporter
	Clock    clock.Clock
	Policy   retry.Policy

	PageSize    int
	AssetFanout int
	AssetTypes  []string

	KeepaliveInterval time.Duration
	// Heartbeat is called on every keepalive beat in addition to logging
	Heartbeat func() error

	Backgroundable  bool
	PeriodicTrigger bool

	// Sleep waits between retries. It defaults to retry.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Scheduler runs at most one sync session at a time
type Scheduler struct {
	p          Params
	guard      *keepalive.Guard
	downloader *assets.Downloader
	uploader   *readstatus.Uploader

	mu      sync.Mutex
	active  bool
	held    *lock.Held
	sess    *session
	m       machine
	pauseCh chan struct{}
	wg      sync.WaitGroup
}

// New returns a Scheduler
func New(p Params) *Scheduler {
	if p.Clock == nil {
		p.Clock = clock.New()
	}
	if p.LockName == "" {
		p.LockName = DefaultLockName
	}
	if p.PageSize < 1 || p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	if p.Policy.MaxAttempts == 0 {
		p.Policy = retry.DefaultPolicy()
	}
	if p.Reporter == nil {
		p.Reporter = progress.New(p.Clock, progress.DefaultBuffer)
	}

	s := &Scheduler{
		p:    p,
		sess: newSession(time.Time{}),
	}

	itemRetrier := retry.Retrier{Policy: p.Policy, Sleep: p.Sleep}
	s.downloader = &assets.Downloader{
		DB:         p.DB,
		Remote:     p.Remote,
		Clock:      p.Clock,
		Retrier:    itemRetrier,
		Fanout:     p.AssetFanout,
		AssetTypes: p.AssetTypes,
		IndexLimit: p.PageSize,
	}
	s.uploader = &readstatus.Uploader{
		DB:      p.DB,
		Remote:  p.Remote,
		Retrier: itemRetrier,
	}
	s.guard = keepalive.New(p.KeepaliveInterval, s.beat)

	return s
}

// Reporter returns the reporter that observers subscribe to
func (s *Scheduler) Reporter() *progress.Reporter {
	return s.p.Reporter
}

// Capabilities returns the host capabilities in use
func (s *Scheduler) Capabilities() Capabilities {
	ret := Capabilities{
		Backgroundable:  s.p.Backgroundable,
		PeriodicTrigger: s.p.PeriodicTrigger,
	}
	if s.p.Locks != nil {
		ret.CrossContextLock = s.p.Locks.CrossContext()
		ret.LockMode = s.p.Locks.Mode()
	}

	return ret
}

// Snapshot returns a copy of the current session
func (s *Scheduler) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sess.snapshot()
}

// Active returns true while a session runs in this scheduler
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active
}

// RunningElsewhere reports whether another context currently holds the sync lock
func (s *Scheduler) RunningElsewhere(ctx context.Context) (bool, error) {
	if s.Active() {
		return false, nil
	}

	return s.p.Locks.HeldElsewhere(ctx, s.p.LockName)
}

func (s *Scheduler) beat() error {
	snap := s.Snapshot()

	log.WithFields(log.Fields{
		"state":   snap.State.String(),
		"current": snap.Current,
		"total":   snap.Total,
	}).Debug("sync alive")

	if s.p.Heartbeat != nil {
		return s.p.Heartbeat()
	}

	return nil
}

// RunOptions are options of a single run
type RunOptions struct {
	// Full ignores the incremental filter and fetches every bookmark
	Full bool
}

// Run runs a session to completion and returns its outcome. It returns
// ErrSyncInProgress if this scheduler is already running one.
func (s *Scheduler) Run(ctx context.Context, opts RunOptions) (Outcome, error) {
	if !s.begin() {
		return Outcome{}, ErrSyncInProgress
	}

	return s.execute(ctx, opts)
}

// RequestSync starts a session in the background. It returns false if one is
// already running in this scheduler.
func (s *Scheduler) RequestSync(ctx context.Context) bool {
	if !s.begin() {
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		outcome, err := s.execute(ctx, RunOptions{})
		if err != nil {
			log.ErrorWrap(err, "background sync failed")
			return
		}

		log.WithFields(log.Fields{
			"lock_unavailable": outcome.LockUnavailable,
			"processed":        outcome.Summary.Processed,
			"duration":         outcome.Summary.Duration,
		}).Info("background sync finished")
	}()

	return true
}

// Wait blocks until background sessions started by RequestSync have ended
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Pause asks the running session to stop before its next batch. The lock stays
// held and the cursor is kept. It returns false if there is nothing to pause.
func (s *Scheduler) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || s.pauseCh != nil {
		return false
	}
	s.pauseCh = make(chan struct{})

	return true
}

// Resume lets a paused session continue where it stopped
func (s *Scheduler) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pauseCh == nil {
		return false
	}
	close(s.pauseCh)
	s.pauseCh = nil

	return true
}

func (s *Scheduler) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return false
	}

	s.active = true
	s.sess = newSession(s.p.Clock.Now())
	s.m = machine{state: StateIdle}

	return true
}

func (s *Scheduler) end() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = false
	s.held = nil
	s.pauseCh = nil
}

func (s *Scheduler) setHeld(h *lock.Held) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.held = h
}

// checkLock fails with lock.ErrLost once another context has taken the sync
// lock over, so that a run resumed after a long suspension stops writing.
func (s *Scheduler) checkLock() error {
	s.mu.Lock()
	h := s.held
	s.mu.Unlock()

	if h == nil {
		return nil
	}

	if err := h.Check(); err != nil {
		if errors.Cause(err) == lock.ErrLost {
			return errors.Wrap(err, "checking sync lock")
		}
		return retry.MarkPersistence(errors.Wrap(err, "checking sync lock"))
	}

	return nil
}

// transition moves the state machine and tells observers
func (s *Scheduler) transition(next State) error {
	s.mu.Lock()
	if err := s.m.to(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.sess.state = next
	if phase, ok := phaseOf(next); ok && phase != s.sess.phase {
		s.sess.phase = phase
		s.sess.current = 0
		s.sess.total = 0
	}
	s.mu.Unlock()

	log.WithFields(log.Fields{"state": next.String()}).Debug("sync state")
	s.p.Reporter.ReportState(next.String())

	return nil
}

func (s *Scheduler) state() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.m.state
}

func (s *Scheduler) setProgress(current, total int) {
	s.mu.Lock()
	s.sess.current = current
	s.sess.total = total
	phase := s.sess.phase
	s.mu.Unlock()

	s.p.Reporter.Report(string(phase), current, total)
}

func (s *Scheduler) touch(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sess.touch(id)
}

// checkpoint runs between batches. If a pause was requested it parks the session
// until Resume or cancellation. The lock is confirmed before every batch.
func (s *Scheduler) checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	ch := s.pauseCh
	held := s.held
	s.mu.Unlock()

	if ch == nil {
		return s.checkLock()
	}

	var lost <-chan struct{}
	if held != nil {
		lost = held.Lost()
	}

	resumeTo := s.state()
	if err := s.transition(StatePaused); err != nil {
		return err
	}
	s.guard.Stop()
	log.WithFields(log.Fields{"state": resumeTo.String()}).Info("sync paused")

	select {
	case <-ch:
	case <-lost:
		return errors.Wrap(lock.ErrLost, "waiting for resume")
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := s.checkLock(); err != nil {
		return err
	}
	if err := s.transition(resumeTo); err != nil {
		return err
	}
	s.guard.Start()
	log.WithFields(log.Fields{"state": resumeTo.String()}).Info("sync resumed")

	return nil
}

// run is the bookkeeping of one session
type run struct {
	cursor  database.Cursor
	summary Summary
}

func (s *Scheduler) execute(ctx context.Context, opts RunOptions) (Outcome, error) {
	defer s.end()

	var ret Outcome
	start := s.p.Clock.Now()

	if err := s.transition(StateAcquiring); err != nil {
		return ret, err
	}

	held, err := s.p.Locks.TryAcquire(ctx, s.p.LockName)
	if errors.Cause(err) == lock.ErrUnavailable {
		log.WithFields(log.Fields{"lock": s.p.LockName}).Info("sync is running in another context")
		s.p.Reporter.ReportLockUnavailable()

		ret.LockUnavailable = true
		return ret, s.transition(StateIdle)
	} else if err != nil {
		s.fail(&run{}, errors.Wrap(err, "acquiring sync lock"), false)
		return ret, errors.Wrap(err, "acquiring sync lock")
	}
	defer func() {
		if err := s.p.Locks.Release(held); err != nil {
			log.ErrorWrap(err, "releasing sync lock")
		}
	}()
	s.setHeld(held)

	caps := s.Capabilities()
	log.WithFields(log.Fields{
		"cross_context_lock": caps.CrossContextLock,
		"lock_mode":          caps.LockMode,
		"backgroundable":     caps.Backgroundable,
		"periodic_trigger":   caps.PeriodicTrigger,
	}).Debug("starting sync")

	r := &run{}
	if err := s.restore(r, opts); err != nil {
		s.fail(r, err, false)
		return ret, err
	}

	s.guard.Start()
	defer s.guard.Stop()

	phases := []struct {
		state State
		fn    func(context.Context, *run) error
	}{
		{StateBookmarks, s.syncUnarchived},
		{StateArchivedBookmarks, s.syncArchived},
		{StateAssets, s.syncAssets},
		{StateReadStatus, s.syncReadStatus},
	}

	for _, ph := range phases {
		if err := s.transition(ph.state); err != nil {
			s.fail(r, err, true)
			return ret, err
		}

		if err := ph.fn(ctx, r); err != nil {
			r.summary.Duration = s.p.Clock.Now().Sub(start)
			ret.Summary = s.summary(r)
			s.fail(r, err, ownsCursor(err))
			return ret, err
		}
	}

	r.summary.Duration = s.p.Clock.Now().Sub(start)
	ret.Summary = s.summary(r)

	if err := s.checkLock(); err != nil {
		s.fail(r, err, ownsCursor(err))
		return ret, err
	}
	if err := s.complete(r, ret.Summary); err != nil {
		s.fail(r, err, true)
		return ret, err
	}

	return ret, nil
}

func (s *Scheduler) summary(r *run) Summary {
	ret := r.summary

	s.mu.Lock()
	ret.Touched = s.sess.touchedIDs()
	s.mu.Unlock()

	return ret
}

// restore reads the cursor and decides the filter of the run. An interrupted
// run keeps its filter so that its persisted offsets stay meaningful.
func (s *Scheduler) restore(r *run, opts RunOptions) error {
	c, err := database.GetCursor(s.p.DB)
	if err != nil {
		return retry.MarkPersistence(err)
	}

	now := s.p.Clock.Now()
	l := log.WithFields(log.Fields{
		"unarchived_offset": c.UnarchivedOffset,
		"archived_offset":   c.ArchivedOffset,
		"retry_count":       c.RetryCount,
	})

	if c.RunActive && !opts.Full {
		l.Info("resuming interrupted sync")
	} else {
		full := opts.Full || c.LastSyncAt.IsZero() || !clock.SameDay(c.LastSyncAt, now)

		c.RunActive = true
		c.RunFull = full
		c.RunStartedAt = now
		c.RunModifiedSince = time.Time{}
		if !full {
			c.RunModifiedSince = c.LastSyncAt
		}
		if opts.Full {
			c.UnarchivedOffset = 0
			c.ArchivedOffset = 0
		}
	}

	if err := c.RefreshCounts(s.p.DB); err != nil {
		return retry.MarkPersistence(err)
	}
	if err := c.Save(s.p.DB); err != nil {
		return retry.MarkPersistence(err)
	}

	r.cursor = c
	r.summary.Full = c.RunFull

	s.mu.Lock()
	s.sess.full = c.RunFull
	s.mu.Unlock()

	return nil
}

// complete resets the cursor for the next run
func (s *Scheduler) complete(r *run, summary Summary) error {
	c := r.cursor
	c.UnarchivedOffset = 0
	c.ArchivedOffset = 0
	c.RetryCount = 0
	c.LastSyncError = ""
	c.LastSyncAt = c.RunStartedAt
	c.RunActive = false
	c.RunFull = false
	c.RunModifiedSince = time.Time{}
	c.RunStartedAt = time.Time{}

	b, err := json.Marshal(summary)
	if err != nil {
		return errors.Wrap(err, "marshalling summary")
	}

	err = s.p.DB.WithTx(func(tx *database.DB) error {
		if err := c.RefreshCounts(tx); err != nil {
			return err
		}
		if err := c.Save(tx); err != nil {
			return err
		}

		return database.UpsertSystem(tx, SystemLastSummary, string(b))
	})
	if err != nil {
		return retry.MarkPersistence(errors.Wrap(err, "completing sync"))
	}
	r.cursor = c

	if err := s.transition(StateComplete); err != nil {
		return err
	}
	s.guard.Stop()

	log.WithFields(log.Fields{
		"processed":         summary.Processed,
		"inserted":          summary.Inserted,
		"updated":           summary.Updated,
		"assets_downloaded": summary.AssetsDownloaded,
		"assets_failed":     summary.AssetsFailed,
		"read_uploaded":     summary.ReadUploaded,
		"read_failed":       summary.ReadFailed,
		"duration":          summary.Duration,
	}).Info("sync complete")
	s.p.Reporter.ReportComplete(true, summary.Processed, summary.Touched)

	return s.transition(StateIdle)
}

// ownsCursor reports whether a run that failed with err may still write the
// cursor. A run that lost the lock must leave it to the new owner.
func ownsCursor(err error) bool {
	return errors.Cause(err) != lock.ErrLost
}

// fail ends the session after an unrecoverable error. Offsets already persisted
// are kept so that the next run resumes from the last committed batch.
func (s *Scheduler) fail(r *run, cause error, persist bool) {
	l := log.WithFields(log.Fields{
		"class": retry.Classify(cause).String(),
		"state": s.state().String(),
	})
	l.ErrorWrap(cause, "sync failed")

	if persist {
		c, err := database.GetCursor(s.p.DB)
		if err == nil {
			c.RetryCount = 0
			c.LastSyncError = cause.Error()
			err = c.Save(s.p.DB)
		}
		if err != nil {
			log.ErrorWrap(err, "recording sync failure")
		}
	}

	if err := s.transition(StateFailed); err != nil {
		log.ErrorWrap(err, "entering failed state")
	}
	s.guard.Stop()

	s.p.Reporter.ReportError(cause, true)

	if err := s.transition(StateIdle); err != nil {
		log.ErrorWrap(err, "entering idle state")
	}
}
