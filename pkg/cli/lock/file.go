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

package lock

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const fileRetryDelay = 50 * time.Millisecond

// File is a Coordinator backed by advisory file locks
type File struct {
	Dir string
	// Wait bounds how long TryAcquire retries a contended lock. Zero tries once.
	Wait time.Duration
}

// NewFile returns a file lock coordinator storing lock files in dir
func NewFile(dir string) *File {
	return &File{Dir: dir}
}

func (c *File) path(name string) string {
	return filepath.Join(c.Dir, name+".lock")
}

// markerPath is the file a holder keeps locked for probes. Probing it instead
// of the lock file keeps probes out of the way of TryAcquire.
func (c *File) markerPath(name string) string {
	return filepath.Join(c.Dir, name+".held")
}

// probe checks that the directory supports advisory locks
func (c *File) probe() error {
	if c.Dir == "" {
		return errors.New("no lock directory")
	}
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return errors.Wrap(err, "creating lock directory")
	}

	fl := flock.New(filepath.Join(c.Dir, ".probe.lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return errors.Wrap(err, "locking probe file")
	}
	if ok {
		return fl.Unlock()
	}

	return nil
}

// TryAcquire implements Coordinator
func (c *File) TryAcquire(ctx context.Context, name string) (*Held, error) {
	fl := flock.New(c.path(name))

	var ok bool
	var err error
	if c.Wait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, c.Wait)
		ok, err = fl.TryLockContext(waitCtx, fileRetryDelay)
		cancel()

		// running out of wait time is contention, not failure
		if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
	} else {
		ok, err = fl.TryLock()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "locking '%s'", fl.Path())
	}
	if !ok {
		return nil, ErrUnavailable
	}

	// only the holder and momentary probes lock the marker, so this wait is short
	marker := flock.New(c.markerPath(name))
	if err := marker.Lock(); err != nil {
		fl.Unlock()
		return nil, errors.Wrapf(err, "locking '%s'", marker.Path())
	}

	return newHeld(name, uuid.NewString(), func() error {
		if err := marker.Unlock(); err != nil {
			fl.Unlock()
			return err
		}

		return fl.Unlock()
	}), nil
}

// Release implements Coordinator
func (c *File) Release(h *Held) error {
	if h == nil {
		return nil
	}

	return errors.Wrap(h.doRelease(), "unlocking")
}

// HeldElsewhere implements Coordinator. It probes the holder's marker file and
// never touches the lock file itself.
func (c *File) HeldElsewhere(ctx context.Context, name string) (bool, error) {
	path := c.markerPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return false, errors.Wrapf(err, "probing '%s'", path)
	}
	if !ok {
		return true, nil
	}

	return false, fl.Unlock()
}

// CrossContext implements Coordinator
func (c *File) CrossContext() bool { return true }

// Mode implements Coordinator
func (c *File) Mode() string { return ModeFile }
