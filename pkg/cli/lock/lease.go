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
	"sync"
	"time"

	"github.com/dnote/readlater/pkg/cli/database"
	"github.com/dnote/readlater/pkg/clock"
	"github.com/dnote/readlater/pkg/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DefaultLeaseTTL is the default lifetime of a lease between renewals
const DefaultLeaseTTL = 30 * time.Second

// Lease is a Coordinator backed by leased rows in the local store. A lease is
// renewed while held and can be taken over once it expires, so a holder that
// dies without releasing only blocks others for one TTL.
type Lease struct {
	db    *database.DB
	clock clock.Clock
	ttl   time.Duration

	mu       sync.Mutex
	renewals map[string]chan struct{}
	wg       sync.WaitGroup
}

// NewLease returns a lease coordinator
func NewLease(db *database.DB, c clock.Clock, ttl time.Duration) *Lease {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}

	return &Lease{
		db:       db,
		clock:    c,
		ttl:      ttl,
		renewals: map[string]chan struct{}{},
	}
}

func (c *Lease) expiry() int64 {
	return database.EncodeTime(c.clock.Now().Add(c.ttl))
}

// TryAcquire implements Coordinator. Acquisition is a single statement that
// either inserts the lease or takes over an expired one.
func (c *Lease) TryAcquire(ctx context.Context, name string) (*Held, error) {
	owner := uuid.NewString()
	now := database.EncodeTime(c.clock.Now())

	res, err := c.db.Exec(`INSERT INTO locks (name, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE locks.expires_at <= ?`, name, owner, c.expiry(), now)
	if err != nil {
		return nil, errors.Wrapf(err, "acquiring lease '%s'", name)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return nil, ErrUnavailable
	}

	stop := make(chan struct{})
	key := name + "/" + owner

	c.mu.Lock()
	c.renewals[key] = stop
	c.mu.Unlock()

	h := newHeld(name, owner, func() error {
		c.mu.Lock()
		if ch, ok := c.renewals[key]; ok {
			close(ch)
			delete(c.renewals, key)
		}
		c.mu.Unlock()

		_, err := c.db.Exec("DELETE FROM locks WHERE name = ? AND owner = ?", name, owner)
		return errors.Wrapf(err, "deleting lease '%s'", name)
	})
	h.confirm = func() error {
		return c.extend(name, owner)
	}

	c.wg.Add(1)
	go c.renew(h, stop)

	return h, nil
}

// extend pushes the expiry of a lease forward. It returns ErrLost if the lease
// now belongs to another owner.
func (c *Lease) extend(name, owner string) error {
	res, err := c.db.Exec("UPDATE locks SET expires_at = ? WHERE name = ? AND owner = ?", c.expiry(), name, owner)
	if err != nil {
		return errors.Wrapf(err, "renewing lease '%s'", name)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return ErrLost
	}

	return nil
}

func (c *Lease) renew(h *Held, stop chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			err := h.Check()
			if errors.Cause(err) == ErrLost {
				log.WithFields(log.Fields{"name": h.Name, "owner": h.Owner}).Warn("lease was taken over, stopping renewal")
				return
			}
			if err != nil {
				log.WithFields(log.Fields{"name": h.Name}).ErrorWrap(err, "renewing lease")
			}
		}
	}
}

// Release implements Coordinator
func (c *Lease) Release(h *Held) error {
	if h == nil {
		return nil
	}

	return h.doRelease()
}

// HeldElsewhere implements Coordinator
func (c *Lease) HeldElsewhere(ctx context.Context, name string) (bool, error) {
	var n int
	err := c.db.QueryRow("SELECT count(*) FROM locks WHERE name = ? AND expires_at > ?",
		name, database.EncodeTime(c.clock.Now())).Scan(&n)
	if err != nil {
		return false, errors.Wrapf(err, "probing lease '%s'", name)
	}

	return n > 0, nil
}

// CrossContext implements Coordinator
func (c *Lease) CrossContext() bool { return true }

// Mode implements Coordinator
func (c *Lease) Mode() string { return ModeLease }

// Wait blocks until every renewal goroutine has exited
func (c *Lease) Wait() {
	c.wg.Wait()
}
