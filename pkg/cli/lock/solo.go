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

	"github.com/google/uuid"
)

// Solo is a Coordinator for hosts without a cross-process lock. It excludes
// concurrent runs within the process only.
type Solo struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewSolo returns a process-local coordinator
func NewSolo() *Solo {
	return &Solo{held: map[string]bool{}}
}

// TryAcquire implements Coordinator
func (c *Solo) TryAcquire(ctx context.Context, name string) (*Held, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.held[name] {
		return nil, ErrUnavailable
	}
	c.held[name] = true

	return newHeld(name, uuid.NewString(), func() error {
		c.mu.Lock()
		defer c.mu.Unlock()

		delete(c.held, name)
		return nil
	}), nil
}

// Release implements Coordinator
func (c *Solo) Release(h *Held) error {
	if h == nil {
		return nil
	}

	return h.doRelease()
}

// HeldElsewhere implements Coordinator
func (c *Solo) HeldElsewhere(ctx context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.held[name], nil
}

// CrossContext implements Coordinator
func (c *Solo) CrossContext() bool { return false }

// Mode implements Coordinator
func (c *Solo) Mode() string { return ModeNone }
