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

// Package trigger starts sync sessions from outside the scheduler: on a
// schedule, or when another process drops a control message.
package trigger

import (
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron"
)

// DefaultSchedule is the schedule of the periodic trigger
const DefaultSchedule = "@every 30m"

// Periodic calls a function on a cron schedule
type Periodic struct {
	spec string
	cron *cron.Cron
}

// ValidateSchedule returns an error if spec is not a valid schedule
func ValidateSchedule(spec string) error {
	if _, err := cron.Parse(spec); err != nil {
		return errors.Wrapf(err, "parsing schedule '%s'", spec)
	}

	return nil
}

// NewPeriodic returns a trigger calling fn on the given schedule. It does not
// run until started.
func NewPeriodic(spec string, fn func()) (*Periodic, error) {
	if err := ValidateSchedule(spec); err != nil {
		return nil, err
	}

	c := cron.New()
	if err := c.AddFunc(spec, fn); err != nil {
		return nil, errors.Wrap(err, "adding job")
	}

	return &Periodic{spec: spec, cron: c}, nil
}

// Start starts the schedule in its own goroutine
func (p *Periodic) Start() {
	p.cron.Start()
}

// Stop stops the schedule. A call already in flight is not interrupted.
func (p *Periodic) Stop() {
	p.cron.Stop()
}

// Next returns the next time the function runs, or the zero time if the
// trigger is not started
func (p *Periodic) Next() time.Time {
	entries := p.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}

	return entries[0].Next
}

// Spec returns the schedule
func (p *Periodic) Spec() string {
	return p.spec
}
