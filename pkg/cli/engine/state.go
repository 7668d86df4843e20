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

package engine

import (
	"github.com/pkg/errors"
)

// ErrIllegalTransition is returned when the scheduler attempts a transition that
// the state table does not allow
var ErrIllegalTransition = errors.New("illegal state transition")

// State is a state of the scheduler
type State int

// States of the scheduler. Bookmarks through ReadStatus are the running states.
const (
	StateIdle State = iota
	StateAcquiring
	StateBookmarks
	StateArchivedBookmarks
	StateAssets
	StateReadStatus
	StateComplete
	StatePaused
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:              "Idle",
	StateAcquiring:         "Acquiring",
	StateBookmarks:         "Bookmarks",
	StateArchivedBookmarks: "ArchivedBookmarks",
	StateAssets:            "Assets",
	StateReadStatus:        "ReadStatus",
	StateComplete:          "Complete",
	StatePaused:            "Paused",
	StateFailed:            "Failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return "Unknown"
}

// Running returns true for the states in which phases execute batches
func (s State) Running() bool {
	return s >= StateBookmarks && s <= StateReadStatus
}

// transitions lists the states reachable from each state
var transitions = map[State][]State{
	StateIdle:              {StateAcquiring},
	StateAcquiring:         {StateBookmarks, StateIdle, StateFailed},
	StateBookmarks:         {StateArchivedBookmarks, StatePaused, StateFailed},
	StateArchivedBookmarks: {StateAssets, StatePaused, StateFailed},
	StateAssets:            {StateReadStatus, StatePaused, StateFailed},
	StateReadStatus:        {StateComplete, StatePaused, StateFailed},
	StatePaused:            {StateBookmarks, StateArchivedBookmarks, StateAssets, StateReadStatus, StateFailed},
	StateComplete:          {StateIdle},
	StateFailed:            {StateIdle},
}

// CanTransition reports whether the table allows going from one state to another
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}

	return false
}

// machine tracks the current state. Leaving Paused is only allowed back into
// the state that was paused, or into Failed.
type machine struct {
	state  State
	paused State
}

func (m *machine) to(next State) error {
	if !CanTransition(m.state, next) {
		return errors.Wrapf(ErrIllegalTransition, "%s to %s", m.state, next)
	}
	if m.state == StatePaused && next != StateFailed && next != m.paused {
		return errors.Wrapf(ErrIllegalTransition, "resuming %s into %s", m.paused, next)
	}

	if next == StatePaused {
		m.paused = m.state
	}
	m.state = next

	return nil
}

// Phase is the stage of a sync run reported to observers
type Phase string

// Phases of a run
const (
	PhaseBookmarks         Phase = "bookmarks"
	PhaseArchivedBookmarks Phase = "archived-bookmarks"
	PhaseAssets            Phase = "assets"
	PhaseReadStatus        Phase = "read-status"
	PhaseComplete          Phase = "complete"
)

// Status is the coarse status of a session
type Status string

// Session statuses
const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusFailed  Status = "failed"
)

func phaseOf(s State) (Phase, bool) {
	switch s {
	case StateBookmarks:
		return PhaseBookmarks, true
	case StateArchivedBookmarks:
		return PhaseArchivedBookmarks, true
	case StateAssets:
		return PhaseAssets, true
	case StateReadStatus:
		return PhaseReadStatus, true
	case StateComplete:
		return PhaseComplete, true
	}

	return "", false
}

func statusOf(s State) Status {
	switch {
	case s.Running(), s == StateAcquiring:
		return StatusRunning
	case s == StatePaused:
		return StatusPaused
	case s == StateFailed:
		return StatusFailed
	}

	return StatusIdle
}
