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
	"sort"
	"time"
)

// Session is a snapshot of the in-memory state of an active sync. It is never
// persisted.
type Session struct {
	State     State
	Phase     Phase
	Status    Status
	Current   int
	Total     int
	Full      bool
	StartedAt time.Time
	// Touched lists the bookmarks inserted or updated in this run
	Touched []int64
}

type session struct {
	state     State
	phase     Phase
	current   int
	total     int
	full      bool
	startedAt time.Time
	touched   map[int64]struct{}
}

func newSession(startedAt time.Time) *session {
	return &session{
		state:     StateIdle,
		startedAt: startedAt,
		touched:   map[int64]struct{}{},
	}
}

func (s *session) touch(id int64) {
	s.touched[id] = struct{}{}
}

func (s *session) touchedIDs() []int64 {
	ids := make([]int64, 0, len(s.touched))
	for id := range s.touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

func (s *session) snapshot() Session {
	return Session{
		State:     s.state,
		Phase:     s.phase,
		Status:    statusOf(s.state),
		Current:   s.current,
		Total:     s.total,
		Full:      s.full,
		StartedAt: s.startedAt,
		Touched:   s.touchedIDs(),
	}
}

// Summary describes a finished run
type Summary struct {
	Full bool `json:"full"`
	// Processed is the number of remote bookmarks reconciled
	Processed        int           `json:"processed"`
	Inserted         int           `json:"inserted"`
	Updated          int           `json:"updated"`
	AssetsDownloaded int           `json:"assets_downloaded"`
	AssetsFailed     int           `json:"assets_failed"`
	ReadUploaded     int           `json:"read_uploaded"`
	ReadFailed       int           `json:"read_failed"`
	Touched          []int64       `json:"touched"`
	Duration         time.Duration `json:"duration"`
}

// Outcome is the result of Run
type Outcome struct {
	// LockUnavailable is set when another context holds the sync lock. The run
	// did nothing, which is not an error.
	LockUnavailable bool
	Summary         Summary
}

// Capabilities are the host features the engine relies on. Missing features
// degrade the engine rather than stopping it.
type Capabilities struct {
	// CrossContextLock is false when the lock only excludes runs in this process
	CrossContextLock bool   `json:"cross_context_lock"`
	LockMode         string `json:"lock_mode"`
	// Backgroundable is true when runs can continue in a background host
	Backgroundable   bool   `json:"backgroundable"`
	// PeriodicTrigger is true when a timer triggers runs
	PeriodicTrigger  bool   `json:"periodic_trigger"`
}
