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

package testutils

import (
	"testing"
	"time"

	"github.com/dnote/readlater/pkg/cli/database"
)

// Setup1 sets up an env with an unread and an archived bookmark
func Setup1(t *testing.T, db *database.DB) {
	added := time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC)

	database.MustExec(t, "setting up bookmark 1", db, "INSERT INTO bookmarks (id, url, title, unread, is_archived, date_added, date_modified) VALUES (?, ?, ?, ?, ?, ?, ?)",
		1, "https://go.dev/blog/context", "Go Concurrency Patterns: Context", true, false, database.EncodeTime(added), database.EncodeTime(added))
	database.MustExec(t, "setting up bookmark 2", db, "INSERT INTO bookmarks (id, url, title, unread, is_archived, date_added, date_modified) VALUES (?, ?, ?, ?, ?, ?, ?)",
		2, "https://sqlite.org/wal.html", "Write-Ahead Logging", false, true, database.EncodeTime(added.Add(time.Hour)), database.EncodeTime(added.Add(time.Hour)))
}

// Setup2 sets up an env with a bookmark read locally and not yet uploaded
func Setup2(t *testing.T, db *database.DB) {
	added := time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC)

	database.MustExec(t, "setting up bookmark 1", db, "INSERT INTO bookmarks (id, url, title, unread, needs_read_sync, read_progress, date_added, date_modified) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		1, "https://go.dev/blog/context", "Go Concurrency Patterns: Context", false, true, 100, database.EncodeTime(added), database.EncodeTime(added))
}
