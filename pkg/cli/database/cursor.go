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

package database

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// Cursor is the durable sync cursor. It is the only sync state that survives a
// restart; everything else is recomputed from it and the bookmarks.
type Cursor struct {
	UnarchivedOffset int
	ArchivedOffset   int
	NeedingAssetSync int
	NeedingReadSync  int
	RetryCount       int
	LastSyncError    string
	LastSyncAt       time.Time

	// RunActive is set while a run is in progress or was interrupted. The run
	// filter is kept alongside so that a resumed run pages through the same
	// result set as the interrupted one.
	RunActive        bool
	RunFull          bool
	RunModifiedSince time.Time
	RunStartedAt     time.Time
}

// GetCursor reads the sync cursor
func GetCursor(db *DB) (Cursor, error) {
	var c Cursor
	var lastErr sql.NullString
	var lastSyncAt, modifiedSince, startedAt sql.NullInt64

	err := db.QueryRow(`SELECT unarchived_offset, archived_offset, needing_asset_sync, needing_read_sync,
		retry_count, last_sync_error, last_sync_at, run_active, run_full, run_modified_since, run_started_at
		FROM sync_cursor WHERE id = 1`).Scan(&c.UnarchivedOffset, &c.ArchivedOffset, &c.NeedingAssetSync, &c.NeedingReadSync,
		&c.RetryCount, &lastErr, &lastSyncAt, &c.RunActive, &c.RunFull, &modifiedSince, &startedAt)
	if err != nil {
		return c, errors.Wrap(err, "reading sync cursor")
	}

	c.LastSyncError = lastErr.String
	c.LastSyncAt = fromNullTime(lastSyncAt)
	c.RunModifiedSince = fromNullTime(modifiedSince)
	c.RunStartedAt = fromNullTime(startedAt)

	return c, nil
}

// Save writes the cursor
func (c Cursor) Save(db *DB) error {
	var lastErr sql.NullString
	if c.LastSyncError != "" {
		lastErr = sql.NullString{String: c.LastSyncError, Valid: true}
	}

	_, err := db.Exec(`UPDATE sync_cursor SET
		unarchived_offset = ?, archived_offset = ?, needing_asset_sync = ?, needing_read_sync = ?,
		retry_count = ?, last_sync_error = ?, last_sync_at = ?,
		run_active = ?, run_full = ?, run_modified_since = ?, run_started_at = ?
		WHERE id = 1`,
		c.UnarchivedOffset, c.ArchivedOffset, c.NeedingAssetSync, c.NeedingReadSync,
		c.RetryCount, lastErr, nullTime(c.LastSyncAt),
		c.RunActive, c.RunFull, nullTime(c.RunModifiedSince), nullTime(c.RunStartedAt))
	if err != nil {
		return errors.Wrap(err, "saving sync cursor")
	}

	return nil
}

// RefreshCounts recomputes the outstanding work counts from the bookmarks
func (c *Cursor) RefreshCounts(db *DB) error {
	assets, err := CountNeedingAssetSync(db)
	if err != nil {
		return err
	}
	reads, err := CountNeedingReadSync(db)
	if err != nil {
		return err
	}

	c.NeedingAssetSync = assets
	c.NeedingReadSync = reads

	return nil
}
