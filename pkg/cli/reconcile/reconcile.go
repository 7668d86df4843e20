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

// Package reconcile applies remote records to the local store. Remote-owned
// fields follow the newest date_modified; local-only fields are left alone.
package reconcile

import (
	"time"

	"github.com/dnote/readlater/pkg/cli/client"
	"github.com/dnote/readlater/pkg/cli/database"
	"github.com/dnote/readlater/pkg/log"
	"github.com/pkg/errors"
)

// Result is the effect of an upsert on the local store
type Result int

const (
	// Unchanged means the local record was already as new as the remote one
	Unchanged Result = iota
	// Inserted means the record did not exist locally
	Inserted
	// Updated means remote-owned fields were overwritten
	Updated
)

func (r Result) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	}

	return "unchanged"
}

// Changed returns true if the upsert wrote to the store
func (r Result) Changed() bool {
	return r != Unchanged
}

// upsertBookmarkSQL inserts a bookmark or, if the incoming record is newer,
// overwrites its remote-owned fields. The unread flag is kept while a local
// read status change is waiting to be uploaded.
const upsertBookmarkSQL = `INSERT INTO bookmarks (
	id, url, title, description, notes, website_title, website_description,
	is_archived, unread, shared, tag_names, date_added, date_modified, needs_asset_sync
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, true)
ON CONFLICT (id) DO UPDATE SET
	url = excluded.url,
	title = excluded.title,
	description = excluded.description,
	notes = excluded.notes,
	website_title = excluded.website_title,
	website_description = excluded.website_description,
	is_archived = excluded.is_archived,
	unread = CASE WHEN bookmarks.needs_read_sync THEN bookmarks.unread ELSE excluded.unread END,
	shared = excluded.shared,
	tag_names = excluded.tag_names,
	date_added = excluded.date_added,
	date_modified = excluded.date_modified,
	needs_asset_sync = true
WHERE excluded.date_modified > bookmarks.date_modified`

// Upsert applies a remote bookmark to the local store in a single statement
func Upsert(db *database.DB, b client.Bookmark) (Result, error) {
	existing, err := database.GetBookmark(db, b.ID)
	found := true
	if errors.Cause(err) == database.ErrNotFound {
		found = false
	} else if err != nil {
		return Unchanged, errors.Wrapf(err, "reading bookmark %d", b.ID)
	}

	tags, err := database.EncodeTags(b.TagNames)
	if err != nil {
		return Unchanged, err
	}

	res, err := db.Exec(upsertBookmarkSQL,
		b.ID, b.URL, b.Title, b.Description, b.Notes, b.WebsiteTitle, b.WebsiteDescription,
		b.IsArchived, b.Unread, b.Shared, tags, database.EncodeTime(b.DateAdded), database.EncodeTime(b.DateModified))
	if err != nil {
		return Unchanged, errors.Wrapf(err, "upserting bookmark %d", b.ID)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return Unchanged, errors.Wrap(err, "counting affected rows")
	}

	switch {
	case n == 0:
		return Unchanged, nil
	case !found:
		return Inserted, nil
	}

	log.WithFields(log.Fields{
		"id":      b.ID,
		"changes": summarizeChange(existing, b),
	}).Debug("updated bookmark")

	return Updated, nil
}

// UpsertAsset records an asset listed in the remote index as pending, unless
// it is already known
func UpsertAsset(db *database.DB, a client.AssetMeta) (bool, error) {
	res, err := db.Exec(`INSERT INTO assets (bookmark_id, id, asset_type, content_type, display_name, file_size, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (bookmark_id, id) DO NOTHING`,
		a.BookmarkID, a.ID, a.AssetType, a.ContentType, a.DisplayName, a.FileSize, database.AssetPending)
	if err != nil {
		return false, errors.Wrapf(err, "upserting asset %d of bookmark %d", a.ID, a.BookmarkID)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "counting affected rows")
	}

	return n > 0, nil
}

// RecordAssetContent stores the content of an asset and marks it complete in a
// single statement. Complete assets are immutable.
func RecordAssetContent(db *database.DB, bookmarkID, assetID int64, content []byte, at time.Time) error {
	if content == nil {
		content = []byte{}
	}

	res, err := db.Exec(`UPDATE assets SET status = ?, content = ?, file_size = ?, cached_at = ?
		WHERE bookmark_id = ? AND id = ? AND status != ?`,
		database.AssetComplete, content, len(content), database.EncodeTime(at),
		bookmarkID, assetID, database.AssetComplete)
	if err != nil {
		return errors.Wrapf(err, "recording content of asset %d of bookmark %d", assetID, bookmarkID)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n > 0 {
		return nil
	}

	var status string
	err = db.QueryRow("SELECT status FROM assets WHERE bookmark_id = ? AND id = ?", bookmarkID, assetID).Scan(&status)
	if err != nil {
		return errors.Wrapf(database.ErrNotFound, "asset %d of bookmark %d", assetID, bookmarkID)
	}

	return nil
}

// MarkAssetFailure marks an incomplete asset as failed. It stays eligible for
// another attempt on the next run.
func MarkAssetFailure(db *database.DB, bookmarkID, assetID int64) error {
	_, err := db.Exec("UPDATE assets SET status = ? WHERE bookmark_id = ? AND id = ? AND status != ?",
		database.AssetFailure, bookmarkID, assetID, database.AssetComplete)
	if err != nil {
		return errors.Wrapf(err, "marking asset %d of bookmark %d as failed", assetID, bookmarkID)
	}

	return nil
}

// FinishAssetSync clears the asset sync flag of a bookmark if none of its assets
// is outstanding, and returns the number of outstanding assets.
func FinishAssetSync(db *database.DB, bookmarkID int64) (int, error) {
	_, err := db.Exec(`UPDATE bookmarks SET needs_asset_sync = false
		WHERE id = ? AND needs_asset_sync
		AND NOT EXISTS (SELECT 1 FROM assets WHERE bookmark_id = ? AND status != ?)`,
		bookmarkID, bookmarkID, database.AssetComplete)
	if err != nil {
		return 0, errors.Wrapf(err, "clearing asset sync flag of bookmark %d", bookmarkID)
	}

	return database.CountOutstandingAssets(db, bookmarkID)
}

// AcknowledgeRead clears the read sync flag of a bookmark whose read status the
// remote has acknowledged, and applies the returned record.
func AcknowledgeRead(db *database.DB, b client.Bookmark) (Result, error) {
	var ret Result

	err := db.WithTx(func(tx *database.DB) error {
		if _, err := tx.Exec("UPDATE bookmarks SET needs_read_sync = false WHERE id = ?", b.ID); err != nil {
			return errors.Wrapf(err, "clearing read sync flag of bookmark %d", b.ID)
		}

		r, err := Upsert(tx, b)
		if err != nil {
			return err
		}
		ret = r

		return nil
	})

	return ret, err
}
