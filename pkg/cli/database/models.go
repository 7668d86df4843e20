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
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a requested record does not exist locally
var ErrNotFound = errors.New("not found")

// Asset statuses
const (
	AssetPending  = "pending"
	AssetComplete = "complete"
	AssetFailure  = "failure"
)

// Bookmark is the local copy of a remote bookmark. The fields from ReadProgress
// onwards are local only and are never sent by the remote.
type Bookmark struct {
	ID                 int64
	URL                string
	Title              string
	Description        string
	Notes              string
	WebsiteTitle       string
	WebsiteDescription string
	Archived           bool
	Unread             bool
	Shared             bool
	Tags               []string
	DateAdded          time.Time
	DateModified       time.Time

	ReadProgress   int
	ReadingMode    string
	LastReadAt     time.Time
	NeedsReadSync  bool
	NeedsAssetSync bool
}

// Asset is a downloadable file attached to a bookmark, such as an HTML snapshot
type Asset struct {
	BookmarkID  int64
	ID          int64
	AssetType   string
	ContentType string
	DisplayName string
	FileSize    int64
	Status      string
	CachedAt    time.Time
}

// EncodeTime converts t to the integer representation stored in the database
func EncodeTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

// DecodeTime is the inverse of EncodeTime
func DecodeTime(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}

	return time.Unix(0, v).UTC()
}

func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullTime(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}

	return DecodeTime(v.Int64)
}

// EncodeTags serializes a tag set for the tag_names column
func EncodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}

	b, err := json.Marshal(tags)
	if err != nil {
		return "", errors.Wrap(err, "encoding tags")
	}

	return string(b), nil
}

func decodeTags(s string) ([]string, error) {
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil, errors.Wrapf(err, "decoding tags '%s'", s)
	}

	return tags, nil
}

const bookmarkColumns = `id, url, title, description, notes, website_title, website_description,
	is_archived, unread, shared, tag_names, date_added, date_modified,
	read_progress, reading_mode, last_read_at, needs_read_sync, needs_asset_sync`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBookmark(s scanner) (Bookmark, error) {
	var b Bookmark
	var tags string
	var added, modified, lastRead int64

	err := s.Scan(&b.ID, &b.URL, &b.Title, &b.Description, &b.Notes, &b.WebsiteTitle, &b.WebsiteDescription,
		&b.Archived, &b.Unread, &b.Shared, &tags, &added, &modified,
		&b.ReadProgress, &b.ReadingMode, &lastRead, &b.NeedsReadSync, &b.NeedsAssetSync)
	if err != nil {
		return b, err
	}

	b.Tags, err = decodeTags(tags)
	if err != nil {
		return b, err
	}
	b.DateAdded = DecodeTime(added)
	b.DateModified = DecodeTime(modified)
	b.LastReadAt = DecodeTime(lastRead)

	return b, nil
}

// Insert inserts a new bookmark
func (b Bookmark) Insert(db *DB) error {
	tags, err := EncodeTags(b.Tags)
	if err != nil {
		return err
	}

	_, err = db.Exec(`INSERT INTO bookmarks (`+bookmarkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.URL, b.Title, b.Description, b.Notes, b.WebsiteTitle, b.WebsiteDescription,
		b.Archived, b.Unread, b.Shared, tags, EncodeTime(b.DateAdded), EncodeTime(b.DateModified),
		b.ReadProgress, b.ReadingMode, EncodeTime(b.LastReadAt), b.NeedsReadSync, b.NeedsAssetSync)
	if err != nil {
		return errors.Wrapf(err, "inserting bookmark %d", b.ID)
	}

	return nil
}

// GetBookmark returns the bookmark with the given id
func GetBookmark(db *DB, id int64) (Bookmark, error) {
	row := db.QueryRow("SELECT "+bookmarkColumns+" FROM bookmarks WHERE id = ?", id)

	b, err := scanBookmark(row)
	if err == sql.ErrNoRows {
		return b, errors.Wrapf(ErrNotFound, "bookmark %d", id)
	} else if err != nil {
		return b, errors.Wrapf(err, "getting bookmark %d", id)
	}

	return b, nil
}

// BookmarkFilter narrows down ListBookmarks
type BookmarkFilter struct {
	UnreadOnly bool
	Archived   bool
}

// ListBookmarks returns local bookmarks, newest first
func ListBookmarks(db *DB, f BookmarkFilter) ([]Bookmark, error) {
	conds := []string{"is_archived = ?"}
	args := []interface{}{f.Archived}
	if f.UnreadOnly {
		conds = append(conds, "unread = ?")
		args = append(args, true)
	}

	query := "SELECT " + bookmarkColumns + " FROM bookmarks WHERE " + strings.Join(conds, " AND ") + " ORDER BY date_added DESC, id DESC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying bookmarks")
	}
	defer rows.Close()

	ret := []Bookmark{}
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning bookmark")
		}

		ret = append(ret, b)
	}

	return ret, errors.Wrap(rows.Err(), "iterating bookmarks")
}

func queryIDs(db *DB, query string, args ...interface{}) ([]int64, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// BookmarksNeedingAssetSync returns up to limit ids of bookmarks flagged for asset
// sync, in ascending order, starting after afterID.
func BookmarksNeedingAssetSync(db *DB, afterID int64, limit int) ([]int64, error) {
	ids, err := queryIDs(db, "SELECT id FROM bookmarks WHERE needs_asset_sync AND id > ? ORDER BY id LIMIT ?", afterID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying bookmarks needing asset sync")
	}

	return ids, nil
}

// BookmarksNeedingReadSync returns up to limit ids of bookmarks whose read status
// has not been uploaded, in ascending order, starting after afterID.
func BookmarksNeedingReadSync(db *DB, afterID int64, limit int) ([]int64, error) {
	ids, err := queryIDs(db, "SELECT id FROM bookmarks WHERE needs_read_sync AND id > ? ORDER BY id LIMIT ?", afterID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying bookmarks needing read sync")
	}

	return ids, nil
}

func count(db *DB, query string, args ...interface{}) (int, error) {
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, err
	}

	return n, nil
}

// CountNeedingAssetSync counts bookmarks flagged for asset sync
func CountNeedingAssetSync(db *DB) (int, error) {
	n, err := count(db, "SELECT count(*) FROM bookmarks WHERE needs_asset_sync")
	return n, errors.Wrap(err, "counting bookmarks needing asset sync")
}

// CountNeedingReadSync counts bookmarks with a pending read status upload
func CountNeedingReadSync(db *DB) (int, error) {
	n, err := count(db, "SELECT count(*) FROM bookmarks WHERE needs_read_sync")
	return n, errors.Wrap(err, "counting bookmarks needing read sync")
}

// CountBookmarks counts every local bookmark
func CountBookmarks(db *DB) (int, error) {
	n, err := count(db, "SELECT count(*) FROM bookmarks")
	return n, errors.Wrap(err, "counting bookmarks")
}

// CountOutstandingAssets counts the assets of a bookmark that are not complete
func CountOutstandingAssets(db *DB, bookmarkID int64) (int, error) {
	n, err := count(db, "SELECT count(*) FROM assets WHERE bookmark_id = ? AND status != ?", bookmarkID, AssetComplete)
	return n, errors.Wrapf(err, "counting outstanding assets of bookmark %d", bookmarkID)
}

// MarkReadLocal records a local read of a bookmark. The change is queued for upload.
func MarkReadLocal(db *DB, id int64, progress int, mode string, at time.Time) error {
	if progress < 0 || progress > 100 {
		return errors.Errorf("invalid reading progress %d", progress)
	}

	res, err := db.Exec(`UPDATE bookmarks
		SET unread = false, needs_read_sync = true, read_progress = ?, reading_mode = ?, last_read_at = ?
		WHERE id = ?`, progress, mode, EncodeTime(at), id)
	if err != nil {
		return errors.Wrapf(err, "marking bookmark %d as read", id)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "bookmark %d", id)
	}

	return nil
}

// ListAssets returns the assets of a bookmark without their content
func ListAssets(db *DB, bookmarkID int64) ([]Asset, error) {
	rows, err := db.Query(`SELECT bookmark_id, id, asset_type, content_type, display_name, file_size, status, cached_at
		FROM assets WHERE bookmark_id = ? ORDER BY id`, bookmarkID)
	if err != nil {
		return nil, errors.Wrapf(err, "querying assets of bookmark %d", bookmarkID)
	}
	defer rows.Close()

	ret := []Asset{}
	for rows.Next() {
		var a Asset
		var cachedAt int64
		if err := rows.Scan(&a.BookmarkID, &a.ID, &a.AssetType, &a.ContentType, &a.DisplayName, &a.FileSize, &a.Status, &cachedAt); err != nil {
			return nil, errors.Wrap(err, "scanning asset")
		}
		a.CachedAt = DecodeTime(cachedAt)

		ret = append(ret, a)
	}

	return ret, errors.Wrap(rows.Err(), "iterating assets")
}

// GetAssetContent returns the cached bytes of a complete asset
func GetAssetContent(db *DB, bookmarkID, assetID int64) ([]byte, error) {
	var content []byte
	err := db.QueryRow("SELECT content FROM assets WHERE bookmark_id = ? AND id = ? AND status = ?",
		bookmarkID, assetID, AssetComplete).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "asset %d of bookmark %d", assetID, bookmarkID)
	} else if err != nil {
		return nil, errors.Wrapf(err, "getting asset %d of bookmark %d", assetID, bookmarkID)
	}

	return content, nil
}

// GetSystem scans the value of the given system key into dest
func GetSystem(db *DB, key string, dest interface{}) error {
	if err := db.QueryRow("SELECT value FROM system WHERE key = ?", key).Scan(dest); err != nil {
		if err == sql.ErrNoRows {
			return errors.Wrapf(ErrNotFound, "system key '%s'", key)
		}
		return errors.Wrapf(err, "getting system key '%s'", key)
	}

	return nil
}

// UpsertSystem sets the value of the given system key
func UpsertSystem(db *DB, key, val string) error {
	_, err := db.Exec(`INSERT INTO system (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, val)
	if err != nil {
		return errors.Wrapf(err, "upserting system key '%s'", key)
	}

	return nil
}
