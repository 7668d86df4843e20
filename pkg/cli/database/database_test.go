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
	"testing"
	"time"

	"github.com/dnote/readlater/pkg/assert"
	"github.com/pkg/errors"
)

func TestMigrateIdempotent(t *testing.T) {
	db, _ := InitTestFileDB(t)

	if err := Migrate(db); err != nil {
		t.Fatal(errors.Wrap(err, "migrating twice"))
	}

	var count int
	MustScan(t, "counting cursor rows", db.QueryRow("SELECT count(*) FROM sync_cursor"), &count)
	assert.Equal(t, count, 1, "cursor row count mismatch")

	MustScan(t, "counting lock rows", db.QueryRow("SELECT count(*) FROM locks"), &count)
	assert.Equal(t, count, 0, "locks table should be empty")
}

func TestCursorSave(t *testing.T) {
	db, _ := InitTestFileDB(t)

	c := MustCursor(t, db)
	assert.Equal(t, c.UnarchivedOffset, 0, "initial offset mismatch")
	assert.Equal(t, c.LastSyncAt.IsZero(), true, "initial lastSyncAt should be null")
	assert.Equal(t, c.LastSyncError, "", "initial error mismatch")

	now := time.Date(2024, time.March, 3, 10, 0, 0, 0, time.UTC)
	c.UnarchivedOffset = 200
	c.ArchivedOffset = 30
	c.RetryCount = 2
	c.LastSyncError = "fetching page: 503"
	c.LastSyncAt = now
	c.RunActive = true
	c.RunModifiedSince = now.Add(-time.Hour)
	c.RunStartedAt = now

	if err := c.Save(db); err != nil {
		t.Fatal(err)
	}

	got := MustCursor(t, db)
	assert.DeepEqual(t, got, c, "cursor mismatch")

	got.LastSyncError = ""
	got.RunModifiedSince = time.Time{}
	if err := got.Save(db); err != nil {
		t.Fatal(err)
	}

	var errVal *string
	MustScan(t, "reading last_sync_error", db.QueryRow("SELECT last_sync_error FROM sync_cursor"), &errVal)
	assert.Equal(t, errVal == nil, true, "cleared error should be stored as null")
}

func TestMarkReadLocal(t *testing.T) {
	db, _ := InitTestFileDB(t)

	b := Bookmark{ID: 7, URL: "https://example.com", Unread: true, Tags: []string{"go"}}
	if err := b.Insert(db); err != nil {
		t.Fatal(err)
	}

	at := time.Date(2024, time.March, 3, 10, 0, 0, 0, time.UTC)
	if err := MarkReadLocal(db, 7, 40, "reader", at); err != nil {
		t.Fatal(err)
	}

	got := MustBookmark(t, db, 7)
	assert.Equal(t, got.Unread, false, "unread mismatch")
	assert.Equal(t, got.NeedsReadSync, true, "needsReadSync mismatch")
	assert.Equal(t, got.ReadProgress, 40, "progress mismatch")
	assert.Equal(t, got.ReadingMode, "reader", "mode mismatch")
	assert.Equal(t, got.LastReadAt.Equal(at), true, "lastReadAt mismatch")
	assert.DeepEqual(t, got.Tags, []string{"go"}, "tags mismatch")

	n, err := CountNeedingReadSync(db)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, n, 1, "needing read sync count mismatch")

	err = MarkReadLocal(db, 8, 10, "", at)
	assert.Equal(t, errors.Cause(err), ErrNotFound, "missing bookmark error mismatch")

	err = MarkReadLocal(db, 7, 101, "", at)
	assert.NotEqual(t, err, nil, "out of range progress should fail")
}

func TestWithTxRollback(t *testing.T) {
	db, _ := InitTestFileDB(t)

	err := db.WithTx(func(tx *DB) error {
		if err := (Bookmark{ID: 1, URL: "https://a.example"}).Insert(tx); err != nil {
			return err
		}

		return errors.New("boom")
	})
	assert.Equal(t, errors.Cause(err).Error(), "boom", "error mismatch")

	n, err := CountBookmarks(db)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, n, 0, "rolled back insert should not be visible")
}

func TestKeysetPagination(t *testing.T) {
	db, _ := InitTestFileDB(t)

	for i := int64(1); i <= 5; i++ {
		b := Bookmark{ID: i, URL: "https://example.com", NeedsAssetSync: i != 3}
		if err := b.Insert(db); err != nil {
			t.Fatal(err)
		}
	}

	first, err := BookmarksNeedingAssetSync(db, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, first, []int64{1, 2}, "first page mismatch")

	second, err := BookmarksNeedingAssetSync(db, first[len(first)-1], 2)
	if err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, second, []int64{4, 5}, "second page mismatch")
}

func TestSystem(t *testing.T) {
	db, _ := InitTestFileDB(t)

	var val string
	err := GetSystem(db, "k", &val)
	assert.Equal(t, errors.Cause(err), ErrNotFound, "missing key error mismatch")

	if err := UpsertSystem(db, "k", "1"); err != nil {
		t.Fatal(err)
	}
	if err := UpsertSystem(db, "k", "2"); err != nil {
		t.Fatal(err)
	}
	if err := GetSystem(db, "k", &val); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, val, "2", "value mismatch")
}
