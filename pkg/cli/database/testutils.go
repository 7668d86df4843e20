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
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MustScan scans the given row and fails a test in case of any errors
func MustScan(t *testing.T, message string, row *sql.Row, args ...interface{}) {
	t.Helper()

	err := row.Scan(args...)
	if err != nil {
		t.Fatal(errors.Wrap(errors.Wrap(err, "scanning a row"), message))
	}
}

// MustExec executes the given SQL query and fails a test if an error occurs
func MustExec(t *testing.T, message string, db *DB, query string, args ...interface{}) sql.Result {
	t.Helper()

	result, err := db.Exec(query, args...)
	if err != nil {
		t.Fatal(errors.Wrap(errors.Wrap(err, "executing sql"), message))
	}

	return result
}

// InitTestFileDB initializes a migrated file-based test database in a temporary directory
func InitTestFileDB(t *testing.T) (*DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), fmt.Sprintf("readlater-%s.db", uuid.NewString()))
	db := InitTestFileDBRaw(t, dbPath)

	return db, dbPath
}

// InitTestFileDBRaw initializes a migrated file-based test database at the given path
func InitTestFileDBRaw(t *testing.T, dbPath string) *DB {
	t.Helper()

	db, err := Open(dbPath)
	if err != nil {
		t.Fatal(errors.Wrap(err, "opening database"))
	}
	t.Cleanup(func() { db.Close() })

	if err := Migrate(db); err != nil {
		t.Fatal(errors.Wrap(err, "migrating database"))
	}

	return db
}

// MustCursor reads the sync cursor and fails a test on error
func MustCursor(t *testing.T, db *DB) Cursor {
	t.Helper()

	c, err := GetCursor(db)
	if err != nil {
		t.Fatal(err)
	}

	return c
}

// MustBookmark reads a bookmark and fails a test on error
func MustBookmark(t *testing.T, db *DB, id int64) Bookmark {
	t.Helper()

	b, err := GetBookmark(db, id)
	if err != nil {
		t.Fatal(err)
	}

	return b
}
