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
	"strings"

	// register the sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLCommon is the minimal interface shared by *sql.DB and *sql.Tx
type SQLCommon interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Prepare(query string) (*sql.Stmt, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

type sqlDB interface {
	Begin() (*sql.Tx, error)
}

type sqlTx interface {
	Commit() error
	Rollback() error
}

// DB is a database connection or a transaction on it
type DB struct {
	Conn     SQLCommon
	Filepath string
}

// ErrNotInTransaction is returned when Commit or Rollback is called on a connection
var ErrNotInTransaction = errors.New("not in a transaction")

// dsn builds the connection string for the database at the given path. Every
// connection runs in WAL mode so that readers never block on the sync writer,
// and transactions take the write lock up front.
func dsn(path string) string {
	params := "_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate&_foreign_keys=1"

	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}

		return path + sep + params
	}

	return fmt.Sprintf("file:%s?%s", path, params)
}

// Open opens a connection to the SQLite database at the given path
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, errors.Wrap(err, "opening db connection")
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "connecting to '%s'", path)
	}

	return &DB{Conn: conn, Filepath: path}, nil
}

// Begin starts a transaction. The returned DB runs every statement inside it.
func (d *DB) Begin() (*DB, error) {
	db, ok := d.Conn.(sqlDB)
	if !ok {
		return nil, errors.New("nested transactions are not supported")
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "beginning transaction")
	}

	return &DB{Conn: tx, Filepath: d.Filepath}, nil
}

// Commit commits the transaction
func (d *DB) Commit() error {
	tx, ok := d.Conn.(sqlTx)
	if !ok {
		return ErrNotInTransaction
	}

	return tx.Commit()
}

// Rollback rolls back the transaction
func (d *DB) Rollback() error {
	tx, ok := d.Conn.(sqlTx)
	if !ok {
		return ErrNotInTransaction
	}

	return tx.Rollback()
}

// Exec executes a statement
func (d *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return d.Conn.Exec(query, args...)
}

// Prepare prepares a statement
func (d *DB) Prepare(query string) (*sql.Stmt, error) {
	return d.Conn.Prepare(query)
}

// Query queries rows
func (d *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return d.Conn.Query(query, args...)
}

// QueryRow queries a single row
func (d *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return d.Conn.QueryRow(query, args...)
}

// SQL returns the underlying connection pool. It returns nil inside a transaction.
func (d *DB) SQL() *sql.DB {
	db, _ := d.Conn.(*sql.DB)
	return db
}

// Close closes the connection
func (d *DB) Close() error {
	db := d.SQL()
	if db == nil {
		return ErrNotInTransaction
	}

	return db.Close()
}

// WithTx runs fn inside a transaction, committing if it returns nil and
// rolling back otherwise.
func (d *DB) WithTx(fn func(tx *DB) error) error {
	tx, err := d.Begin()
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rolling back: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}

	return nil
}
