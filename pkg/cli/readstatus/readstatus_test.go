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

package readstatus

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dnote/readlater/pkg/assert"
	"github.com/dnote/readlater/pkg/cli/client"
	"github.com/dnote/readlater/pkg/cli/database"
	"github.com/dnote/readlater/pkg/cli/reconcile"
	"github.com/dnote/readlater/pkg/cli/retry"
	"github.com/dnote/readlater/pkg/remotetest"
)

const testToken = "token"

func setup(t *testing.T) (*database.DB, *remotetest.Server, *Uploader) {
	db, _ := database.InitTestFileDB(t)

	srv := remotetest.New(testToken)
	t.Cleanup(srv.Close)

	added := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	srv.Now = func() time.Time { return added.Add(time.Hour) }
	srv.AddBookmark(remotetest.Bookmark{ID: 5, URL: "https://example.com", Unread: true, DateAdded: added, DateModified: added})

	if _, err := reconcile.Upsert(db, client.Bookmark{ID: 5, URL: "https://example.com", Unread: true, DateAdded: added, DateModified: added}); err != nil {
		t.Fatal(err)
	}
	if err := database.MarkReadLocal(db, 5, 55, "reader", added.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	u := &Uploader{
		DB:      db,
		Remote:  client.New(srv.URL, testToken, "test"),
		Retrier: retry.Retrier{Policy: retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}},
	}

	return db, srv, u
}

func TestUpload(t *testing.T) {
	db, srv, u := setup(t)

	r, err := u.Upload(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, r, reconcile.Updated, "result mismatch")

	b := database.MustBookmark(t, db, 5)
	assert.Equal(t, b.NeedsReadSync, false, "flag should be cleared after acknowledgement")
	assert.Equal(t, b.Unread, false, "unread mismatch")
	assert.Equal(t, b.ReadProgress, 55, "progress must be kept")

	remote, _ := srv.Bookmark(5)
	assert.Equal(t, remote.Unread, false, "remote should be marked read")
}

func TestUploadFailureKeepsFlag(t *testing.T) {
	testCases := []struct {
		status int
	}{
		{status: http.StatusServiceUnavailable},
		{status: http.StatusNotFound},
		{status: http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			db, srv, u := setup(t)
			srv.FailNext(remotetest.RouteMarkRead, tc.status, 10)

			_, err := u.Upload(context.Background(), 5)
			assert.NotEqual(t, err, nil, "upload should fail")

			b := database.MustBookmark(t, db, 5)
			assert.Equal(t, b.NeedsReadSync, true, "flag must stay set")
			assert.Equal(t, b.Unread, false, "local read must be kept")
		})
	}
}
