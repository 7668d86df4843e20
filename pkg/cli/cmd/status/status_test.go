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

package status

import (
	"bytes"
	stdctx "context"
	"strings"
	"testing"
	"time"

	"github.com/dnote/readlater/pkg/assert"
	"github.com/dnote/readlater/pkg/cli/context"
	"github.com/dnote/readlater/pkg/cli/database"
	"github.com/dnote/readlater/pkg/cli/engine"
	"github.com/dnote/readlater/pkg/cli/keepalive"
	"github.com/dnote/readlater/pkg/cli/lock"
	"github.com/dnote/readlater/pkg/clock"
)

func TestGetStatus(t *testing.T) {
	ctx := context.InitTestCtx(t)
	ctx.Config.LockMode = lock.ModeFile

	b := database.Bookmark{ID: 1, URL: "https://example.com", NeedsReadSync: true, NeedsAssetSync: true}
	if err := b.Insert(ctx.DB); err != nil {
		t.Fatal(err)
	}
	database.MustExec(t, "setting cursor", ctx.DB, "UPDATE sync_cursor SET retry_count = 2, last_sync_error = 'timeout', run_active = true, unarchived_offset = 100")
	database.MustExec(t, "setting summary", ctx.DB, "INSERT INTO system (key, value) VALUES (?, ?)", engine.SystemLastSummary, `{"processed": 3, "inserted": 2}`)

	s, err := getStatus(stdctx.Background(), ctx)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, s.Bookmarks, 1, "bookmark count mismatch")
	assert.Equal(t, s.Cursor.NeedingAssetSync, 1, "asset count mismatch")
	assert.Equal(t, s.Cursor.NeedingReadSync, 1, "read count mismatch")
	assert.Equal(t, s.Cursor.RetryCount, 2, "retry count mismatch")
	assert.Equal(t, s.Cursor.UnarchivedOffset, 100, "offset mismatch")
	assert.Equal(t, s.Running, false, "running mismatch")
	assert.Equal(t, s.Capabilities.LockMode, lock.ModeFile, "lock mode mismatch")
	assert.Equal(t, s.Capabilities.CrossContextLock, true, "cross context mismatch")
	assert.Equal(t, s.LastHeartbeat.IsZero(), true, "heartbeat mismatch")
	if s.LastSummary == nil {
		t.Fatal("missing last summary")
	}
	assert.Equal(t, s.LastSummary.Processed, 3, "summary mismatch")

	var buf bytes.Buffer
	printStatus(&buf, s, ctx.Clock.Now())
	out := buf.String()

	assert.Equal(t, strings.Contains(out, "last sync:           never\n"), true, "last sync line missing")
	assert.Equal(t, strings.Contains(out, "last error:          timeout (retries: 2)\n"), true, "error line missing")
	assert.Equal(t, strings.Contains(out, "pending read status: 1\n"), true, "read status line missing")
	assert.Equal(t, strings.Contains(out, "last summary:        3 processed, 2 new"), true, "summary line missing")
}

func TestGetStatusRunning(t *testing.T) {
	ctx := context.InitTestCtx(t)
	ctx.Config.LockMode = lock.ModeFile

	locks := lock.NewFile(context.LockDir(ctx.Paths))
	h, err := locks.TryAcquire(stdctx.Background(), engine.DefaultLockName)
	if err != nil {
		t.Fatal(err)
	}
	defer locks.Release(h)

	c := clock.NewMock()
	c.Add(-30 * time.Second)
	hb := keepalive.HeartbeatFile{Path: context.HeartbeatPath(ctx.Paths), Clock: c}
	if err := hb.Beat(); err != nil {
		t.Fatal(err)
	}

	s, err := getStatus(stdctx.Background(), ctx)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, s.Running, true, "running mismatch")

	var buf bytes.Buffer
	printStatus(&buf, s, ctx.Clock.Now())
	assert.Equal(t, strings.Contains(buf.String(), "sync running:        yes (heartbeat 30s ago)\n"), true, "running line missing")
}
