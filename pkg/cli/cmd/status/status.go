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
	stdctx "context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dnote/readlater/pkg/cli/consts"
	"github.com/dnote/readlater/pkg/cli/context"
	"github.com/dnote/readlater/pkg/cli/database"
	"github.com/dnote/readlater/pkg/cli/engine"
	"github.com/dnote/readlater/pkg/cli/infra"
	"github.com/dnote/readlater/pkg/cli/output"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  readlater status`

// NewCmd returns a new status command
func NewCmd(ctx context.ReadlaterCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Show the state of the sync",
		Example: example,
		Args:    cobra.NoArgs,
		RunE:    newRun(ctx),
	}

	return cmd
}

// status is a point in time view of the sync
type status struct {
	Cursor       database.Cursor
	Bookmarks    int
	Capabilities engine.Capabilities
	// Running is set when another context holds the sync lock
	Running       bool
	LastHeartbeat time.Time
	LastSummary   *engine.Summary
}

func getStatus(c stdctx.Context, ctx context.ReadlaterCtx) (status, error) {
	var ret status

	cursor, err := database.GetCursor(ctx.DB)
	if err != nil {
		return ret, err
	}
	// the stored counts are only refreshed when a run completes
	if err := cursor.RefreshCounts(ctx.DB); err != nil {
		return ret, err
	}
	ret.Cursor = cursor

	n, err := database.CountBookmarks(ctx.DB)
	if err != nil {
		return ret, err
	}
	ret.Bookmarks = n

	locks, err := infra.NewLocks(ctx)
	if err != nil {
		return ret, errors.Wrap(err, "initializing locks")
	}
	ret.Capabilities = engine.Capabilities{
		CrossContextLock: locks.CrossContext(),
		LockMode:         locks.Mode(),
		Backgroundable:   true,
		PeriodicTrigger:  ctx.Config.SyncSchedule != "",
	}

	running, err := locks.HeldElsewhere(c, consts.LockName)
	if err != nil {
		return ret, errors.Wrap(err, "probing the sync lock")
	}
	ret.Running = running

	hb, err := infra.Heartbeat(ctx).Last()
	if err != nil {
		return ret, err
	}
	ret.LastHeartbeat = hb

	var raw string
	err = database.GetSystem(ctx.DB, engine.SystemLastSummary, &raw)
	if err == nil {
		var s engine.Summary
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return ret, errors.Wrap(err, "unmarshalling the last summary")
		}
		ret.LastSummary = &s
	} else if errors.Cause(err) != database.ErrNotFound {
		return ret, err
	}

	return ret, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}

	return "no"
}

func row(w io.Writer, label, format string, v ...interface{}) {
	fmt.Fprintf(w, "%-21s%s\n", label+":", fmt.Sprintf(format, v...))
}

func printStatus(w io.Writer, s status, now time.Time) {
	row(w, "last sync", "%s", output.FormatTime(s.Cursor.LastSyncAt))
	if s.Cursor.LastSyncError != "" {
		row(w, "last error", "%s (retries: %d)", s.Cursor.LastSyncError, s.Cursor.RetryCount)
	}
	if s.Cursor.RunActive {
		row(w, "interrupted run", "unarchived offset %d, archived offset %d", s.Cursor.UnarchivedOffset, s.Cursor.ArchivedOffset)
	}

	row(w, "bookmarks", "%d", s.Bookmarks)
	row(w, "pending assets", "%d", s.Cursor.NeedingAssetSync)
	row(w, "pending read status", "%d", s.Cursor.NeedingReadSync)

	running := yesNo(s.Running)
	if s.Running && !s.LastHeartbeat.IsZero() {
		running = fmt.Sprintf("yes (heartbeat %s ago)", now.Sub(s.LastHeartbeat).Round(time.Second))
	}
	row(w, "sync running", "%s", running)
	row(w, "lock mode", "%s (cross process: %s)", s.Capabilities.LockMode, yesNo(s.Capabilities.CrossContextLock))
	row(w, "periodic trigger", "%s", yesNo(s.Capabilities.PeriodicTrigger))

	if s.LastSummary != nil {
		row(w, "last summary", "%d processed, %d new, %d updated, %d assets, %d read uploads",
			s.LastSummary.Processed, s.LastSummary.Inserted, s.LastSummary.Updated,
			s.LastSummary.AssetsDownloaded, s.LastSummary.ReadUploaded)
	}
}

func newRun(ctx context.ReadlaterCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		s, err := getStatus(cmd.Context(), ctx)
		if err != nil {
			return errors.Wrap(err, "getting status")
		}

		printStatus(cmd.OutOrStdout(), s, ctx.Clock.Now())

		return nil
	}
}
