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

package read

import (
	"github.com/dnote/readlater/pkg/cli/context"
	"github.com/dnote/readlater/pkg/cli/database"
	"github.com/dnote/readlater/pkg/cli/infra"
	"github.com/dnote/readlater/pkg/cli/log"
	"github.com/dnote/readlater/pkg/cli/validate"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  * Mark a bookmark as read
  readlater read 12

  * Record that half of it was read in reader mode
  readlater read 12 --progress 50 --mode reader`

var progressFlag int
var modeFlag string

func preRun(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("Incorrect number of argument")
	}

	return nil
}

// NewCmd returns a new read command
func NewCmd(ctx context.ReadlaterCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "read <bookmark id>",
		Short:   "Mark a bookmark as read",
		Example: example,
		PreRunE: preRun,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.IntVarP(&progressFlag, "progress", "p", 100, "reading progress in percent")
	f.StringVarP(&modeFlag, "mode", "m", "", "reading mode (original, reader or archive)")

	return cmd
}

// markRead records a local read. The change is uploaded on the next sync.
func markRead(ctx context.ReadlaterCtx, idArg string, progress int, mode string) (int64, error) {
	id, err := validate.BookmarkID(idArg)
	if err != nil {
		return 0, err
	}
	if err := validate.ReadProgress(progress); err != nil {
		return 0, err
	}
	if err := validate.ReadingMode(mode); err != nil {
		return 0, err
	}

	if err := database.MarkReadLocal(ctx.DB, id, progress, mode, ctx.Clock.Now()); err != nil {
		if errors.Cause(err) == database.ErrNotFound {
			return 0, errors.Errorf("bookmark %d is not in the local store. Try syncing first", id)
		}

		return 0, errors.Wrap(err, "marking as read")
	}

	return id, nil
}

func newRun(ctx context.ReadlaterCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		id, err := markRead(ctx, args[0], progressFlag, modeFlag)
		if err != nil {
			return err
		}

		log.Successf("marked %d as read. it will be uploaded on the next sync\n", id)

		return nil
	}
}
