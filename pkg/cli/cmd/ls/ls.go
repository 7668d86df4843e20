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

package ls

import (
	"io"

	"github.com/dnote/readlater/pkg/cli/context"
	"github.com/dnote/readlater/pkg/cli/database"
	"github.com/dnote/readlater/pkg/cli/infra"
	"github.com/dnote/readlater/pkg/cli/log"
	"github.com/dnote/readlater/pkg/cli/output"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  * List all bookmarks
  readlater ls

  * List unread bookmarks
  readlater ls --unread

  * List archived bookmarks
  readlater ls --archived`

var unreadOnly bool
var archived bool

// NewCmd returns a new ls command
func NewCmd(ctx context.ReadlaterCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"l"},
		Short:   "List bookmarks in the local store",
		Example: example,
		Args:    cobra.NoArgs,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.BoolVarP(&unreadOnly, "unread", "u", false, "list only unread bookmarks")
	f.BoolVarP(&archived, "archived", "a", false, "list archived bookmarks instead")

	return cmd
}

func printBookmarks(w io.Writer, ctx context.ReadlaterCtx, f database.BookmarkFilter) (int, error) {
	bookmarks, err := database.ListBookmarks(ctx.DB, f)
	if err != nil {
		return 0, errors.Wrap(err, "listing bookmarks")
	}

	for _, b := range bookmarks {
		output.BookmarkLine(w, b)
	}

	return len(bookmarks), nil
}

func newRun(ctx context.ReadlaterCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		n, err := printBookmarks(cmd.OutOrStdout(), ctx, database.BookmarkFilter{UnreadOnly: unreadOnly, Archived: archived})
		if err != nil {
			return err
		}
		if n == 0 {
			log.Plain("no bookmarks. run 'readlater sync' to fetch them\n")
		}

		return nil
	}
}
