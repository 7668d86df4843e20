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

package sync

import (
	stdctx "context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dnote/readlater/pkg/cli/context"
	"github.com/dnote/readlater/pkg/cli/database"
	"github.com/dnote/readlater/pkg/cli/engine"
	"github.com/dnote/readlater/pkg/cli/infra"
	"github.com/dnote/readlater/pkg/cli/log"
	"github.com/dnote/readlater/pkg/cli/output"
	"github.com/dnote/readlater/pkg/cli/trigger"
	"github.com/dnote/readlater/pkg/cli/ui"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  readlater sync

  readlater sync --full

  # skip the confirmation when an interrupted sync would be discarded
  readlater sync --full --yes

  # ask a running daemon to sync
  readlater sync --async`

var isFullSync bool
var isAsync bool
var apiEndpointFlag string
var yesFlag bool

// NewCmd returns a new sync command
func NewCmd(ctx context.ReadlaterCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sync",
		Aliases: []string{"s"},
		Short:   "Sync bookmarks with the server",
		Example: example,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.BoolVarP(&isFullSync, "full", "f", false, "perform a full sync instead of incrementally syncing only the changed data.")
	f.BoolVar(&isAsync, "async", false, "ask the running daemon to sync instead of syncing in this process")
	f.BoolVarP(&yesFlag, "yes", "y", false, "assume yes to the prompts and run in non-interactive mode")
	f.StringVar(&apiEndpointFlag, "apiEndpoint", "", "API endpoint to connect to (defaults to value in config)")

	return cmd
}

// Do runs a sync in the foreground, printing progress. It returns true if the
// sync ran, and false if another process holds the sync lock.
func Do(c stdctx.Context, s *engine.Scheduler, full bool) (bool, error) {
	s.Reporter().Subscribe(output.Progress())

	outcome, err := s.Run(c, engine.RunOptions{Full: full})
	// deliver pending progress before printing the result
	s.Reporter().Close()
	if err != nil {
		return false, err
	}
	if outcome.LockUnavailable {
		return false, nil
	}

	output.Summary(outcome.Summary)

	return true, nil
}

// confirmFull asks before a full sync discards the resume point of an
// interrupted one
func confirmFull(ctx context.ReadlaterCtx) (bool, error) {
	c, err := database.GetCursor(ctx.DB)
	if err != nil {
		return false, err
	}
	if !c.RunActive || (c.UnarchivedOffset == 0 && c.ArchivedOffset == 0) {
		return true, nil
	}

	log.Warnf("an interrupted sync stopped at offset %d of bookmarks and %d of archived bookmarks\n", c.UnarchivedOffset, c.ArchivedOffset)

	return ui.Confirm("discard its progress and start over?", false)
}

func newRun(ctx context.ReadlaterCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		if isAsync {
			if isFullSync {
				return errors.New("--full cannot be combined with --async")
			}

			if err := trigger.Send(context.ControlDir(ctx.Paths), trigger.KindRequest); err != nil {
				return errors.Wrap(err, "requesting sync")
			}

			log.Success("sync requested\n")
			return nil
		}

		// Override APIEndpoint if flag was provided
		if apiEndpointFlag != "" {
			ctx.Config.APIEndpoint = apiEndpointFlag
		}

		if isFullSync && !yesFlag {
			ok, err := confirmFull(ctx)
			if err != nil {
				return errors.Wrap(err, "confirming full sync")
			}
			if !ok {
				log.Plain("aborted by user\n")
				return nil
			}
		}

		s, err := infra.NewEngine(ctx, infra.EngineOptions{})
		if err != nil {
			return errors.Wrap(err, "initializing sync")
		}

		c, stop := signal.NotifyContext(stdctx.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if _, err := Do(c, s, isFullSync); err != nil {
			return errors.Wrap(err, "syncing")
		}

		return nil
	}
}
