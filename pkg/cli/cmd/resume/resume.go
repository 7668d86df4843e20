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

package resume

import (
	"github.com/dnote/readlater/pkg/cli/context"
	"github.com/dnote/readlater/pkg/cli/infra"
	"github.com/dnote/readlater/pkg/cli/log"
	"github.com/dnote/readlater/pkg/cli/trigger"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  readlater resume`

// NewCmd returns a new resume command
func NewCmd(ctx context.ReadlaterCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "resume",
		Short:   "Resume a paused sync in the daemon",
		Example: example,
		Args:    cobra.NoArgs,
		RunE:    newRun(ctx),
	}

	return cmd
}

func newRun(ctx context.ReadlaterCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		if err := trigger.Send(context.ControlDir(ctx.Paths), trigger.KindResume); err != nil {
			return errors.Wrap(err, "sending control message")
		}

		log.Success("resume requested\n")

		return nil
	}
}
