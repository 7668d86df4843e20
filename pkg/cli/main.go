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

package main

import (
	"os"
	"strings"

	"github.com/dnote/readlater/pkg/cli/infra"
	"github.com/dnote/readlater/pkg/cli/log"
	applog "github.com/dnote/readlater/pkg/log"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	// commands
	"github.com/dnote/readlater/pkg/cli/cmd/daemon"
	"github.com/dnote/readlater/pkg/cli/cmd/ls"
	"github.com/dnote/readlater/pkg/cli/cmd/pause"
	"github.com/dnote/readlater/pkg/cli/cmd/read"
	"github.com/dnote/readlater/pkg/cli/cmd/resume"
	"github.com/dnote/readlater/pkg/cli/cmd/root"
	"github.com/dnote/readlater/pkg/cli/cmd/status"
	"github.com/dnote/readlater/pkg/cli/cmd/sync"
	"github.com/dnote/readlater/pkg/cli/cmd/version"
)

// apiEndpoint and versionTag are populated during link time
var apiEndpoint string
var versionTag = "master"

// parseDBPath extracts --dbPath flag value from command line arguments
// regardless of where it appears (before or after subcommand).
// Returns empty string if not found.
func parseDBPath(args []string) string {
	for i, arg := range args {
		// Handle --dbPath=value
		if strings.HasPrefix(arg, "--dbPath=") {
			return strings.TrimPrefix(arg, "--dbPath=")
		}
		// Handle --dbPath value
		if arg == "--dbPath" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func main() {
	// Structured logs are for the daemon. Foreground commands only surface
	// them when debugging.
	applog.SetLevel(applog.LevelError)
	if log.IsDebug() {
		applog.SetLevel(applog.LevelDebug)
	}

	// --dbPath can appear after the subcommand (e.g. "readlater sync --dbPath=./custom.db")
	// and root.ParseFlags only parses flags before the subcommand.
	dbPath := parseDBPath(os.Args[1:])

	ctx, err := infra.Init(versionTag, apiEndpoint, dbPath)
	if err != nil {
		panic(errors.Wrap(err, "initializing context"))
	}
	defer ctx.DB.Close()

	root.Register(sync.NewCmd(*ctx))
	root.Register(daemon.NewCmd(*ctx))
	root.Register(pause.NewCmd(*ctx))
	root.Register(resume.NewCmd(*ctx))
	root.Register(status.NewCmd(*ctx))
	root.Register(read.NewCmd(*ctx))
	root.Register(ls.NewCmd(*ctx))
	root.Register(version.NewCmd(*ctx))

	if err := root.Execute(); err != nil {
		log.Errorf("%s\n", err.Error())
		os.Exit(1)
	}
}
