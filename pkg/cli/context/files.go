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

package context

import (
	"path/filepath"

	"github.com/dnote/readlater/pkg/cli/consts"
	"github.com/dnote/readlater/pkg/cli/utils"
	"github.com/dnote/readlater/pkg/dirs"
	"github.com/pkg/errors"
)

// DBPath returns the path to the database file
func DBPath(paths dirs.Paths) string {
	return filepath.Join(paths.Data, consts.DBFileName)
}

// LockDir returns the directory holding lock files
func LockDir(paths dirs.Paths) string {
	return filepath.Join(paths.Data, consts.LockDirName)
}

// ControlDir returns the directory receiving control messages
func ControlDir(paths dirs.Paths) string {
	return filepath.Join(paths.Data, consts.ControlDirName)
}

// HeartbeatPath returns the path to the keepalive heartbeat file
func HeartbeatPath(paths dirs.Paths) string {
	return filepath.Join(paths.Data, consts.HeartbeatFilename)
}

// LogPath returns the path to the daemon log file
func (ctx ReadlaterCtx) LogPath() string {
	if ctx.Config.LogFile != "" {
		return ctx.Config.LogFile
	}

	return filepath.Join(ctx.Paths.Cache, consts.DaemonLogFilename)
}

// InitDirs creates the readlater directories if they don't already exist.
func InitDirs(paths dirs.Paths) error {
	if err := paths.Ensure(); err != nil {
		return errors.Wrap(err, "initializing base dirs")
	}

	for _, dir := range []string{LockDir(paths), ControlDir(paths)} {
		if err := utils.EnsureDir(dir); err != nil {
			return errors.Wrapf(err, "initializing '%s'", dir)
		}
	}

	return nil
}
