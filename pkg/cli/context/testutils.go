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
	"testing"

	"github.com/dnote/readlater/pkg/cli/config"
	"github.com/dnote/readlater/pkg/cli/database"
	"github.com/dnote/readlater/pkg/clock"
	"github.com/dnote/readlater/pkg/dirs"
	"github.com/pkg/errors"
)

// getDefaultTestPaths creates default test paths under a temp directory
func getDefaultTestPaths(t *testing.T) dirs.Paths {
	tmpDir := t.TempDir()
	return dirs.Paths{
		Home:   tmpDir,
		Config: filepath.Join(tmpDir, "config"),
		Data:   filepath.Join(tmpDir, "data"),
		Cache:  filepath.Join(tmpDir, "cache"),
	}
}

// InitTestCtx initializes a test context with a migrated file-based database
// at the expected path and a temporary directory for all paths
func InitTestCtx(t *testing.T) ReadlaterCtx {
	paths := getDefaultTestPaths(t)

	if err := InitDirs(paths); err != nil {
		t.Fatal(errors.Wrap(err, "creating test directories"))
	}

	db := database.InitTestFileDBRaw(t, DBPath(paths))

	return ReadlaterCtx{
		DB:      db,
		Paths:   paths,
		Version: "test",
		Config:  config.Default(),
		Clock:   clock.NewMock(), // Use a mock clock to test times
	}
}
