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

package infra

import (
	"fmt"
	"testing"

	"github.com/dnote/readlater/pkg/assert"
	"github.com/dnote/readlater/pkg/cli/client"
	"github.com/dnote/readlater/pkg/cli/config"
	"github.com/dnote/readlater/pkg/cli/context"
	"github.com/dnote/readlater/pkg/cli/lock"
	"github.com/dnote/readlater/pkg/dirs"
	"github.com/pkg/errors"
)

func setupDirs(t *testing.T) {
	tmpDir := t.TempDir()

	t.Setenv("XDG_CONFIG_HOME", fmt.Sprintf("%s/config", tmpDir))
	t.Setenv("XDG_DATA_HOME", fmt.Sprintf("%s/data", tmpDir))
	t.Setenv("XDG_CACHE_HOME", fmt.Sprintf("%s/cache", tmpDir))
	dirs.Reload()
	t.Cleanup(dirs.Reload)
}

func TestInit_APIEndpointChange(t *testing.T) {
	setupDirs(t)

	// First init.
	endpoint1 := "http://127.0.0.1:9091"
	ctx, err := Init("test-version", endpoint1, "")
	if err != nil {
		t.Fatal(errors.Wrap(err, "initializing"))
	}
	defer ctx.DB.Close()
	assert.Equal(t, ctx.Config.APIEndpoint, endpoint1, "should use endpoint1 API endpoint")

	cf, err := config.Read(config.GetPath(ctx.Paths))
	if err != nil {
		t.Fatal(errors.Wrap(err, "reading config"))
	}
	assert.Equal(t, cf.APIEndpoint, endpoint1, "config should be written with endpoint1")

	// Second init with different endpoint.
	endpoint2 := "http://127.0.0.1:9092"
	ctx2, err := Init("test-version", endpoint2, "")
	if err != nil {
		t.Fatal(errors.Wrap(err, "initializing with override"))
	}
	defer ctx2.DB.Close()
	assert.Equal(t, ctx2.Config.APIEndpoint, endpoint2, "should use endpoint2 API endpoint")

	// The config file shouldn't have been modified.
	cf2, err := config.Read(config.GetPath(ctx2.Paths))
	if err != nil {
		t.Fatal(errors.Wrap(err, "reading config after override"))
	}
	assert.Equal(t, cf2.APIEndpoint, endpoint1, "config should still have original endpoint, not endpoint2")
}

func TestInitCustomDBPath(t *testing.T) {
	setupDirs(t)
	dbPath := fmt.Sprintf("%s/custom.db", t.TempDir())

	ctx, err := Init("test-version", "", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.DB.Close()

	assert.Equal(t, ctx.DB.Filepath, dbPath, "database path mismatch")
}

func TestNewEngine(t *testing.T) {
	ctx := context.InitTestCtx(t)

	_, err := NewEngine(ctx, EngineOptions{})
	assert.Equal(t, err, client.ErrNoToken, "engine needs a token")

	ctx.Config.APIToken = "token"
	ctx.Config.LockMode = lock.ModeLease

	s, err := NewEngine(ctx, EngineOptions{Backgroundable: true})
	if err != nil {
		t.Fatal(err)
	}

	caps := s.Capabilities()
	assert.Equal(t, caps.LockMode, lock.ModeLease, "lock mode mismatch")
	assert.Equal(t, caps.CrossContextLock, true, "leases are cross-context")
	assert.Equal(t, caps.Backgroundable, true, "backgroundable mismatch")
	assert.Equal(t, caps.PeriodicTrigger, false, "periodic trigger mismatch")
}
