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

package dirs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dnote/readlater/pkg/assert"
)

func TestFor(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/rl/config")
	t.Setenv("XDG_DATA_HOME", "/tmp/rl/data")
	t.Setenv("XDG_CACHE_HOME", "/tmp/rl/cache")
	Reload()
	defer Reload()

	p := For("readlater")

	assert.Equal(t, p.Config, "/tmp/rl/config/readlater", "config mismatch")
	assert.Equal(t, p.Data, "/tmp/rl/data/readlater", "data mismatch")
	assert.Equal(t, p.Cache, "/tmp/rl/cache/readlater", "cache mismatch")
}

func TestEnsure(t *testing.T) {
	root := t.TempDir()
	p := Paths{
		Config: filepath.Join(root, "config", "app"),
		Data:   filepath.Join(root, "data", "app"),
		Cache:  filepath.Join(root, "cache", "app"),
	}

	if err := p.Ensure(); err != nil {
		t.Fatal(err)
	}
	// a second call is a no-op
	if err := p.Ensure(); err != nil {
		t.Fatal(err)
	}

	for _, dir := range []string{p.Config, p.Data, p.Cache} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		assert.Equal(t, info.IsDir(), true, dir+" is not a directory")
	}
}
