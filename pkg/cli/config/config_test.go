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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dnote/readlater/pkg/assert"
	"github.com/dnote/readlater/pkg/cli/lock"
	"github.com/dnote/readlater/pkg/dirs"
	"github.com/pkg/errors"
)

func testPaths(t *testing.T) dirs.Paths {
	tmp := t.TempDir()
	paths := dirs.Paths{
		Home:   tmp,
		Config: filepath.Join(tmp, "config"),
		Data:   filepath.Join(tmp, "data"),
		Cache:  filepath.Join(tmp, "cache"),
	}
	if err := paths.Ensure(); err != nil {
		t.Fatal(err)
	}

	return paths
}

func writeConfig(t *testing.T, paths dirs.Paths, content string) {
	if err := os.WriteFile(GetPath(paths), []byte(content), 0600); err != nil {
		t.Fatal(errors.Wrap(err, "writing config"))
	}
}

func TestInit(t *testing.T) {
	paths := testPaths(t)

	if err := Init(paths, "https://links.example.com"); err != nil {
		t.Fatal(err)
	}

	cf, err := Read(GetPath(paths))
	if err != nil {
		t.Fatal(err)
	}

	expected := Default()
	expected.APIEndpoint = "https://links.example.com"
	assert.DeepEqual(t, cf, expected, "config mismatch")

	// an existing file is left alone
	writeConfig(t, paths, "apiEndpoint: https://other.example.com\n")
	if err := Init(paths, ""); err != nil {
		t.Fatal(err)
	}
	cf, err = Read(GetPath(paths))
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, cf.APIEndpoint, "https://other.example.com", "endpoint mismatch")
}

func TestLoad(t *testing.T) {
	paths := testPaths(t)
	writeConfig(t, paths, `apiEndpoint: https://links.example.com
apiToken: file-token
pageSize: 500
assetFanout: 9
assetTypes: []
keepaliveInterval: 5s
retryMaxAttempts: 0
retryBaseDelay: 2s
retryMaxDelay: 1s
`)

	cf, err := Load(paths)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, cf.APIToken, "file-token", "token mismatch")
	assert.Equal(t, cf.PageSize, 100, "page size should be clamped")
	assert.Equal(t, cf.AssetFanout, 4, "fanout should be clamped")
	assert.Equal(t, len(cf.AssetTypes), 0, "empty asset types should mean all types")
	assert.Equal(t, cf.KeepaliveInterval, 5*time.Second, "keepalive mismatch")
	assert.Equal(t, cf.RequestTimeout, 30*time.Second, "request timeout should default")
	assert.Equal(t, cf.RetryMaxAttempts, 1, "attempts should be clamped")
	assert.Equal(t, cf.RetryMaxDelay, 2*time.Second, "max delay should not be below base delay")
	assert.Equal(t, cf.LockMode, lock.ModeAuto, "lock mode mismatch")
}

func TestLoadEnv(t *testing.T) {
	paths := testPaths(t)
	writeConfig(t, paths, "apiEndpoint: https://links.example.com\napiToken: file-token\npageSize: 50\n")

	env := "READLATER_API_TOKEN=env-file-token\nREADLATER_PAGE_SIZE=20\n"
	if err := os.WriteFile(filepath.Join(paths.Config, ".env"), []byte(env), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvPageSize, "30")

	cf, err := Load(paths)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, cf.APIEndpoint, "https://links.example.com", "endpoint mismatch")
	assert.Equal(t, cf.APIToken, "env-file-token", "env file should override the config file")
	assert.Equal(t, cf.PageSize, 30, "process env should override the env file")
}

func TestLoadInvalid(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "lock mode", content: "apiEndpoint: https://x.example.com\nlockMode: carrier-pigeon\n"},
		{name: "schedule", content: "apiEndpoint: https://x.example.com\nsyncSchedule: sometimes\n"},
		{name: "endpoint", content: "apiEndpoint: \"\"\n"},
		{name: "yaml", content: "apiEndpoint: [\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			paths := testPaths(t)
			writeConfig(t, paths, tc.content)

			_, err := Load(paths)
			assert.NotEqual(t, err, nil, "load should fail")
		})
	}
}
