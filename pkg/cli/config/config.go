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

// Package config reads and writes the readlater configuration
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dnote/readlater/pkg/cli/assets"
	"github.com/dnote/readlater/pkg/cli/client"
	"github.com/dnote/readlater/pkg/cli/consts"
	"github.com/dnote/readlater/pkg/cli/keepalive"
	"github.com/dnote/readlater/pkg/cli/lock"
	"github.com/dnote/readlater/pkg/cli/retry"
	"github.com/dnote/readlater/pkg/cli/trigger"
	"github.com/dnote/readlater/pkg/cli/utils"
	"github.com/dnote/readlater/pkg/dirs"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Environment variables overriding the config file
const (
	EnvAPIEndpoint = "READLATER_API_ENDPOINT"
	EnvAPIToken    = "READLATER_API_TOKEN"
	EnvPageSize    = "READLATER_PAGE_SIZE"
)

const (
	// DefaultAPIEndpoint is the API endpoint written to a new config file
	DefaultAPIEndpoint = "http://localhost:9090"
	// MaxPageSize is the largest page size the remote accepts
	MaxPageSize = 100
)

// Config holds readlater configuration
type Config struct {
	APIEndpoint       string        `yaml:"apiEndpoint"`
	APIToken          string        `yaml:"apiToken"`
	PageSize          int           `yaml:"pageSize"`
	AssetFanout       int           `yaml:"assetFanout"`
	AssetTypes        []string      `yaml:"assetTypes"`
	SyncSchedule      string        `yaml:"syncSchedule"`
	KeepaliveInterval time.Duration `yaml:"keepaliveInterval"`
	RequestTimeout    time.Duration `yaml:"requestTimeout"`
	LockMode          string        `yaml:"lockMode"`
	LockLeaseTTL      time.Duration `yaml:"lockLeaseTTL"`
	RetryMaxAttempts  int           `yaml:"retryMaxAttempts"`
	RetryBaseDelay    time.Duration `yaml:"retryBaseDelay"`
	RetryMaxDelay     time.Duration `yaml:"retryMaxDelay"`
	LogFile           string        `yaml:"logFile"`
}

// Default returns the configuration of a new installation
func Default() Config {
	p := retry.DefaultPolicy()

	return Config{
		APIEndpoint:       DefaultAPIEndpoint,
		PageSize:          MaxPageSize,
		AssetFanout:       2,
		AssetTypes:        []string{assets.AssetTypeSnapshot},
		SyncSchedule:      trigger.DefaultSchedule,
		KeepaliveInterval: keepalive.DefaultInterval,
		RequestTimeout:    client.DefaultTimeout,
		LockMode:          lock.ModeAuto,
		LockLeaseTTL:      lock.DefaultLeaseTTL,
		RetryMaxAttempts:  p.MaxAttempts,
		RetryBaseDelay:    p.BaseDelay,
		RetryMaxDelay:     p.MaxDelay,
	}
}

// GetPath returns the path to the config file
func GetPath(paths dirs.Paths) string {
	return filepath.Join(paths.Config, consts.ConfigFilename)
}

func getEnvPath(paths dirs.Paths) string {
	return filepath.Join(paths.Config, consts.EnvFilename)
}

// Read reads the config file. Keys missing from the file take their default value.
func Read(path string) (Config, error) {
	ret := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return ret, errors.Wrap(err, "reading config file")
	}

	if err := yaml.Unmarshal(b, &ret); err != nil {
		return ret, errors.Wrap(err, "unmarshalling config")
	}

	return ret, nil
}

// Write writes the config to the given path
func Write(path string, cf Config) error {
	b, err := yaml.Marshal(cf)
	if err != nil {
		return errors.Wrap(err, "marshalling config into YAML")
	}

	if err := os.WriteFile(path, b, 0600); err != nil {
		return errors.Wrap(err, "writing the config file")
	}

	return nil
}

// Init writes a default config file if none exists
func Init(paths dirs.Paths, apiEndpoint string) error {
	path := GetPath(paths)

	ok, err := utils.FileExists(path)
	if err != nil {
		return errors.Wrap(err, "checking if config exists")
	}
	if ok {
		return nil
	}

	cf := Default()
	if apiEndpoint != "" {
		cf.APIEndpoint = apiEndpoint
	}

	return Write(path, cf)
}

// Load reads the config file and applies the environment overrides. Variables
// set in the process take precedence over the env file in the config directory.
func Load(paths dirs.Paths) (Config, error) {
	cf, err := Read(GetPath(paths))
	if err != nil {
		return cf, err
	}

	env, err := readEnvFile(getEnvPath(paths))
	if err != nil {
		return cf, err
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := env[key]
		return v, ok
	}

	if err := applyEnv(&cf, lookup); err != nil {
		return cf, err
	}
	if err := cf.Validate(); err != nil {
		return cf, err
	}

	return cf.normalize(), nil
}

func readEnvFile(path string) (map[string]string, error) {
	ok, err := utils.FileExists(path)
	if err != nil {
		return nil, errors.Wrap(err, "checking if env file exists")
	}
	if !ok {
		return map[string]string{}, nil
	}

	env, err := godotenv.Read(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading env file '%s'", path)
	}

	return env, nil
}

func applyEnv(cf *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAPIEndpoint); ok && v != "" {
		cf.APIEndpoint = v
	}
	if v, ok := lookup(EnvAPIToken); ok && v != "" {
		cf.APIToken = v
	}
	if v, ok := lookup(EnvPageSize); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "parsing %s", EnvPageSize)
		}
		cf.PageSize = n
	}

	return nil
}

// Validate returns an error for values that cannot be clamped to a usable value
func (c Config) Validate() error {
	if c.APIEndpoint == "" {
		return errors.New("apiEndpoint is empty")
	}

	switch c.LockMode {
	case "", lock.ModeAuto, lock.ModeFile, lock.ModeLease, lock.ModeNone:
	default:
		return errors.Errorf("unknown lockMode '%s'", c.LockMode)
	}

	if c.SyncSchedule != "" {
		if err := trigger.ValidateSchedule(c.SyncSchedule); err != nil {
			return errors.Wrap(err, "invalid syncSchedule")
		}
	}

	return nil
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}

	return v
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}

	return d
}

// normalize clamps numeric values into their allowed ranges and fills in
// missing values with defaults
func (c Config) normalize() Config {
	def := Default()

	if c.PageSize <= 0 {
		c.PageSize = def.PageSize
	}
	c.PageSize = clamp(c.PageSize, 1, MaxPageSize)
	c.AssetFanout = clamp(c.AssetFanout, 1, assets.MaxFanout)
	c.RetryMaxAttempts = clamp(c.RetryMaxAttempts, 1, retry.MaxAttemptsLimit)

	c.KeepaliveInterval = orDefault(c.KeepaliveInterval, def.KeepaliveInterval)
	c.RequestTimeout = orDefault(c.RequestTimeout, def.RequestTimeout)
	c.LockLeaseTTL = orDefault(c.LockLeaseTTL, def.LockLeaseTTL)
	c.RetryBaseDelay = orDefault(c.RetryBaseDelay, def.RetryBaseDelay)
	c.RetryMaxDelay = orDefault(c.RetryMaxDelay, def.RetryMaxDelay)
	if c.RetryMaxDelay < c.RetryBaseDelay {
		c.RetryMaxDelay = c.RetryBaseDelay
	}

	if c.LockMode == "" {
		c.LockMode = def.LockMode
	}
	if c.SyncSchedule == "" {
		c.SyncSchedule = def.SyncSchedule
	}

	return c
}

// RetryPolicy returns the retry policy described by the config
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.RetryMaxAttempts,
		BaseDelay:   c.RetryBaseDelay,
		MaxDelay:    c.RetryMaxDelay,
	}
}
