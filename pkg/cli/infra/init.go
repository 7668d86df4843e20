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

// Package infra provides operations and definitions for the
// local infrastructure for readlater
package infra

import (
	"github.com/dnote/readlater/pkg/cli/client"
	"github.com/dnote/readlater/pkg/cli/config"
	"github.com/dnote/readlater/pkg/cli/consts"
	"github.com/dnote/readlater/pkg/cli/context"
	"github.com/dnote/readlater/pkg/cli/database"
	"github.com/dnote/readlater/pkg/cli/engine"
	"github.com/dnote/readlater/pkg/cli/keepalive"
	"github.com/dnote/readlater/pkg/cli/lock"
	"github.com/dnote/readlater/pkg/cli/log"
	"github.com/dnote/readlater/pkg/cli/progress"
	"github.com/dnote/readlater/pkg/clock"
	"github.com/dnote/readlater/pkg/dirs"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// RunEFunc is a function type of readlater commands
type RunEFunc func(*cobra.Command, []string) error

func getDBPath(paths dirs.Paths, customPath string) string {
	if customPath != "" {
		return customPath
	}

	return context.DBPath(paths)
}

// Init initializes the readlater environment and returns a new context.
// apiEndpoint, if set, overrides the configured endpoint for this run without
// changing the config file, except when the file is first created.
func Init(versionTag, apiEndpoint, dbPath string) (*context.ReadlaterCtx, error) {
	paths := dirs.For(consts.AppName)

	if err := initFiles(paths, apiEndpoint); err != nil {
		return nil, errors.Wrap(err, "initializing files")
	}

	db, err := database.Open(getDBPath(paths, dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to db")
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "running migration")
	}

	cf, err := config.Load(paths)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "reading config")
	}
	if apiEndpoint != "" {
		cf.APIEndpoint = apiEndpoint
	}

	ctx := context.ReadlaterCtx{
		Paths:      paths,
		Version:    versionTag,
		DB:         db,
		Config:     cf,
		Clock:      clock.New(),
		HTTPClient: client.NewRateLimitedHTTPClient(),
	}

	log.Debug("context: %+v\n", context.Redact(ctx))

	return &ctx, nil
}

// initFiles creates, if necessary, the readlater directories and config file
func initFiles(paths dirs.Paths, apiEndpoint string) error {
	if err := context.InitDirs(paths); err != nil {
		return errors.Wrap(err, "creating the readlater dirs")
	}
	if err := config.Init(paths, apiEndpoint); err != nil {
		return errors.Wrap(err, "generating the config file")
	}

	return nil
}

// NewClient returns a client for the configured remote
func NewClient(ctx context.ReadlaterCtx) *client.Client {
	c := client.New(ctx.Config.APIEndpoint, ctx.Config.APIToken, ctx.Version)
	if ctx.HTTPClient != nil {
		c.HTTPClient = ctx.HTTPClient
	}
	c.Timeout = ctx.Config.RequestTimeout

	return c
}

// NewLocks returns the lock coordinator for the configured lock mode
func NewLocks(ctx context.ReadlaterCtx) (lock.Coordinator, error) {
	return lock.New(ctx.Config.LockMode, lock.Options{
		Dir:      context.LockDir(ctx.Paths),
		DB:       ctx.DB,
		Clock:    ctx.Clock,
		LeaseTTL: ctx.Config.LockLeaseTTL,
	})
}

// Heartbeat returns the heartbeat file touched by running syncs
func Heartbeat(ctx context.ReadlaterCtx) keepalive.HeartbeatFile {
	return keepalive.HeartbeatFile{
		Path:  context.HeartbeatPath(ctx.Paths),
		Clock: ctx.Clock,
	}
}

// EngineOptions describes the host an engine runs in
type EngineOptions struct {
	// Backgroundable is set when the engine runs in the daemon
	Backgroundable bool
	// PeriodicTrigger is set when a schedule triggers runs
	PeriodicTrigger bool
}

// NewEngine builds a scheduler from the context
func NewEngine(ctx context.ReadlaterCtx, opts EngineOptions) (*engine.Scheduler, error) {
	if ctx.Config.APIToken == "" {
		return nil, client.ErrNoToken
	}

	locks, err := NewLocks(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "initializing locks")
	}

	hb := Heartbeat(ctx)
	cf := ctx.Config

	s := engine.New(engine.Params{
		DB:                ctx.DB,
		Remote:            NewClient(ctx),
		Locks:             locks,
		LockName:          consts.LockName,
		Reporter:          progress.New(ctx.Clock, progress.DefaultBuffer),
		Clock:             ctx.Clock,
		Policy:            cf.RetryPolicy(),
		PageSize:          cf.PageSize,
		AssetFanout:       cf.AssetFanout,
		AssetTypes:        cf.AssetTypes,
		KeepaliveInterval: cf.KeepaliveInterval,
		Heartbeat:         hb.Beat,
		Backgroundable:    opts.Backgroundable,
		PeriodicTrigger:   opts.PeriodicTrigger,
	})

	return s, nil
}
