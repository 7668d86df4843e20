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

package daemon

import (
	stdctx "context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dnote/readlater/pkg/cli/context"
	"github.com/dnote/readlater/pkg/cli/infra"
	"github.com/dnote/readlater/pkg/cli/log"
	"github.com/dnote/readlater/pkg/cli/progress"
	"github.com/dnote/readlater/pkg/cli/trigger"
	applog "github.com/dnote/readlater/pkg/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var example = `
  readlater daemon`

// NewCmd returns a new daemon command
func NewCmd(ctx context.ReadlaterCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "daemon",
		Short:   "Keep bookmarks in sync in the background",
		Example: example,
		RunE:    newRun(ctx),
	}

	return cmd
}

func newLogger(ctx context.ReadlaterCtx) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   ctx.LogPath(),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
}

func logMessage(m progress.Message) {
	fields := applog.Fields{"kind": string(m.Kind)}

	switch m.Kind {
	case progress.KindProgress:
		fields["phase"] = m.Phase
		fields["current"] = m.Current
		fields["total"] = m.Total
		applog.WithFields(fields).Debug("sync progress")
	case progress.KindError:
		fields["retained"] = m.Retained
		applog.WithFields(fields).Warn(m.Error)
	case progress.KindLockUnavailable:
		applog.WithFields(fields).Info("sync running in another process")
	}
}

// Run hosts the sync engine until c is done. Syncs are triggered on the
// configured schedule and by control messages. The structured log goes to a
// rotating file for the lifetime of the daemon.
func Run(c stdctx.Context, ctx context.ReadlaterCtx) error {
	logger := newLogger(ctx)
	defer logger.Close()

	applog.SetOutput(logger)
	defer applog.SetOutput(nil)

	s, err := infra.NewEngine(ctx, infra.EngineOptions{Backgroundable: true, PeriodicTrigger: true})
	if err != nil {
		return errors.Wrap(err, "initializing sync")
	}
	s.Reporter().Subscribe(logMessage)
	defer s.Reporter().Close()

	periodic, err := trigger.NewPeriodic(ctx.Config.SyncSchedule, func() {
		if !s.RequestSync(c) {
			applog.Debug("skipping scheduled sync, one is already running")
		}
	})
	if err != nil {
		return errors.Wrap(err, "initializing schedule")
	}

	listener := &trigger.Listener{
		Dir: context.ControlDir(ctx.Paths),
		Handle: func(k trigger.Kind) {
			var ok bool
			switch k {
			case trigger.KindRequest:
				ok = s.RequestSync(c)
			case trigger.KindPause:
				ok = s.Pause()
			case trigger.KindResume:
				ok = s.Resume()
			}

			applog.WithFields(applog.Fields{"kind": string(k), "applied": ok}).Info("control message")
		},
	}
	if err := listener.Start(); err != nil {
		return errors.Wrap(err, "listening for control messages")
	}

	periodic.Start()

	caps := s.Capabilities()
	applog.WithFields(applog.Fields{
		"schedule":           periodic.Spec(),
		"lock_mode":          caps.LockMode,
		"cross_context_lock": caps.CrossContextLock,
	}).Info("daemon started")

	s.RequestSync(c)

	<-c.Done()

	// no session may start once the triggers are stopped
	periodic.Stop()
	listener.Close()
	s.Wait()

	if err := infra.Heartbeat(ctx).Clear(); err != nil {
		applog.ErrorWrap(err, "clearing heartbeat")
	}
	applog.Info("daemon stopped")

	return nil
}

func newRun(ctx context.ReadlaterCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		c, stop := signal.NotifyContext(stdctx.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		applog.SetLevel(applog.LevelInfo)
		if log.IsDebug() {
			applog.SetLevel(applog.LevelDebug)
		}

		log.Infof("daemon started, syncing on '%s'. logs: %s\n", ctx.Config.SyncSchedule, ctx.LogPath())

		if err := Run(c, ctx); err != nil {
			return errors.Wrap(err, "running daemon")
		}

		log.Success("daemon stopped\n")

		return nil
	}
}
