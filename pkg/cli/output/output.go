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

// Package output provides functions to print informations on the terminal
// in a consistent manner
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dnote/readlater/pkg/cli/database"
	"github.com/dnote/readlater/pkg/cli/engine"
	"github.com/dnote/readlater/pkg/cli/log"
	"github.com/dnote/readlater/pkg/cli/progress"
)

const timeLayout = "Jan 2, 2006 3:04pm (MST)"

// FormatTime formats a time for display. The zero time is shown as "never".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	return t.Local().Format(timeLayout)
}

func bookmarkTitle(b database.Bookmark) string {
	for _, s := range []string{b.Title, b.WebsiteTitle} {
		if s := strings.TrimSpace(s); s != "" {
			return s
		}
	}

	return b.URL
}

// BookmarkLine prints a one-line summary of a bookmark
func BookmarkLine(w io.Writer, b database.Bookmark) {
	var flags []string
	if b.Unread {
		flags = append(flags, "unread")
	}
	if b.Archived {
		flags = append(flags, "archived")
	}
	if b.NeedsReadSync {
		flags = append(flags, "pending")
	}

	line := fmt.Sprintf("%s %s", log.ColorYellow.Sprintf("(%d)", b.ID), bookmarkTitle(b))
	if len(flags) > 0 {
		line = fmt.Sprintf("%s %s", line, log.ColorGray.Sprintf("[%s]", strings.Join(flags, ", ")))
	}

	fmt.Fprintln(w, line)
}

// Summary prints the summary of a finished sync
func Summary(s engine.Summary) {
	kind := "incremental"
	if s.Full {
		kind = "full"
	}

	log.Successf("%s sync complete in %s\n", kind, s.Duration.Round(time.Millisecond))
	log.Infof("bookmarks: %d processed, %d new, %d updated\n", s.Processed, s.Inserted, s.Updated)
	if s.AssetsDownloaded > 0 || s.AssetsFailed > 0 {
		log.Infof("assets: %d downloaded, %d failed\n", s.AssetsDownloaded, s.AssetsFailed)
	}
	if s.ReadUploaded > 0 || s.ReadFailed > 0 {
		log.Infof("read status: %d uploaded, %d failed\n", s.ReadUploaded, s.ReadFailed)
	}
}

// Progress returns an observer printing sync progress
func Progress() progress.Observer {
	return func(m progress.Message) {
		switch m.Kind {
		case progress.KindProgress:
			if m.Total > 0 {
				log.Printf("%s %d/%d\n", m.Phase, m.Current, m.Total)
			} else {
				log.Printf("%s %d\n", m.Phase, m.Current)
			}
		case progress.KindState:
			log.Debug("state: %s\n", m.State)
		case progress.KindError:
			log.Errorf("sync failed: %s\n", m.Error)
		case progress.KindLockUnavailable:
			log.Warnf("a sync is already running in another process\n")
		}
	}
}
