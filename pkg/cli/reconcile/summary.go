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

package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dnote/readlater/pkg/cli/client"
	"github.com/dnote/readlater/pkg/cli/database"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// textDelta returns the number of characters inserted and deleted going from a to b
func textDelta(dmp *diffmatchpatch.DiffMatchPatch, a, b string) (int, int) {
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var ins, del int
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			ins += len([]rune(d.Text))
		case diffmatchpatch.DiffDelete:
			del += len([]rune(d.Text))
		}
	}

	return ins, del
}

func sortedTags(tags []string) string {
	s := append([]string{}, tags...)
	sort.Strings(s)

	return strings.Join(s, ",")
}

// summarizeChange describes which remote-owned fields differ between the local
// record and an incoming one, e.g. "title(+4 -2) unread"
func summarizeChange(local database.Bookmark, remote client.Bookmark) string {
	dmp := diffmatchpatch.New()

	texts := []struct {
		name string
		a, b string
	}{
		{"url", local.URL, remote.URL},
		{"title", local.Title, remote.Title},
		{"description", local.Description, remote.Description},
		{"notes", local.Notes, remote.Notes},
		{"website_title", local.WebsiteTitle, remote.WebsiteTitle},
		{"website_description", local.WebsiteDescription, remote.WebsiteDescription},
	}

	parts := []string{}
	for _, t := range texts {
		if t.a == t.b {
			continue
		}

		ins, del := textDelta(dmp, t.a, t.b)
		parts = append(parts, fmt.Sprintf("%s(+%d -%d)", t.name, ins, del))
	}

	if local.Archived != remote.IsArchived {
		parts = append(parts, "archived")
	}
	if local.Unread != remote.Unread {
		parts = append(parts, "unread")
	}
	if local.Shared != remote.Shared {
		parts = append(parts, "shared")
	}
	if sortedTags(local.Tags) != sortedTags(remote.TagNames) {
		parts = append(parts, "tags")
	}

	if len(parts) == 0 {
		return "date_modified"
	}

	return strings.Join(parts, " ")
}
