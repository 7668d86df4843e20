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

package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/dnote/readlater/pkg/assert"
	"github.com/dnote/readlater/pkg/cli/database"
	"github.com/fatih/color"
)

func TestBookmarkLine(t *testing.T) {
	color.NoColor = true

	testCases := []struct {
		name     string
		bookmark database.Bookmark
		expected string
	}{
		{
			name:     "title",
			bookmark: database.Bookmark{ID: 3, URL: "https://example.com", Title: "Example"},
			expected: "(3) Example\n",
		},
		{
			name:     "website title fallback",
			bookmark: database.Bookmark{ID: 4, URL: "https://example.com", WebsiteTitle: "Site", Unread: true},
			expected: "(4) Site [unread]\n",
		},
		{
			name:     "url fallback",
			bookmark: database.Bookmark{ID: 5, URL: "https://example.com", Archived: true, NeedsReadSync: true},
			expected: "(5) https://example.com [archived, pending]\n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			BookmarkLine(&buf, tc.bookmark)
			assert.Equal(t, buf.String(), tc.expected, "line mismatch")
		})
	}
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, FormatTime(time.Time{}), "never", "zero time mismatch")
	assert.Equal(t, strings.HasPrefix(FormatTime(time.Date(2024, time.May, 1, 12, 0, 0, 0, time.Local)), "May 1, 2024"), true, "format mismatch")
}
