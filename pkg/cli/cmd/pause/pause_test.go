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

package pause

import (
	"os"
	"strings"
	"testing"

	"github.com/dnote/readlater/pkg/assert"
	"github.com/dnote/readlater/pkg/cli/context"
)

func TestPause(t *testing.T) {
	ctx := context.InitTestCtx(t)

	if err := newRun(ctx)(nil, nil); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(context.ControlDir(ctx.Paths))
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, len(entries), 1, "control message count mismatch")
	assert.Equal(t, strings.HasPrefix(entries[0].Name(), "pause-"), true, "control message name mismatch")
}
