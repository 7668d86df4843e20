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

// Package context defines readlater context
package context

import (
	"net/http"

	"github.com/dnote/readlater/pkg/cli/config"
	"github.com/dnote/readlater/pkg/cli/database"
	"github.com/dnote/readlater/pkg/clock"
	"github.com/dnote/readlater/pkg/dirs"
)

// ReadlaterCtx is a context holding the information of the current runtime
type ReadlaterCtx struct {
	Paths      dirs.Paths
	Version    string
	DB         *database.DB
	Config     config.Config
	Clock      clock.Clock
	HTTPClient *http.Client
}

// Redact replaces private information from the context with a set of
// placeholder values.
func Redact(ctx ReadlaterCtx) ReadlaterCtx {
	if ctx.Config.APIToken != "" {
		ctx.Config.APIToken = "1"
	} else {
		ctx.Config.APIToken = "0"
	}

	return ctx
}
