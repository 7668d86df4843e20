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

// Package readstatus uploads local read status changes to the remote service
package readstatus

import (
	"context"

	"github.com/dnote/readlater/pkg/cli/client"
	"github.com/dnote/readlater/pkg/cli/database"
	"github.com/dnote/readlater/pkg/cli/reconcile"
	"github.com/dnote/readlater/pkg/cli/retry"
	"github.com/dnote/readlater/pkg/log"
)

// Remote is the part of the remote service used by the Uploader
type Remote interface {
	MarkRead(ctx context.Context, bookmarkID int64) (client.Bookmark, error)
}

// Uploader uploads the read status of one bookmark at a time
type Uploader struct {
	DB      *database.DB
	Remote  Remote
	Retrier retry.Retrier
}

// Upload marks a bookmark as read on the remote. The local flag is cleared only
// once the remote has acknowledged the change; on any error it stays set for the
// next run.
func (u *Uploader) Upload(ctx context.Context, bookmarkID int64) (reconcile.Result, error) {
	var ack client.Bookmark
	err := u.Retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		ack, err = u.Remote.MarkRead(ctx, bookmarkID)
		return err
	})
	if err != nil {
		return reconcile.Unchanged, err
	}

	r, err := reconcile.AcknowledgeRead(u.DB, ack)
	if err != nil {
		return reconcile.Unchanged, retry.MarkPersistence(err)
	}

	log.WithFields(log.Fields{"bookmark": bookmarkID, "result": r.String()}).Debug("uploaded read status")

	return r, nil
}
