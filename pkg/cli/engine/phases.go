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

package engine

import (
	"context"

	"github.com/dnote/readlater/pkg/cli/client"
	"github.com/dnote/readlater/pkg/cli/database"
	"github.com/dnote/readlater/pkg/cli/reconcile"
	"github.com/dnote/readlater/pkg/cli/retry"
	"github.com/dnote/readlater/pkg/log"
	"github.com/pkg/errors"
)

type listFunc func(ctx context.Context, opts client.ListOptions) (client.Page, error)

// listPhase describes one of the two bookmark listing phases
type listPhase struct {
	name   string
	list   listFunc
	offset func(c *database.Cursor) *int
}

func (s *Scheduler) syncUnarchived(ctx context.Context, r *run) error {
	return s.syncList(ctx, r, listPhase{
		name:   "unarchived",
		list:   s.p.Remote.ListUnarchived,
		offset: func(c *database.Cursor) *int { return &c.UnarchivedOffset },
	})
}

func (s *Scheduler) syncArchived(ctx context.Context, r *run) error {
	return s.syncList(ctx, r, listPhase{
		name:   "archived",
		list:   s.p.Remote.ListArchived,
		offset: func(c *database.Cursor) *int { return &c.ArchivedOffset },
	})
}

// listRetrier persists the attempt count and the last error after every failed
// fetch so that a crash during backoff resumes with the count it had.
func (s *Scheduler) listRetrier(r *run) retry.Retrier {
	return retry.Retrier{
		Policy: s.p.Policy,
		Start:  r.cursor.RetryCount,
		Sleep:  s.p.Sleep,
		OnFailure: func(attempt int, err error) error {
			log.WithFields(log.Fields{
				"attempt": attempt,
				"class":   retry.Classify(err).String(),
			}).ErrorWrap(err, "fetching bookmarks")

			r.cursor.RetryCount = attempt
			r.cursor.LastSyncError = err.Error()
			if sErr := r.cursor.Save(s.p.DB); sErr != nil {
				return retry.MarkPersistence(sErr)
			}

			return nil
		},
	}
}

// syncList pages through a listing from the persisted offset. Each page is
// applied and the offset advanced in a single transaction.
func (s *Scheduler) syncList(ctx context.Context, r *run, ph listPhase) error {
	for {
		if err := s.checkpoint(ctx); err != nil {
			return err
		}

		offset := *ph.offset(&r.cursor)
		opts := client.ListOptions{
			Limit:         s.p.PageSize,
			Offset:        offset,
			ModifiedSince: r.cursor.RunModifiedSince,
		}

		var page client.Page
		err := s.listRetrier(r).Do(ctx, func(ctx context.Context) error {
			var err error
			page, err = ph.list(ctx, opts)
			return err
		})
		if err != nil {
			return errors.Wrapf(err, "listing %s bookmarks at offset %d", ph.name, offset)
		}

		if len(page.Results) == 0 {
			return nil
		}

		if err := s.applyPage(r, ph, page); err != nil {
			return err
		}

		s.setProgress(*ph.offset(&r.cursor), page.Count)

		if !page.HasNext() {
			return nil
		}
	}
}

func (s *Scheduler) applyPage(r *run, ph listPhase, page client.Page) error {
	c := r.cursor
	*ph.offset(&c) += len(page.Results)
	c.RetryCount = 0
	c.LastSyncError = ""

	results := make([]reconcile.Result, len(page.Results))
	err := s.p.DB.WithTx(func(tx *database.DB) error {
		for i, b := range page.Results {
			res, err := reconcile.Upsert(tx, b)
			if err != nil {
				return err
			}
			results[i] = res
		}

		return c.Save(tx)
	})
	if err != nil {
		return retry.MarkPersistence(errors.Wrapf(err, "applying %s page at offset %d", ph.name, *ph.offset(&r.cursor)))
	}
	r.cursor = c

	for i, res := range results {
		r.summary.Processed++

		switch res {
		case reconcile.Inserted:
			r.summary.Inserted++
		case reconcile.Updated:
			r.summary.Updated++
		}
		if res.Changed() {
			s.touch(page.Results[i].ID)
		}
	}

	log.WithFields(log.Fields{
		"phase":  ph.name,
		"offset": *ph.offset(&r.cursor),
		"count":  page.Count,
	}).Debug("applied page")

	return nil
}

// syncAssets downloads the assets of every bookmark flagged for it. A bookmark
// whose assets fail keeps its flag and is picked up again by the next run.
func (s *Scheduler) syncAssets(ctx context.Context, r *run) error {
	total, err := database.CountNeedingAssetSync(s.p.DB)
	if err != nil {
		return retry.MarkPersistence(err)
	}

	var afterID int64
	var done int
	for {
		ids, err := database.BookmarksNeedingAssetSync(s.p.DB, afterID, s.p.PageSize)
		if err != nil {
			return retry.MarkPersistence(err)
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			if err := s.checkpoint(ctx); err != nil {
				return err
			}

			res, err := s.downloader.SyncBookmark(ctx, id)
			if err != nil {
				return errors.Wrapf(err, "syncing assets of bookmark %d", id)
			}

			r.summary.AssetsDownloaded += res.Downloaded
			r.summary.AssetsFailed += res.Failed

			done++
			s.setProgress(done, total)
			afterID = id
		}
	}

	return s.refreshCursor(r)
}

// syncReadStatus uploads local read intents. Errors other than authentication
// or persistence failures leave the intent pending and move on.
func (s *Scheduler) syncReadStatus(ctx context.Context, r *run) error {
	total, err := database.CountNeedingReadSync(s.p.DB)
	if err != nil {
		return retry.MarkPersistence(err)
	}

	var afterID int64
	var done int
	for {
		ids, err := database.BookmarksNeedingReadSync(s.p.DB, afterID, s.p.PageSize)
		if err != nil {
			return retry.MarkPersistence(err)
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			if err := s.checkpoint(ctx); err != nil {
				return err
			}

			res, err := s.uploader.Upload(ctx, id)
			if err != nil {
				if retry.IsFatal(err) {
					return errors.Wrapf(err, "uploading read status of bookmark %d", id)
				}

				log.WithFields(log.Fields{"bookmark": id}).ErrorWrap(err, "uploading read status")
				r.summary.ReadFailed++
			} else {
				r.summary.ReadUploaded++
				if res.Changed() {
					s.touch(id)
				}
			}

			done++
			s.setProgress(done, total)
			afterID = id
		}
	}

	return s.refreshCursor(r)
}

func (s *Scheduler) refreshCursor(r *run) error {
	if err := r.cursor.RefreshCounts(s.p.DB); err != nil {
		return retry.MarkPersistence(err)
	}
	if err := r.cursor.Save(s.p.DB); err != nil {
		return retry.MarkPersistence(err)
	}

	return nil
}
