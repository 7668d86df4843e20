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

// Package assets downloads the snapshot content of bookmarks for offline reading
package assets

import (
	"context"
	"sync"

	"github.com/dnote/readlater/pkg/cli/client"
	"github.com/dnote/readlater/pkg/cli/database"
	"github.com/dnote/readlater/pkg/cli/reconcile"
	"github.com/dnote/readlater/pkg/cli/retry"
	"github.com/dnote/readlater/pkg/clock"
	"github.com/dnote/readlater/pkg/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxFanout is the largest number of concurrent downloads per bookmark
	MaxFanout = 4
	// DefaultIndexLimit is the page size used when listing an asset index
	DefaultIndexLimit = 100
	// AssetTypeSnapshot is the type of archived HTML snapshots
	AssetTypeSnapshot = "snapshot"
	// remoteStatusComplete is the remote status of an asset that can be downloaded.
	// An empty status is treated the same.
	remoteStatusComplete = "complete"
)

// Remote is the part of the remote service used by the Downloader
type Remote interface {
	ListAssetIndex(ctx context.Context, bookmarkID int64, limit int) ([]client.AssetMeta, error)
	DownloadAsset(ctx context.Context, bookmarkID, assetID int64) ([]byte, error)
}

// Downloader fetches the assets of one bookmark at a time
type Downloader struct {
	DB      *database.DB
	Remote  Remote
	Clock   clock.Clock
	Retrier retry.Retrier
	// Fanout bounds concurrent downloads for a bookmark. It is clamped to 1..MaxFanout.
	Fanout int
	// AssetTypes restricts downloads to the given types. Empty means all types.
	AssetTypes []string
	// IndexLimit is the page size used when listing an asset index
	IndexLimit int
}

// BookmarkResult is the outcome of syncing the assets of a bookmark
type BookmarkResult struct {
	Downloaded int
	Failed     int
	// Outstanding is the number of assets of the bookmark still not complete
	Outstanding int
	// IndexFailed is set when the asset index could not be fetched
	IndexFailed bool
}

func (d *Downloader) fanout() int {
	switch {
	case d.Fanout < 1:
		return 1
	case d.Fanout > MaxFanout:
		return MaxFanout
	}

	return d.Fanout
}

func (d *Downloader) indexLimit() int {
	if d.IndexLimit < 1 || d.IndexLimit > DefaultIndexLimit {
		return DefaultIndexLimit
	}

	return d.IndexLimit
}

func (d *Downloader) wanted(a client.AssetMeta) bool {
	if len(d.AssetTypes) == 0 {
		return true
	}

	for _, t := range d.AssetTypes {
		if t == a.AssetType {
			return true
		}
	}

	return false
}

// SyncBookmark indexes the assets of a bookmark and downloads every one that is
// not complete locally. Assets the remote has not finished producing are
// recorded as pending and left for a later run. A failed asset is marked as such and does not stop the
// others. The returned error is non-nil only for failures that must abort the
// whole run.
func (d *Downloader) SyncBookmark(ctx context.Context, bookmarkID int64) (BookmarkResult, error) {
	var ret BookmarkResult
	l := log.WithFields(log.Fields{"bookmark": bookmarkID})

	var index []client.AssetMeta
	err := d.Retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		index, err = d.Remote.ListAssetIndex(ctx, bookmarkID, d.indexLimit())
		return err
	})
	if err != nil {
		if retry.IsFatal(err) {
			return ret, err
		}

		l.ErrorWrap(err, "fetching asset index")
		ret.IndexFailed = true
		ret.Failed = 1
		return ret, nil
	}

	notReady := map[int64]bool{}
	for _, a := range index {
		if !d.wanted(a) {
			continue
		}
		if a.Status != "" && a.Status != remoteStatusComplete {
			notReady[a.ID] = true
		}

		if _, err := reconcile.UpsertAsset(d.DB, a); err != nil {
			return ret, retry.MarkPersistence(err)
		}
	}

	local, err := database.ListAssets(d.DB, bookmarkID)
	if err != nil {
		return ret, retry.MarkPersistence(err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.fanout())

	for _, a := range local {
		if a.Status == database.AssetComplete || notReady[a.ID] {
			continue
		}

		a := a
		g.Go(func() error {
			return d.download(gctx, &mu, &ret, a)
		})
	}

	if err := g.Wait(); err != nil {
		return ret, err
	}

	outstanding, err := reconcile.FinishAssetSync(d.DB, bookmarkID)
	if err != nil {
		return ret, retry.MarkPersistence(err)
	}
	ret.Outstanding = outstanding

	return ret, nil
}

func (d *Downloader) download(ctx context.Context, mu *sync.Mutex, ret *BookmarkResult, a database.Asset) error {
	var content []byte
	err := d.Retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		content, err = d.Remote.DownloadAsset(ctx, a.BookmarkID, a.ID)
		return err
	})

	mu.Lock()
	defer mu.Unlock()

	if err != nil {
		if retry.IsFatal(err) || ctx.Err() != nil {
			return err
		}

		log.WithFields(log.Fields{
			"bookmark": a.BookmarkID,
			"asset":    a.ID,
		}).ErrorWrap(err, "downloading asset")

		if err := reconcile.MarkAssetFailure(d.DB, a.BookmarkID, a.ID); err != nil {
			return retry.MarkPersistence(err)
		}
		ret.Failed++

		return nil
	}

	if err := reconcile.RecordAssetContent(d.DB, a.BookmarkID, a.ID, content, d.Clock.Now()); err != nil {
		return retry.MarkPersistence(errors.Wrap(err, "storing asset"))
	}
	ret.Downloaded++

	return nil
}
