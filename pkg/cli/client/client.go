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

// Package client provides interfaces for interacting with the remote bookmark service
// and the data structures for its responses
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dnote/readlater/pkg/log"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// ErrContentTypeMismatch is an error for a response whose Content-Type is not the expected one
var ErrContentTypeMismatch = errors.New("content type mismatch")

// ErrMalformedResponse is an error for a response body that cannot be understood
var ErrMalformedResponse = errors.New("malformed response")

// ErrNoToken is returned when a request is attempted without an API token
var ErrNoToken = errors.New("no api token configured")

// HTTPError represents an HTTP error response from the server
type HTTPError struct {
	StatusCode int
	Message    string
	// RetryAfter is the delay requested by the server, if any
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf(`response %d "%s"`, e.StatusCode, e.Message)
}

// IsAuth returns true if the error is an authentication or authorization failure
func (e *HTTPError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

var contentTypeApplicationJSON = "application/json"

const (
	// clientRateLimitPerSecond is the max requests per second the client will make
	clientRateLimitPerSecond = 50
	// clientRateLimitBurst is the burst capacity for rate limiting
	clientRateLimitBurst = 100

	// DefaultTimeout bounds every request, including reading the body
	DefaultTimeout = 30 * time.Second
)

// rateLimitedTransport wraps an http.RoundTripper with rate limiting
type rateLimitedTransport struct {
	transport http.RoundTripper
	limiter   *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.transport.RoundTrip(req)
}

// NewRateLimitedHTTPClient creates an HTTP client with rate limiting
func NewRateLimitedHTTPClient() *http.Client {
	interval := time.Second / time.Duration(clientRateLimitPerSecond)

	transport := &rateLimitedTransport{
		transport: http.DefaultTransport,
		limiter:   rate.NewLimiter(rate.Every(interval), clientRateLimitBurst),
	}
	return &http.Client{
		Transport: transport,
	}
}

// Client talks to the remote bookmark service
type Client struct {
	Endpoint   string
	Token      string
	Version    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New returns a client for the service at the given endpoint, using a rate limited
// HTTP client and the default request timeout.
func New(endpoint, token, version string) *Client {
	return &Client{
		Endpoint:   strings.TrimRight(endpoint, "/"),
		Token:      token,
		Version:    version,
		HTTPClient: NewRateLimitedHTTPClient(),
		Timeout:    DefaultTimeout,
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}

	return http.DefaultClient
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}

	return DefaultTimeout
}

func (c *Client) getReq(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	endpoint := fmt.Sprintf("%s%s", c.Endpoint, path)

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, r)
	if err != nil {
		return nil, errors.Wrap(err, "constructing http request")
	}

	req.Header.Set("User-Agent", fmt.Sprintf("readlater/%s", c.Version))
	req.Header.Set("Authorization", fmt.Sprintf("Token %s", c.Token))
	if body != nil {
		req.Header.Set("Content-Type", contentTypeApplicationJSON)
	}

	return req, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}

	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}

	return time.Duration(secs) * time.Second
}

// checkRespErr returns an *HTTPError if the given response indicates an error
func checkRespErr(res *http.Response) error {
	if res.StatusCode < 400 {
		return nil
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrapf(err, "server responded with %d but client could not read the response body", res.StatusCode)
	}

	return &HTTPError{
		StatusCode: res.StatusCode,
		Message:    strings.TrimRight(string(body), "\n"),
		RetryAfter: parseRetryAfter(res.Header.Get("Retry-After")),
	}
}

func checkContentType(res *http.Response, expected string) error {
	got := res.Header.Get("Content-Type")
	if i := strings.Index(got, ";"); i != -1 {
		got = got[:i]
	}

	if strings.TrimSpace(got) != expected {
		return errors.Wrapf(ErrContentTypeMismatch, "got: '%s' want: '%s'. Did you configure your endpoint correctly?", got, expected)
	}

	return nil
}

// doReq does an authorized http request to the given path in the api endpoint and
// returns the whole response body. The path should include the preceding slash.
// An empty expectedContentType skips the Content-Type check.
func (c *Client) doReq(ctx context.Context, method, path string, body []byte, expectedContentType string) ([]byte, error) {
	if c.Token == "" {
		return nil, ErrNoToken
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	req, err := c.getReq(ctx, method, path, body)
	if err != nil {
		return nil, errors.Wrap(err, "getting request")
	}

	log.WithFields(log.Fields{"method": method, "path": path}).Debug("http request")

	res, err := c.httpClient().Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "making http request")
	}
	defer res.Body.Close()

	log.WithFields(log.Fields{"method": method, "path": path, "status": res.StatusCode}).Debug("http response")

	if err = checkRespErr(res); err != nil {
		return nil, errors.Wrap(err, "server responded with an error")
	}

	if expectedContentType != "" {
		if err = checkContentType(res, expectedContentType); err != nil {
			return nil, errors.Wrap(err, "unexpected Content-Type")
		}
	}

	ret, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading the response body")
	}

	return ret, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload interface{}, dest interface{}) error {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "marshalling payload")
		}
		body = b
	}

	resp, err := c.doReq(ctx, method, path, body, contentTypeApplicationJSON)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(resp, dest); err != nil {
		return errors.Wrapf(ErrMalformedResponse, "unmarshalling the payload: %v", err)
	}

	return nil
}

// Bookmark is a bookmark as returned by the remote
type Bookmark struct {
	ID                 int64     `json:"id"`
	URL                string    `json:"url"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	Notes              string    `json:"notes"`
	WebsiteTitle       string    `json:"website_title"`
	WebsiteDescription string    `json:"website_description"`
	IsArchived         bool      `json:"is_archived"`
	Unread             bool      `json:"unread"`
	Shared             bool      `json:"shared"`
	TagNames           []string  `json:"tag_names"`
	DateAdded          time.Time `json:"date_added"`
	DateModified       time.Time `json:"date_modified"`
}

func (b Bookmark) validate() error {
	if b.ID <= 0 {
		return errors.Wrapf(ErrMalformedResponse, "invalid bookmark id %d", b.ID)
	}
	if b.URL == "" {
		return errors.Wrapf(ErrMalformedResponse, "bookmark %d has no url", b.ID)
	}

	return nil
}

// Page is one page of a paginated bookmark listing
type Page struct {
	Count    int        `json:"count"`
	Next     *string    `json:"next"`
	Previous *string    `json:"previous"`
	Results  []Bookmark `json:"results"`
}

// HasNext returns true if the remote reports a following page
func (p Page) HasNext() bool {
	return p.Next != nil && *p.Next != ""
}

// ListOptions are the pagination and filter parameters of a bookmark listing
type ListOptions struct {
	Limit  int
	Offset int
	// ModifiedSince restricts the listing to bookmarks modified after the given
	// time. The zero value lists everything.
	ModifiedSince time.Time
}

func (o ListOptions) query() string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(o.Limit))
	q.Set("offset", strconv.Itoa(o.Offset))
	if !o.ModifiedSince.IsZero() {
		q.Set("modified_since", o.ModifiedSince.UTC().Format(time.RFC3339))
	}

	return q.Encode()
}

func (c *Client) listBookmarks(ctx context.Context, path string, opts ListOptions) (Page, error) {
	var ret Page

	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("%s?%s", path, opts.query()), nil, &ret); err != nil {
		return ret, err
	}

	for _, b := range ret.Results {
		if err := b.validate(); err != nil {
			return ret, err
		}
	}

	return ret, nil
}

// ListUnarchived fetches one page of bookmarks that are not archived
func (c *Client) ListUnarchived(ctx context.Context, opts ListOptions) (Page, error) {
	ret, err := c.listBookmarks(ctx, "/api/bookmarks/", opts)
	if err != nil {
		return ret, errors.Wrap(err, "listing unarchived bookmarks")
	}

	return ret, nil
}

// ListArchived fetches one page of archived bookmarks
func (c *Client) ListArchived(ctx context.Context, opts ListOptions) (Page, error) {
	ret, err := c.listBookmarks(ctx, "/api/bookmarks/archived/", opts)
	if err != nil {
		return ret, errors.Wrap(err, "listing archived bookmarks")
	}

	return ret, nil
}

// AssetMeta describes an asset in the remote asset index of a bookmark
type AssetMeta struct {
	ID          int64     `json:"id"`
	BookmarkID  int64     `json:"bookmark_id"`
	AssetType   string    `json:"asset_type"`
	ContentType string    `json:"content_type"`
	DisplayName string    `json:"display_name"`
	FileSize    int64     `json:"file_size"`
	Status      string    `json:"status"`
	DateCreated time.Time `json:"date_created"`
}

type assetPage struct {
	Count   int         `json:"count"`
	Next    *string     `json:"next"`
	Results []AssetMeta `json:"results"`
}

// ListAssetIndex fetches the whole asset index of a bookmark, requesting at most
// limit entries per call.
func (c *Client) ListAssetIndex(ctx context.Context, bookmarkID int64, limit int) ([]AssetMeta, error) {
	ret := []AssetMeta{}

	offset := 0
	for {
		var page assetPage
		path := fmt.Sprintf("/api/bookmarks/%d/assets/?limit=%d&offset=%d", bookmarkID, limit, offset)
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, errors.Wrapf(err, "listing assets of bookmark %d", bookmarkID)
		}

		for _, a := range page.Results {
			if a.ID <= 0 {
				return nil, errors.Wrapf(ErrMalformedResponse, "invalid asset id %d for bookmark %d", a.ID, bookmarkID)
			}
			a.BookmarkID = bookmarkID
			ret = append(ret, a)
		}

		if page.Next == nil || *page.Next == "" || len(page.Results) == 0 {
			break
		}
		offset += len(page.Results)
	}

	return ret, nil
}

// DownloadAsset fetches the content of an asset
func (c *Client) DownloadAsset(ctx context.Context, bookmarkID, assetID int64) ([]byte, error) {
	path := fmt.Sprintf("/api/bookmarks/%d/assets/%d/download/", bookmarkID, assetID)

	ret, err := c.doReq(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, errors.Wrapf(err, "downloading asset %d of bookmark %d", assetID, bookmarkID)
	}

	return ret, nil
}

type markReadPayload struct {
	Unread bool `json:"unread"`
}

// MarkRead marks a bookmark as read on the remote and returns the updated bookmark
func (c *Client) MarkRead(ctx context.Context, bookmarkID int64) (Bookmark, error) {
	var ret Bookmark

	path := fmt.Sprintf("/api/bookmarks/%d/", bookmarkID)
	if err := c.doJSON(ctx, http.MethodPatch, path, markReadPayload{Unread: false}, &ret); err != nil {
		return ret, errors.Wrapf(err, "marking bookmark %d as read", bookmarkID)
	}

	if err := ret.validate(); err != nil {
		return ret, errors.Wrapf(err, "marking bookmark %d as read", bookmarkID)
	}

	return ret, nil
}
