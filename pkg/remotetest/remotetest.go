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

// Package remotetest provides an in-memory bookmark service that speaks the remote
// API, for use in tests.
package remotetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// Route names used for failure injection and request inspection
const (
	RouteListUnarchived = "list-unarchived"
	RouteListArchived   = "list-archived"
	RouteAssetIndex     = "asset-index"
	RouteAssetDownload  = "asset-download"
	RouteMarkRead       = "mark-read"
)

// Bookmark is a bookmark held by the fake service
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

// Asset is an asset held by the fake service
type Asset struct {
	ID          int64     `json:"id"`
	BookmarkID  int64     `json:"bookmark_id"`
	AssetType   string    `json:"asset_type"`
	ContentType string    `json:"content_type"`
	DisplayName string    `json:"display_name"`
	FileSize    int64     `json:"file_size"`
	Status      string    `json:"status"`
	DateCreated time.Time `json:"date_created"`
	Content     []byte    `json:"-"`
}

// Request is a request received by the fake service
type Request struct {
	Route  string
	Method string
	Path   string
	Query  url.Values
}

type failure struct {
	status    int
	malformed bool
	remaining int
}

// Server is a fake remote bookmark service
type Server struct {
	*httptest.Server

	// Token is the API token the server accepts
	Token string
	// Now returns the time used for modifications made through the API
	Now func() time.Time
	// OnRequest, if set, is called before a request is handled with the route
	// name and the number of requests received on that route so far.
	OnRequest func(route string, n int)

	mu            sync.Mutex
	bookmarks     map[int64]*Bookmark
	assets        map[int64][]*Asset
	failures      map[string]*failure
	assetFailures map[[2]int64]*failure
	requests      []Request
	limiter       *RateLimiter
}

// New starts a fake service accepting the given token. The caller must Close it.
func New(token string) *Server {
	s := &Server{
		Token:         token,
		Now:           func() time.Time { return time.Now().UTC() },
		bookmarks:     map[int64]*Bookmark{},
		assets:        map[int64][]*Asset{},
		failures:      map[string]*failure{},
		assetFailures: map[[2]int64]*failure{},
	}

	s.Server = httptest.NewServer(s.router())

	return s
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.authMiddleware)
	r.Use(s.limitMiddleware)

	r.Handle("/api/bookmarks/", s.track(RouteListUnarchived, s.listBookmarks(false))).Methods(http.MethodGet)
	r.Handle("/api/bookmarks/archived/", s.track(RouteListArchived, s.listBookmarks(true))).Methods(http.MethodGet)
	r.Handle("/api/bookmarks/{id:[0-9]+}/", s.track(RouteMarkRead, http.HandlerFunc(s.patchBookmark))).Methods(http.MethodPatch)
	r.Handle("/api/bookmarks/{id:[0-9]+}/assets/", s.track(RouteAssetIndex, http.HandlerFunc(s.listAssets))).Methods(http.MethodGet)
	r.Handle("/api/bookmarks/{id:[0-9]+}/assets/{assetID:[0-9]+}/download/", s.track(RouteAssetDownload, http.HandlerFunc(s.downloadAsset))).Methods(http.MethodGet)

	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token "+s.Token {
			http.Error(w, "Invalid token.", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// track records the request, runs the OnRequest hook and applies any injected failure
func (s *Server) track(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{Route: route, Method: r.Method, Path: r.URL.Path, Query: r.URL.Query()})
		n := 0
		for _, req := range s.requests {
			if req.Route == route {
				n++
			}
		}
		hook := s.OnRequest
		f := s.failures[route]
		var fail *failure
		if f != nil && f.remaining > 0 {
			f.remaining--
			fail = f
		}
		s.mu.Unlock()

		if hook != nil {
			hook(route, n)
		}

		if fail != nil {
			writeFailure(w, fail)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeFailure(w http.ResponseWriter, f *failure) {
	if f.malformed {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"count": "not a number", "results": [`))
		return
	}

	if f.status == http.StatusTooManyRequests || f.status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "0")
	}
	http.Error(w, http.StatusText(f.status), f.status)
}

// FailNext makes the next n requests on the given route respond with status
func (s *Server) FailNext(route string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[route] = &failure{status: status, remaining: n}
}

// BreakNext makes the next n requests on the given route respond with an
// unparsable JSON body
func (s *Server) BreakNext(route string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[route] = &failure{malformed: true, remaining: n}
}

// FailAsset makes the next n downloads of the given asset respond with status
func (s *Server) FailAsset(bookmarkID, assetID int64, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.assetFailures[[2]int64{bookmarkID, assetID}] = &failure{status: status, remaining: n}
}

// AddBookmark adds or replaces a bookmark
func (s *Server) AddBookmark(b Bookmark) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.TagNames == nil {
		b.TagNames = []string{}
	}
	s.bookmarks[b.ID] = &b
}

// UpdateBookmark applies fn to the stored bookmark with the given id
func (s *Server) UpdateBookmark(id int64, fn func(b *Bookmark)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.bookmarks[id]; ok {
		fn(b)
	}
}

// Bookmark returns a copy of the stored bookmark with the given id
func (s *Server) Bookmark(id int64) (Bookmark, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookmarks[id]
	if !ok {
		return Bookmark{}, false
	}

	return *b, true
}

// AddAsset adds an asset to the index of its bookmark
func (s *Server) AddAsset(a Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.Status == "" {
		a.Status = "complete"
	}
	if a.FileSize == 0 {
		a.FileSize = int64(len(a.Content))
	}
	s.assets[a.BookmarkID] = append(s.assets[a.BookmarkID], &a)
}

// UpdateAsset applies fn to the stored asset with the given ids
func (s *Server) UpdateAsset(bookmarkID, assetID int64, fn func(a *Asset)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.assets[bookmarkID] {
		if a.ID == assetID {
			fn(a)
		}
	}
}

// Requests returns the requests received so far
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	ret := make([]Request, len(s.requests))
	copy(ret, s.requests)

	return ret
}

// RequestsTo returns the requests received so far on the given route
func (s *Server) RequestsTo(route string) []Request {
	ret := []Request{}
	for _, r := range s.Requests() {
		if r.Route == route {
			ret = append(ret, r)
		}
	}

	return ret
}

// ResetRequests clears the request log
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func intParam(q url.Values, key string, def int) int {
	v, err := strconv.Atoi(q.Get(key))
	if err != nil {
		return def
	}

	return v
}

func (s *Server) nextURL(path string, limit, offset, count int, q url.Values) *string {
	if offset+limit >= count {
		return nil
	}

	next := url.Values{}
	for k, v := range q {
		next[k] = v
	}
	next.Set("limit", strconv.Itoa(limit))
	next.Set("offset", strconv.Itoa(offset+limit))

	ret := fmt.Sprintf("%s%s?%s", s.URL, path, next.Encode())
	return &ret
}

func (s *Server) listBookmarks(archived bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := intParam(q, "limit", 100)
		offset := intParam(q, "offset", 0)

		var since time.Time
		if v := q.Get("modified_since"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				http.Error(w, "invalid modified_since", http.StatusBadRequest)
				return
			}
			since = t
		}

		s.mu.Lock()
		matched := []Bookmark{}
		for _, b := range s.bookmarks {
			if b.IsArchived != archived {
				continue
			}
			if !since.IsZero() && b.DateModified.Before(since) {
				continue
			}
			matched = append(matched, *b)
		}
		s.mu.Unlock()

		sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

		results := []Bookmark{}
		if offset < len(matched) {
			end := offset + limit
			if end > len(matched) {
				end = len(matched)
			}
			results = matched[offset:end]
		}

		writeJSON(w, map[string]interface{}{
			"count":    len(matched),
			"next":     s.nextURL(r.URL.Path, limit, offset, len(matched), q),
			"previous": nil,
			"results":  results,
		})
	})
}

func pathID(r *http.Request, key string) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)[key], 10, 64)
	return id
}

func (s *Server) patchBookmark(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")

	var payload struct {
		Unread *bool `json:"unread"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	b, ok := s.bookmarks[id]
	if ok && payload.Unread != nil {
		b.Unread = *payload.Unread
		b.DateModified = s.Now()
	}
	var ret Bookmark
	if ok {
		ret = *b
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "Not found.", http.StatusNotFound)
		return
	}

	writeJSON(w, ret)
}

func (s *Server) listAssets(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	q := r.URL.Query()
	limit := intParam(q, "limit", 100)
	offset := intParam(q, "offset", 0)

	s.mu.Lock()
	_, ok := s.bookmarks[id]
	all := []Asset{}
	for _, a := range s.assets[id] {
		all = append(all, *a)
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "Not found.", http.StatusNotFound)
		return
	}

	results := []Asset{}
	if offset < len(all) {
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		results = all[offset:end]
	}

	writeJSON(w, map[string]interface{}{
		"count":    len(all),
		"next":     s.nextURL(r.URL.Path, limit, offset, len(all), q),
		"previous": nil,
		"results":  results,
	})
}

func (s *Server) downloadAsset(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	assetID := pathID(r, "assetID")

	s.mu.Lock()
	var found *Asset
	for _, a := range s.assets[id] {
		if a.ID == assetID {
			found = a
			break
		}
	}
	var fail *failure
	if f := s.assetFailures[[2]int64{id, assetID}]; f != nil && f.remaining > 0 {
		f.remaining--
		fail = f
	}
	s.mu.Unlock()

	if fail != nil {
		writeFailure(w, fail)
		return
	}
	if found == nil {
		http.Error(w, "Not found.", http.StatusNotFound)
		return
	}

	contentType := found.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(found.Content)
}
