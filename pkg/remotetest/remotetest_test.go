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

package remotetest

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/dnote/readlater/pkg/assert"
)

type listResponse struct {
	Count   int        `json:"count"`
	Next    *string    `json:"next"`
	Results []Bookmark `json:"results"`
}

func get(t *testing.T, s *Server, path, token string) *http.Response {
	req, err := http.NewRequest(http.MethodGet, s.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Token "+token)

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}

	return res
}

func TestListBookmarks(t *testing.T) {
	s := New("token")
	defer s.Close()

	modified := time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 5; i++ {
		s.AddBookmark(Bookmark{ID: i, URL: "https://example.com", DateModified: modified.Add(time.Duration(i) * time.Hour)})
	}
	s.AddBookmark(Bookmark{ID: 6, URL: "https://example.com", IsArchived: true, DateModified: modified})

	testCases := []struct {
		path    string
		count   int
		ids     []int64
		hasNext bool
	}{
		{path: "/api/bookmarks/?limit=2&offset=0", count: 5, ids: []int64{1, 2}, hasNext: true},
		{path: "/api/bookmarks/?limit=2&offset=4", count: 5, ids: []int64{5}, hasNext: false},
		{path: "/api/bookmarks/?limit=10&modified_since=2024-05-01T11:00:00Z", count: 3, ids: []int64{3, 4, 5}, hasNext: false},
		{path: "/api/bookmarks/archived/", count: 1, ids: []int64{6}, hasNext: false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			res := get(t, s, tc.path, "token")
			defer res.Body.Close()
			assert.StatusCodeEquals(t, res, http.StatusOK, "")

			var body listResponse
			if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}

			ids := []int64{}
			for _, b := range body.Results {
				ids = append(ids, b.ID)
			}

			assert.Equal(t, body.Count, tc.count, "count mismatch")
			assert.DeepEqual(t, ids, tc.ids, "ids mismatch")
			assert.Equal(t, body.Next != nil, tc.hasNext, "next mismatch")
		})
	}
}

func TestUnauthorized(t *testing.T) {
	s := New("token")
	defer s.Close()

	res := get(t, s, "/api/bookmarks/", "wrong")
	defer res.Body.Close()

	assert.StatusCodeEquals(t, res, http.StatusUnauthorized, "")
}

func TestRateLimit(t *testing.T) {
	s := New("token")
	defer s.Close()

	rl := NewRateLimiter(time.Hour, 2)
	s.SetRateLimit(rl)

	for i := 0; i < 2; i++ {
		res := get(t, s, "/api/bookmarks/", "token")
		res.Body.Close()
		assert.StatusCodeEquals(t, res, http.StatusOK, "request within burst")
	}

	res := get(t, s, "/api/bookmarks/", "token")
	res.Body.Close()
	assert.StatusCodeEquals(t, res, http.StatusTooManyRequests, "request over the limit")
	assert.Equal(t, res.Header.Get("Retry-After"), "3600", "Retry-After mismatch")
	assert.Equal(t, rl.Rejected(), 1, "rejected count mismatch")

	s.SetRateLimit(nil)

	res = get(t, s, "/api/bookmarks/", "token")
	res.Body.Close()
	assert.StatusCodeEquals(t, res, http.StatusOK, "request without a limit")
}
