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

package validate

import (
	"fmt"
	"testing"

	"github.com/dnote/readlater/pkg/assert"
)

func TestBookmarkID(t *testing.T) {
	testCases := []struct {
		input       string
		expectedID  int64
		expectedErr error
	}{
		{input: "12", expectedID: 12, expectedErr: nil},
		{input: "0", expectedID: 0, expectedErr: ErrBookmarkIDInvalid},
		{input: "-3", expectedID: 0, expectedErr: ErrBookmarkIDInvalid},
		{input: "abc", expectedID: 0, expectedErr: ErrBookmarkIDInvalid},
		{input: "99999999999999999999999", expectedID: 0, expectedErr: ErrBookmarkIDInvalid},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("input %q", tc.input), func(t *testing.T) {
			id, err := BookmarkID(tc.input)
			assert.Equal(t, err, tc.expectedErr, "error mismatch")
			assert.Equal(t, id, tc.expectedID, "id mismatch")
		})
	}
}

func TestReadProgress(t *testing.T) {
	assert.Equal(t, ReadProgress(0), nil, "0 should be valid")
	assert.Equal(t, ReadProgress(100), nil, "100 should be valid")
	assert.Equal(t, ReadProgress(101), ErrReadProgressRange, "101 should be invalid")
	assert.Equal(t, ReadProgress(-1), ErrReadProgressRange, "-1 should be invalid")
}

func TestReadingMode(t *testing.T) {
	assert.Equal(t, ReadingMode(""), nil, "empty mode should be valid")
	assert.Equal(t, ReadingMode("reader"), nil, "reader should be valid")
	assert.Equal(t, ReadingMode("sideways"), ErrReadingModeUnknown, "unknown mode should be invalid")
}
