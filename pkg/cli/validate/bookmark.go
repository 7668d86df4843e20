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

// Package validate checks user input before it reaches the local store
package validate

import (
	"strconv"

	"github.com/dnote/readlater/pkg/cli/utils"
	"github.com/pkg/errors"
)

// ErrBookmarkIDInvalid is an error for a bookmark id that is not a positive number
var ErrBookmarkIDInvalid = errors.New("The bookmark id must be a positive number")

// ErrReadProgressRange is an error for a reading progress outside of 0 to 100
var ErrReadProgressRange = errors.New("The reading progress must be between 0 and 100")

// ErrReadingModeUnknown is an error for an unsupported reading mode
var ErrReadingModeUnknown = errors.New("The reading mode is not supported")

// ReadingModes are the supported reading modes
var ReadingModes = []string{"original", "reader", "archive"}

// BookmarkID parses and validates a bookmark id
func BookmarkID(s string) (int64, error) {
	if !utils.IsNumber(s) {
		return 0, ErrBookmarkIDInvalid
	}

	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrBookmarkIDInvalid
	}

	return id, nil
}

// ReadProgress validates a reading progress percentage
func ReadProgress(n int) error {
	if n < 0 || n > 100 {
		return ErrReadProgressRange
	}

	return nil
}

// ReadingMode validates a reading mode. The empty mode is valid.
func ReadingMode(m string) error {
	if m == "" {
		return nil
	}

	for _, mode := range ReadingModes {
		if m == mode {
			return nil
		}
	}

	return ErrReadingModeUnknown
}
