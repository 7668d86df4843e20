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

package utils

import (
	"testing"

	"github.com/dnote/readlater/pkg/assert"
)

func TestIsNumber(t *testing.T) {
	testCases := []struct {
		input    string
		expected bool
	}{
		{input: "42", expected: true},
		{input: "007", expected: true},
		{input: "", expected: false},
		{input: "-1", expected: false},
		{input: "4.2", expected: false},
		{input: "abc", expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, IsNumber(tc.input), tc.expected, "result mismatch")
		})
	}
}
