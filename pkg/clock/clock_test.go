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

package clock

import (
	"fmt"
	"testing"
	"time"

	"github.com/dnote/readlater/pkg/assert"
)

func TestMockAdd(t *testing.T) {
	c := NewMock()
	start := c.Now()

	c.Add(90 * time.Minute)

	assert.Equal(t, c.Now().Sub(start), 90*time.Minute, "elapsed mismatch")
}

func TestSameDay(t *testing.T) {
	testCases := []struct {
		a        time.Time
		b        time.Time
		expected bool
	}{
		{
			a:        time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
			b:        time.Date(2024, time.May, 1, 23, 59, 59, 0, time.UTC),
			expected: true,
		},
		{
			a:        time.Date(2024, time.May, 1, 23, 59, 59, 0, time.UTC),
			b:        time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC),
			expected: false,
		},
		{
			a:        time.Date(2023, time.May, 1, 12, 0, 0, 0, time.UTC),
			b:        time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC),
			expected: false,
		},
		{
			// 23:30 UTC on May 1 is already May 2 in UTC+2
			a:        time.Date(2024, time.May, 1, 23, 30, 0, 0, time.UTC),
			b:        time.Date(2024, time.May, 2, 8, 0, 0, 0, time.FixedZone("UTC+2", 2*60*60)),
			expected: true,
		},
	}

	for idx, tc := range testCases {
		t.Run(fmt.Sprintf("test case %d", idx), func(t *testing.T) {
			assert.Equal(t, SameDay(tc.a, tc.b), tc.expected, "result mismatch")
		})
	}
}
