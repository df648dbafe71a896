// Copyright 2024 CardinalHQ, Inc
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fixedSource struct {
	conf Config
}

func (s fixedSource) Current() Config { return s.conf }

// scriptedRand returns the queued draws in order.
func scriptedRand(draws ...int) func() int {
	i := 0
	return func() int {
		d := draws[i]
		i++
		return d
	}
}

func TestDecide(t *testing.T) {
	cases := []struct {
		name           string
		staticPct      int
		conf           Config
		userID         string
		companyID      string
		draws          []int
		expectedKeep   bool
		expectedWeight int
	}{
		{
			name:         "static stage rejects",
			staticPct:    50,
			conf:         DefaultConfig(),
			draws:        []int{50},
			expectedKeep: false,
		},
		{
			name:           "static stage passes, global rate keeps",
			staticPct:      50,
			conf:           Config{GlobalRate: 100},
			draws:          []int{49, 99},
			expectedKeep:   true,
			expectedWeight: 1,
		},
		{
			name:         "adaptive stage rejects",
			staticPct:    100,
			conf:         Config{GlobalRate: 30},
			draws:        []int{0, 31},
			expectedKeep: false,
		},
		{
			name:           "adaptive stage keeps on equality",
			staticPct:      100,
			conf:           Config{GlobalRate: 30},
			draws:          []int{0, 30},
			expectedKeep:   true,
			expectedWeight: 3,
		},
		{
			name:           "weight is the floor of 100 over the rate",
			staticPct:      100,
			conf:           Config{GlobalRate: 33},
			draws:          []int{0, 0},
			expectedKeep:   true,
			expectedWeight: 3,
		},
		{
			name:           "rate 1 yields weight 100",
			staticPct:      100,
			conf:           Config{GlobalRate: 1},
			draws:          []int{0, 1},
			expectedKeep:   true,
			expectedWeight: 100,
		},
		{
			name:           "user override wins over company and global",
			staticPct:      100,
			conf:           Config{GlobalRate: 100, UserRates: map[string]int{"alice": 20}, CompanyRates: map[string]int{"acme": 80}},
			userID:         "alice",
			companyID:      "acme",
			draws:          []int{0, 20},
			expectedKeep:   true,
			expectedWeight: 5,
		},
		{
			name:         "rate zero never keeps even on a zero draw",
			staticPct:    100,
			conf:         Config{GlobalRate: 0},
			draws:        []int{0},
			expectedKeep: false,
		},
		{
			name:         "user override of zero never keeps",
			staticPct:    100,
			conf:         Config{GlobalRate: 100, UserRates: map[string]int{"alice": 0}},
			userID:       "alice",
			draws:        []int{0},
			expectedKeep: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDecider(tc.staticPct, fixedSource{conf: tc.conf}, WithRand(scriptedRand(tc.draws...)))
			keep, weight := d.Decide(tc.userID, tc.companyID)
			assert.Equal(t, tc.expectedKeep, keep)
			assert.Equal(t, tc.expectedWeight, weight)
		})
	}
}

func TestDecideDistribution(t *testing.T) {
	d := NewDecider(100, fixedSource{conf: Config{GlobalRate: 50}})

	kept := 0
	const runs = 100_000
	for i := 0; i < runs; i++ {
		if keep, _ := d.Decide("", ""); keep {
			kept++
		}
	}
	// rate >= r2 with integer draws in [0,100) keeps 51 of 100 values.
	assert.InDelta(t, runs*51/100, kept, runs*2/100)
}
