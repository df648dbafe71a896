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
	"maps"
	"time"
)

// Sample rates are percentages in [0, 100].
const (
	MinRate = 0
	MaxRate = 100
)

// Config is one whole-snapshot sampling configuration as fetched from the
// collector. Snapshots are replaced wholesale on refresh and are never
// mutated after publication.
type Config struct {
	GlobalRate   int            `json:"globalRate" yaml:"globalRate"`
	UserRates    map[string]int `json:"userRates,omitempty" yaml:"userRates,omitempty"`
	CompanyRates map[string]int `json:"companyRates,omitempty" yaml:"companyRates,omitempty"`
	FetchedAt    time.Time      `json:"fetchedAt,omitempty" yaml:"fetchedAt,omitempty"`
}

// DefaultConfig is the fail-open configuration: sample everything.
func DefaultConfig() Config {
	return Config{GlobalRate: MaxRate}
}

// NewConfig builds a snapshot from wire data, clamping every rate to
// [MinRate, MaxRate].
func NewConfig(globalRate int, userRates, companyRates map[string]int, fetchedAt time.Time) Config {
	return Config{
		GlobalRate:   clampRate(globalRate),
		UserRates:    clampRates(userRates),
		CompanyRates: clampRates(companyRates),
		FetchedAt:    fetchedAt,
	}
}

// RateFor returns the effective sample rate for the given identity. A
// per-user override wins, then a per-company override, then the global rate.
func (c Config) RateFor(userID, companyID string) int {
	if userID != "" {
		if rate, ok := c.UserRates[userID]; ok {
			return rate
		}
	}
	if companyID != "" {
		if rate, ok := c.CompanyRates[companyID]; ok {
			return rate
		}
	}
	return c.GlobalRate
}

func (c Config) Equals(other Config) bool {
	return c.GlobalRate == other.GlobalRate &&
		maps.Equal(c.UserRates, other.UserRates) &&
		maps.Equal(c.CompanyRates, other.CompanyRates)
}

func clampRate(rate int) int {
	if rate < MinRate {
		return MinRate
	}
	if rate > MaxRate {
		return MaxRate
	}
	return rate
}

func clampRates(rates map[string]int) map[string]int {
	if rates == nil {
		return nil
	}
	clamped := make(map[string]int, len(rates))
	for k, v := range rates {
		clamped[k] = clampRate(v)
	}
	return clamped
}
