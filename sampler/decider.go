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
	"math/rand"
)

// Decider applies the two-stage sampling policy: a locally configured static
// percentage, then the adaptive per-identity rate from the current remote
// config. Both draws must pass for an event to be kept.
type Decider struct {
	staticPercentage int
	source           ConfigSource
	randFn           func() int
}

type DeciderOption func(*Decider)

// WithRand replaces the random source. fn must return a uniform value in
// [0, 100).
func WithRand(fn func() int) DeciderOption {
	return func(d *Decider) {
		d.randFn = fn
	}
}

func NewDecider(staticPercentage int, source ConfigSource, options ...DeciderOption) *Decider {
	d := &Decider{
		staticPercentage: clampRate(staticPercentage),
		source:           source,
		randFn:           func() int { return rand.Intn(MaxRate) },
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// Decide returns whether the event identified by userID/companyID should be
// kept, and if so the replay weight to record on it. The weight is the
// integer floor of 100 over the effective rate, so downstream aggregation
// can reconstruct true volume from the sampled subset.
func (d *Decider) Decide(userID, companyID string) (keep bool, weight int) {
	if d.randFn() >= d.staticPercentage {
		return false, 0
	}
	rate := clampRate(d.source.Current().RateFor(userID, companyID))
	if rate <= MinRate {
		// rate 0 means never keep; bail out before the division below.
		return false, 0
	}
	if rate < d.randFn() {
		return false, 0
	}
	return true, MaxRate / rate
}
