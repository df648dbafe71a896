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

package capture

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// FlushScheduler guarantees a buffered event is flushed within the maximum
// batch latency even with no further traffic. At most one timer is live at
// a time; EnsureScheduled and Cancel are both idempotent.
type FlushScheduler struct {
	mu    sync.Mutex
	clock clockwork.Clock
	delay time.Duration
	fire  func()
	timer clockwork.Timer
	armed bool
}

func NewFlushScheduler(clock clockwork.Clock, delay time.Duration, fire func()) *FlushScheduler {
	return &FlushScheduler{
		clock: clock,
		delay: delay,
		fire:  fire,
	}
}

// EnsureScheduled arms the timer if it is not already armed.
func (s *FlushScheduler) EnsureScheduled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed {
		return
	}
	s.armed = true
	s.timer = s.clock.AfterFunc(s.delay, s.fired)
}

// Cancel stops a pending timer if one is armed. Cancellation is best-effort:
// a timer that has already fired cannot be unfired, and the fire callback
// must tolerate running against an already-emptied buffer.
func (s *FlushScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed {
		return
	}
	s.timer.Stop()
	s.timer = nil
	s.armed = false
}

// Armed reports whether a timer is currently live.
func (s *FlushScheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

func (s *FlushScheduler) fired() {
	s.mu.Lock()
	s.armed = false
	s.timer = nil
	s.mu.Unlock()
	s.fire()
}
