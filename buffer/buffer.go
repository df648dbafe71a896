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

package buffer

import (
	"sync"

	"github.com/cardinalhq/apicapture-go/event"
)

// Buffer is a capacity-bounded, insertion-ordered collection of accepted
// events. Once at capacity further appends are rejected and the oldest
// events are retained. All operations are mutually exclusive.
type Buffer struct {
	sync.Mutex
	capacity int
	events   []*event.Event
}

func New(capacity int) *Buffer {
	return &Buffer{
		capacity: capacity,
		events:   make([]*event.Event, 0, capacity),
	}
}

// TryAppend adds ev at the end of the buffer. It returns false without
// modifying the buffer when the buffer is full.
func (b *Buffer) TryAppend(ev *event.Event) bool {
	b.Lock()
	defer b.Unlock()
	if len(b.events) >= b.capacity {
		return false
	}
	b.events = append(b.events, ev)
	return true
}

// Peek returns a copy of the first n events without removing them. n is
// clamped to the current length.
func (b *Buffer) Peek(n int) []*event.Event {
	b.Lock()
	defer b.Unlock()
	if n > len(b.events) {
		n = len(b.events)
	}
	if n <= 0 {
		return nil
	}
	snapshot := make([]*event.Event, n)
	copy(snapshot, b.events[:n])
	return snapshot
}

// TakeFirst removes and returns the first n events. n is clamped to the
// current length.
func (b *Buffer) TakeFirst(n int) []*event.Event {
	b.Lock()
	defer b.Unlock()
	if n > len(b.events) {
		n = len(b.events)
	}
	if n <= 0 {
		return nil
	}
	taken := make([]*event.Event, n)
	copy(taken, b.events[:n])
	b.events = append(b.events[:0], b.events[n:]...)
	return taken
}

func (b *Buffer) Len() int {
	b.Lock()
	defer b.Unlock()
	return len(b.events)
}

func (b *Buffer) Capacity() int {
	return b.capacity
}
