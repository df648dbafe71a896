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
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/apicapture-go/event"
)

func ev(userID string) *event.Event {
	return &event.Event{UserID: userID}
}

func TestTryAppendRespectsCapacity(t *testing.T) {
	b := New(3)

	assert.True(t, b.TryAppend(ev("1")))
	assert.True(t, b.TryAppend(ev("2")))
	assert.True(t, b.TryAppend(ev("3")))
	assert.Equal(t, 3, b.Len())

	// Full: the append is rejected and the oldest events are retained.
	assert.False(t, b.TryAppend(ev("4")))
	assert.Equal(t, 3, b.Len())
	first := b.Peek(1)
	require.Len(t, first, 1)
	assert.Equal(t, "1", first[0].UserID)
}

func TestLenNeverExceedsCapacity(t *testing.T) {
	b := New(5)
	for i := 0; i < 100; i++ {
		b.TryAppend(ev(strconv.Itoa(i)))
		assert.LessOrEqual(t, b.Len(), 5)
	}
	assert.Equal(t, 5, b.Len())
}

func TestPeekDoesNotRemove(t *testing.T) {
	b := New(3)
	b.TryAppend(ev("1"))
	b.TryAppend(ev("2"))

	snapshot := b.Peek(2)
	require.Len(t, snapshot, 2)
	assert.Equal(t, "1", snapshot[0].UserID)
	assert.Equal(t, "2", snapshot[1].UserID)
	assert.Equal(t, 2, b.Len())

	// n larger than the buffer is clamped.
	assert.Len(t, b.Peek(10), 2)
	assert.Nil(t, b.Peek(0))
}

func TestTakeFirstRemovesInOrder(t *testing.T) {
	b := New(4)
	for _, id := range []string{"1", "2", "3", "4"} {
		require.True(t, b.TryAppend(ev(id)))
	}

	taken := b.TakeFirst(2)
	require.Len(t, taken, 2)
	assert.Equal(t, "1", taken[0].UserID)
	assert.Equal(t, "2", taken[1].UserID)
	assert.Equal(t, 2, b.Len())

	rest := b.TakeFirst(10)
	require.Len(t, rest, 2)
	assert.Equal(t, "3", rest[0].UserID)
	assert.Equal(t, "4", rest[1].UserID)
	assert.Equal(t, 0, b.Len())
	assert.Nil(t, b.TakeFirst(1))
}

func TestConcurrentAppends(t *testing.T) {
	b := New(50)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.TryAppend(ev("x"))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, b.Len())
}
