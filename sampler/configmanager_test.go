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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedFetch struct {
	results []fetchResult
	calls   int
}

type fetchResult struct {
	conf Config
	raw  []byte
	err  error
}

func (s *scriptedFetch) fetch(_ context.Context) (Config, []byte, error) {
	idx := s.calls
	if idx > len(s.results)-1 {
		idx = len(s.results) - 1
	}
	s.calls++
	r := s.results[idx]
	return r.conf, r.raw, r.err
}

func TestRefreshReplacesSnapshotWholesale(t *testing.T) {
	fetched := NewConfig(25, map[string]int{"alice": 10}, nil, time.Now())
	fetcher := &scriptedFetch{results: []fetchResult{
		{conf: fetched, raw: []byte(`{"sample_rate":25}`)},
	}}
	m := NewConfigManagerImpl(zap.NewNop(), time.Minute, fetcher.fetch, clockwork.NewFakeClock())

	assert.Equal(t, MaxRate, m.Current().GlobalRate, "default before first fetch")
	m.refresh()

	got := m.Current()
	assert.Equal(t, 25, got.GlobalRate)
	assert.Equal(t, 10, got.UserRates["alice"])
}

func TestRefreshFailureFailsOpen(t *testing.T) {
	fetcher := &scriptedFetch{results: []fetchResult{
		{conf: NewConfig(25, map[string]int{"alice": 10}, nil, time.Now()), raw: []byte(`a`)},
		{err: errors.New("connection refused")},
	}}
	m := NewConfigManagerImpl(zap.NewNop(), time.Minute, fetcher.fetch, clockwork.NewFakeClock())

	m.refresh()
	require.Equal(t, 25, m.Current().GlobalRate)

	// Two consecutive failures must each leave the global rate forced to
	// 100, while per-identity overrides survive.
	m.refresh()
	got := m.Current()
	assert.Equal(t, MaxRate, got.GlobalRate)
	assert.Equal(t, 10, got.UserRates["alice"])

	m.refresh()
	assert.Equal(t, MaxRate, m.Current().GlobalRate)
}

func TestRefreshRecoversAfterFailure(t *testing.T) {
	fetcher := &scriptedFetch{results: []fetchResult{
		{err: errors.New("boom")},
		{conf: NewConfig(5, nil, nil, time.Now()), raw: []byte(`{"sample_rate":5}`)},
	}}
	m := NewConfigManagerImpl(zap.NewNop(), time.Minute, fetcher.fetch, clockwork.NewFakeClock())

	m.refresh()
	assert.Equal(t, MaxRate, m.Current().GlobalRate)

	m.refresh()
	assert.Equal(t, 5, m.Current().GlobalRate)
}

func TestRunStop(t *testing.T) {
	fetcher := &scriptedFetch{results: []fetchResult{
		{conf: DefaultConfig(), raw: []byte(`{}`)},
	}}
	clock := clockwork.NewFakeClock()
	m := NewConfigManagerImpl(zap.NewNop(), time.Minute, fetcher.fetch, clock)

	done := make(chan struct{})
	go func() {
		m.Run()
		close(done)
	}()

	// The loop fetches once at startup and then waits on its ticker.
	clock.BlockUntil(1)
	assert.Equal(t, 1, fetcher.calls)

	m.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("config manager did not stop")
	}
}
