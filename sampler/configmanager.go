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
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	defaultRefreshInterval = 5 * time.Minute
	fetchTimeout           = 30 * time.Second
)

// FetchFunc reads the current sampling configuration from the collector.
// The raw response bytes are returned alongside the parsed snapshot so the
// manager can detect changes without comparing structures.
type FetchFunc func(ctx context.Context) (Config, []byte, error)

// ConfigSource is the read side of the sampling configuration.
type ConfigSource interface {
	Current() Config
}

type ConfigManager interface {
	ConfigSource
	Run()
	Stop()
}

// ConfigManagerImpl periodically refreshes the sampling configuration on its
// own goroutine. The run loop is the only fetcher, so refreshes never
// overlap; readers load the last-known-good snapshot and never block on an
// in-flight refresh.
type ConfigManagerImpl struct {
	done     chan struct{}
	logger   *zap.Logger
	fetch    FetchFunc
	interval time.Duration
	clock    clockwork.Clock
	lasthash uint64
	current  atomic.Pointer[Config]
}

var _ ConfigManager = (*ConfigManagerImpl)(nil)

func NewConfigManagerImpl(logger *zap.Logger, refreshInterval time.Duration, fetch FetchFunc, clock clockwork.Clock) *ConfigManagerImpl {
	if refreshInterval <= 0 {
		refreshInterval = defaultRefreshInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	m := &ConfigManagerImpl{
		done:     make(chan struct{}),
		logger:   logger.Named("sampling_config_manager"),
		fetch:    fetch,
		interval: refreshInterval,
		clock:    clock,
	}
	def := DefaultConfig()
	m.current.Store(&def)
	return m
}

// Current returns the last successfully fetched snapshot, or the fail-open
// default when nothing has been fetched yet.
func (m *ConfigManagerImpl) Current() Config {
	return *m.current.Load()
}

// Run drives the refresh loop until Stop is called. The first fetch happens
// immediately.
func (m *ConfigManagerImpl) Run() {
	m.logger.Info("Starting sampling config manager", zap.String("refresh_interval", m.interval.String()))
	m.refresh()
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			m.logger.Info("Stopping sampling config manager")
			return
		case <-ticker.Chan():
			m.refresh()
		}
	}
}

func (m *ConfigManagerImpl) Stop() {
	close(m.done)
}

func (m *ConfigManagerImpl) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	conf, raw, err := m.fetch(ctx)
	if err != nil {
		m.failOpen(err)
		return
	}
	if conf.FetchedAt.IsZero() {
		conf.FetchedAt = m.clock.Now()
	}
	m.current.Store(&conf)

	newhash := xxhash.Sum64(raw)
	if newhash == m.lasthash {
		m.logger.Debug("No change in sampling config", zap.Uint64("hash", newhash))
		return
	}
	m.lasthash = newhash
	m.logger.Info("Sampling config updated",
		zap.Uint64("hash", newhash),
		zap.Int("global_rate", conf.GlobalRate),
		zap.Int("user_rates", len(conf.UserRates)),
		zap.Int("company_rates", len(conf.CompanyRates)))
}

// failOpen keeps the previous per-identity rates but forces the global rate
// to 100 so a broken config path degrades to sampling everything.
func (m *ConfigManagerImpl) failOpen(err error) {
	conf := m.Current()
	conf.GlobalRate = MaxRate
	m.current.Store(&conf)
	m.logger.Warn("Cannot fetch sampling config, failing open to 100%",
		zap.Error(err))
}
