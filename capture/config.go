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
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config contains the static configuration for a capture instance, loaded
// once at startup.
type Config struct {
	// ApplicationID authenticates against the collector.
	ApplicationID string `yaml:"application_id"`
	// CollectorEndpoint is the base URL of the remote collector.
	CollectorEndpoint string `yaml:"collector_endpoint"`
	// MaxBufferedEvents bounds the in-memory event buffer; reaching it
	// triggers an immediate flush, and overflowing it drops events.
	MaxBufferedEvents int `yaml:"max_buffered_events"`
	// MaxBatchTime bounds how long an accepted event may sit in the buffer
	// before a flush attempt, and is also the retry cadence after a failed
	// delivery.
	MaxBatchTime time.Duration `yaml:"max_batch_time"`
	// ConfigRefreshInterval is how often the sampling config is refetched.
	ConfigRefreshInterval time.Duration `yaml:"config_refresh_interval"`
	// StaticSamplePercentage is the local circuit-breaker sampling stage,
	// applied before the remotely configured rates.
	StaticSamplePercentage int `yaml:"static_sample_percentage"`
	// RequestBodyProcessing enables body capture in host integrations.
	RequestBodyProcessing bool `yaml:"request_body_processing"`
	// Debug switches logging to a verbose development logger.
	Debug bool `yaml:"debug"`
}

func DefaultConfig() Config {
	return Config{
		MaxBufferedEvents:      1000,
		MaxBatchTime:           10 * time.Second,
		ConfigRefreshInterval:  5 * time.Minute,
		StaticSamplePercentage: 100,
	}
}

func (c *Config) Validate() error {
	var errs error
	if c.ApplicationID == "" {
		errs = multierr.Append(errs, errors.New("application_id must be set"))
	}
	if c.CollectorEndpoint == "" {
		errs = multierr.Append(errs, errors.New("collector_endpoint must be set"))
	}
	if c.MaxBufferedEvents <= 0 {
		errs = multierr.Append(errs, errors.New("max_buffered_events must be positive"))
	}
	if c.MaxBatchTime <= 0 {
		errs = multierr.Append(errs, errors.New("max_batch_time must be positive"))
	}
	if c.ConfigRefreshInterval < 0 {
		errs = multierr.Append(errs, errors.New("config_refresh_interval must be greater than or equal to 0"))
	}
	if c.StaticSamplePercentage < 0 || c.StaticSamplePercentage > 100 {
		errs = multierr.Append(errs, errors.New("static_sample_percentage must be between 0 and 100"))
	}
	return errs
}

// LoadConfig reads a yaml config file, applying defaults for unset fields.
// Durations accept the usual forms ("10s", "5m").
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("reading config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return c, fmt.Errorf("unmarshalling config file: %w", err)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &c,
		TagName:    "yaml",
	})
	if err != nil {
		return c, err
	}
	if err := dec.Decode(raw); err != nil {
		return c, fmt.Errorf("decoding config file: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}
