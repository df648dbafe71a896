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

package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cardinalhq/apicapture-go/event"
	"github.com/cardinalhq/apicapture-go/sampler"
)

const (
	eventsPath   = "/v1/events/batch"
	configPath   = "/v1/config"
	apiKeyHeader = "x-cardinalhq-api-key"
)

// Client is the outbound surface to the remote collector.
type Client interface {
	// PostEvents submits one batch. A nil return means the collector
	// accepted the batch with its created status.
	PostEvents(ctx context.Context, events []*event.Event) error
	// FetchConfig reads the current sampling configuration. The raw body is
	// returned alongside the parsed snapshot so callers can detect changes.
	FetchConfig(ctx context.Context) (sampler.Config, []byte, error)
}

type HTTPClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(endpoint, apiKey string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   client,
	}
}

func (c *HTTPClient) PostEvents(ctx context.Context, events []*event.Event) error {
	b, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+eventsPath, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("building batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting batch: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// wireConfig is the collector's sampling-config document.
type wireConfig struct {
	SampleRate         int            `json:"sample_rate"`
	UserSampleRates    map[string]int `json:"user_sample_rate,omitempty"`
	CompanySampleRates map[string]int `json:"company_sample_rate,omitempty"`
}

func (c *HTTPClient) FetchConfig(ctx context.Context) (sampler.Config, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+configPath, nil)
	if err != nil {
		return sampler.Config{}, nil, fmt.Errorf("building config request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return sampler.Config{}, nil, fmt.Errorf("fetching config: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return sampler.Config{}, nil, &StatusError{Code: resp.StatusCode}
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return sampler.Config{}, nil, fmt.Errorf("reading config body: %w", err)
	}
	var wire wireConfig
	if err := json.Unmarshal(raw, &wire); err != nil {
		return sampler.Config{}, nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	conf := sampler.NewConfig(wire.SampleRate, wire.UserSampleRates, wire.CompanySampleRates, time.Now())
	return conf, raw, nil
}
