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
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cardinalhq/apicapture-go/collector"
	"github.com/cardinalhq/apicapture-go/event"
)

const sendTimeout = 30 * time.Second

// Dispatcher submits batch snapshots to the collector off the request path.
// The outcome callbacks run on the dispatch goroutine and re-enter the
// pipeline lock.
type Dispatcher struct {
	client      collector.Client
	logger      *zap.Logger
	onDelivered func(n int)
	onFailed    func(n int)
}

func NewDispatcher(client collector.Client, logger *zap.Logger, onDelivered, onFailed func(n int)) *Dispatcher {
	return &Dispatcher{
		client:      client,
		logger:      logger.Named("dispatcher"),
		onDelivered: onDelivered,
		onFailed:    onFailed,
	}
}

// SendBatch posts the snapshot on its own goroutine; the caller returns
// immediately.
func (d *Dispatcher) SendBatch(events []*event.Event) {
	go d.send(events)
}

func (d *Dispatcher) send(events []*event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := d.SendSync(ctx, events); err != nil {
		d.logger.Warn("Batch delivery failed, leaving events buffered for retry",
			zap.Int("batch_size", len(events)),
			zap.String("failure_kind", collector.Classify(err).String()),
			zap.Error(err))
		d.onFailed(len(events))
		return
	}
	d.logger.Debug("Batch delivered", zap.Int("batch_size", len(events)))
	d.onDelivered(len(events))
}

// SendSync posts a batch and waits for the outcome without invoking the
// outcome callbacks. Used for the final flush on shutdown.
func (d *Dispatcher) SendSync(ctx context.Context, events []*event.Event) error {
	return d.client.PostEvents(ctx, events)
}
