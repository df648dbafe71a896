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
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/cardinalhq/apicapture-go/buffer"
	"github.com/cardinalhq/apicapture-go/collector"
	"github.com/cardinalhq/apicapture-go/event"
	"github.com/cardinalhq/apicapture-go/sampler"
)

const meterName = "github.com/cardinalhq/apicapture-go/capture"

// MaskFunc redacts an event's payload before buffering. It runs after the
// sampling decision, so sampling always sees the original identity fields.
// Returning nil drops the event.
type MaskFunc func(*event.Event) *event.Event

// Capture is the host-facing telemetry filter: it samples submitted events,
// buffers accepted ones, and ships batches to the collector when the buffer
// fills or the batch timer expires. Failures never propagate to the host.
type Capture struct {
	cfg     Config
	logger  *zap.Logger
	clock   clockwork.Clock
	conf    sampler.ConfigManager
	decider *sampler.Decider
	buf     *buffer.Buffer
	sched   *FlushScheduler
	disp    *Dispatcher
	mask    MaskFunc

	// mu guards the buffer composite operations, lastFlushAt, sending, and
	// the scheduler decisions made from them. No network I/O happens while
	// it is held.
	mu          sync.Mutex
	lastFlushAt time.Time
	sending     bool

	received   metric.Int64Counter
	sampledOut metric.Int64Counter
	dropped    metric.Int64Counter
	delivered  metric.Int64Counter
	failures   metric.Int64Counter
}

type Option func(*options)

type options struct {
	logger *zap.Logger
	clock  clockwork.Clock
	client collector.Client
	mask   MaskFunc
	randFn func() int
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

func WithClient(client collector.Client) Option {
	return func(o *options) { o.client = client }
}

func WithMask(mask MaskFunc) Option {
	return func(o *options) { o.mask = mask }
}

// WithRand replaces the sampling random source; fn must return a uniform
// value in [0, 100).
func WithRand(fn func() int) Option {
	return func(o *options) { o.randFn = fn }
}

func New(cfg Config, opts ...Option) (*Capture, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		var err error
		if cfg.Debug {
			o.logger, err = zap.NewDevelopment()
		} else {
			o.logger, err = zap.NewProduction()
		}
		if err != nil {
			return nil, err
		}
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.client == nil {
		o.client = collector.NewHTTPClient(cfg.CollectorEndpoint, cfg.ApplicationID, nil)
	}

	c := &Capture{
		cfg:         cfg,
		logger:      o.logger,
		clock:       o.clock,
		buf:         buffer.New(cfg.MaxBufferedEvents),
		mask:        o.mask,
		lastFlushAt: o.clock.Now(),
	}
	c.conf = sampler.NewConfigManagerImpl(o.logger, cfg.ConfigRefreshInterval, o.client.FetchConfig, o.clock)
	var deciderOpts []sampler.DeciderOption
	if o.randFn != nil {
		deciderOpts = append(deciderOpts, sampler.WithRand(o.randFn))
	}
	c.decider = sampler.NewDecider(cfg.StaticSamplePercentage, c.conf, deciderOpts...)
	c.sched = NewFlushScheduler(o.clock, cfg.MaxBatchTime, c.onTimer)
	c.disp = NewDispatcher(o.client, o.logger, c.onDelivered, c.onFailed)

	if err := c.setupTelemetry(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Capture) setupTelemetry() error {
	meter := otel.Meter(meterName)
	var err error
	if c.received, err = meter.Int64Counter("events_received"); err != nil {
		return err
	}
	if c.sampledOut, err = meter.Int64Counter("events_sampled_out"); err != nil {
		return err
	}
	if c.dropped, err = meter.Int64Counter("events_dropped"); err != nil {
		return err
	}
	if c.delivered, err = meter.Int64Counter("batches_delivered"); err != nil {
		return err
	}
	if c.failures, err = meter.Int64Counter("batch_failures"); err != nil {
		return err
	}
	return nil
}

// Config returns a copy of the static configuration.
func (c *Capture) Config() Config {
	return c.cfg
}

// Start launches the sampling config refresh loop.
func (c *Capture) Start() {
	go c.conf.Run()
}

// Shutdown stops the config refresh loop and attempts one final synchronous
// flush of whatever is still buffered.
func (c *Capture) Shutdown(ctx context.Context) error {
	c.conf.Stop()

	c.mu.Lock()
	c.sched.Cancel()
	events := c.buf.TakeFirst(c.buf.Len())
	c.mu.Unlock()

	var errs *multierror.Error
	if len(events) > 0 {
		if err := c.disp.SendSync(ctx, events); err != nil {
			errs = multierror.Append(errs, err)
			c.logger.Warn("Final flush failed, events lost",
				zap.Int("batch_size", len(events)),
				zap.Error(err))
		}
	}
	return errs.ErrorOrNil()
}

// SubmitEvent runs one event through the sampling and buffering pipeline.
// It never panics and never blocks on network I/O; any internal failure is
// logged and the event is dropped.
func (c *Capture) SubmitEvent(ev *event.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Panic while submitting event, dropping it", zap.Any("panic", r))
		}
	}()
	c.submit(ev)
}

func (c *Capture) submit(ev *event.Event) {
	ctx := context.Background()
	if ev == nil {
		return
	}
	c.received.Add(ctx, 1)

	keep, weight := c.decider.Decide(ev.UserID, ev.CompanyID)
	if !keep {
		c.sampledOut.Add(ctx, 1)
		return
	}
	ev.Weight = weight

	// Masking runs after the sampling decision and before buffering.
	if c.mask != nil {
		if ev = c.mask(ev); ev == nil {
			return
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.buf.TryAppend(ev) {
		c.dropped.Add(ctx, 1)
		c.logger.Warn("Event buffer full, dropping event",
			zap.Int("capacity", c.cfg.MaxBufferedEvents))
		return
	}
	if c.buf.Len() >= c.cfg.MaxBufferedEvents || c.clock.Since(c.lastFlushAt) > c.cfg.MaxBatchTime {
		c.flushLocked()
		return
	}
	c.sched.EnsureScheduled()
}

// flushLocked starts an asynchronous delivery of the current buffer
// snapshot. lastFlushAt is advanced before the send completes so trigger
// evaluation does not start a retry storm while a send is in flight.
func (c *Capture) flushLocked() {
	if c.sending {
		return
	}
	snapshot := c.buf.Peek(c.buf.Len())
	if len(snapshot) == 0 {
		return
	}
	c.sending = true
	c.lastFlushAt = c.clock.Now()
	c.sched.Cancel()
	c.disp.SendBatch(snapshot)
}

func (c *Capture) onTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	// The timer may have raced a flush that already emptied the buffer;
	// flushLocked no-ops in that case.
	c.flushLocked()
}

func (c *Capture) onDelivered(n int) {
	c.delivered.Add(context.Background(), 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = false
	c.buf.TakeFirst(n)
	c.sched.Cancel()
	if c.buf.Len() > 0 {
		// Events appended while the send was in flight still get the
		// bounded-latency guarantee.
		c.sched.EnsureScheduled()
	}
}

func (c *Capture) onFailed(_ int) {
	c.failures.Add(context.Background(), 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = false
	c.sched.EnsureScheduled()
}
