// Copyright 2025 Google LLC
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

package stats

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Snapshot is the point-in-time counter dump the stat_cluster RPC
// handler and the CLI table renderer read. It is populated by
// Collector.run from whatever process-wide state the engine exposes
// through the Sampler it was built with.
type Snapshot struct {
	NodeID     uint32
	OpenFDs    int64
	CacheUsed  int64
	CacheTotal int64
	ReadOps    int64
	WriteOps   int64
	SampledAt  time.Time
}

// Sampler is implemented by whatever owns the live counters (the
// engine, the open-fd table, the block cache manager); Collector only
// knows how to poll it and publish the result without a reader lock.
type Sampler interface {
	Sample() Snapshot
}

// Collector swaps an atomic snapshot pointer once a second so readers
// never take a lock on the hot path, grounded in the teacher's
// lock-free telemetry style.
type Collector struct {
	sampler Sampler
	period  time.Duration
	current atomic.Pointer[Snapshot]

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewCollector starts a background goroutine immediately; call Stop to
// release it.
func NewCollector(sampler Sampler, period time.Duration) *Collector {
	if period <= 0 {
		period = time.Second
	}
	c := &Collector{
		sampler: sampler,
		period:  period,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	initial := sampler.Sample()
	c.current.Store(&initial)
	go c.run()
	return c
}

func (c *Collector) run() {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			snap := c.sampler.Sample()
			c.current.Store(&snap)
		}
	}
}

// Latest returns the most recently published snapshot without
// blocking on the collection goroutine.
func (c *Collector) Latest() Snapshot {
	return *c.current.Load()
}

func (c *Collector) Stop() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	<-c.doneCh
}

// ExporterConfig controls which metrics backend NewExporter wires up,
// driven by falcon_use_prometheus/falcon_prometheus_port (§6).
type ExporterConfig struct {
	UsePrometheus bool
	Port          int
}

// NewExporter builds the MetricHandle and, if Prometheus is enabled,
// starts the /metrics HTTP server and returns a shutdown function.
func NewExporter(ctx context.Context, cfg ExporterConfig) (MetricHandle, func(context.Context) error, error) {
	if !cfg.UsePrometheus {
		return NewNoopMetrics(), func(context.Context) error { return nil }, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("stats: prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("falcon")

	handle, err := NewMetrics(meter)
	if err != nil {
		return nil, nil, fmt.Errorf("stats: build metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()

	shutdown := func(ctx context.Context) error {
		if err := srv.Shutdown(ctx); err != nil {
			return err
		}
		return provider.Shutdown(ctx)
	}
	return handle, shutdown, nil
}
