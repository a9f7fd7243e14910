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

// Package stats is the metrics collector (component N): per-RPC and
// per-cache-operation counters and latency histograms recorded on an
// OpenTelemetry meter whose Prometheus exporter feeds a Prometheus
// registry served at /metrics, plus the lock-free snapshot used by the
// stat_cluster RPC handler and the CLI stats table.
package stats

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RPCMethodKey/CacheOpKey annotate which call a counter/histogram
// observation belongs to.
const (
	RPCMethodKey = "rpc_method"
	CacheOpKey   = "cache_op"
)

var defaultLatencyBuckets = metric.WithExplicitBucketBoundaries(
	1, 2, 3, 4, 5, 6, 8, 10, 13, 16, 20, 25, 30, 40, 50, 65, 80, 100,
	130, 160, 200, 250, 300, 400, 500, 650, 800, 1000, 2000, 5000, 10000,
)

// MetricHandle is the surface the engine, rpcpeer client/server and
// metaclient record observations through, so a caller never has to
// know whether Prometheus, OTel, or neither is active.
type MetricHandle interface {
	RPCCount(ctx context.Context, method string, inc int64)
	RPCLatency(ctx context.Context, method string, d time.Duration)
	RPCErrorCount(ctx context.Context, method string, inc int64)

	CacheOpCount(ctx context.Context, op string, inc int64)
	CacheOpLatency(ctx context.Context, op string, d time.Duration)
	CacheBytes(ctx context.Context, op string, n int64)
}

type otelMetrics struct {
	rpcCount      metric.Int64Counter
	rpcErrorCount metric.Int64Counter
	rpcLatency    metric.Float64Histogram

	cacheOpCount   metric.Int64Counter
	cacheOpLatency metric.Float64Histogram
	cacheBytes     metric.Int64Counter
}

func (o *otelMetrics) RPCCount(ctx context.Context, method string, inc int64) {
	o.rpcCount.Add(ctx, inc, metric.WithAttributes(attribute.String(RPCMethodKey, method)))
}

func (o *otelMetrics) RPCLatency(ctx context.Context, method string, d time.Duration) {
	o.rpcLatency.Record(ctx, float64(d.Microseconds()), metric.WithAttributes(attribute.String(RPCMethodKey, method)))
}

func (o *otelMetrics) RPCErrorCount(ctx context.Context, method string, inc int64) {
	o.rpcErrorCount.Add(ctx, inc, metric.WithAttributes(attribute.String(RPCMethodKey, method)))
}

func (o *otelMetrics) CacheOpCount(ctx context.Context, op string, inc int64) {
	o.cacheOpCount.Add(ctx, inc, metric.WithAttributes(attribute.String(CacheOpKey, op)))
}

func (o *otelMetrics) CacheOpLatency(ctx context.Context, op string, d time.Duration) {
	o.cacheOpLatency.Record(ctx, float64(d.Microseconds()), metric.WithAttributes(attribute.String(CacheOpKey, op)))
}

func (o *otelMetrics) CacheBytes(ctx context.Context, op string, n int64) {
	o.cacheBytes.Add(ctx, n, metric.WithAttributes(attribute.String(CacheOpKey, op)))
}

// NewMetrics builds the handle against the given meter, as produced by
// either the Prometheus bridge or the OTel SDK reader in collector.go.
func NewMetrics(meter metric.Meter) (MetricHandle, error) {
	rpcCount, err := meter.Int64Counter("falcon/rpc_count",
		metric.WithDescription("cumulative number of peer/metadata RPCs issued"))
	if err != nil {
		return nil, err
	}
	rpcErrorCount, err := meter.Int64Counter("falcon/rpc_error_count",
		metric.WithDescription("cumulative number of peer/metadata RPCs that returned an error"))
	if err != nil {
		return nil, err
	}
	rpcLatency, err := meter.Float64Histogram("falcon/rpc_latency",
		metric.WithDescription("distribution of RPC latencies"), metric.WithUnit("us"), defaultLatencyBuckets)
	if err != nil {
		return nil, err
	}
	cacheOpCount, err := meter.Int64Counter("falcon/cache_op_count",
		metric.WithDescription("cumulative number of block cache operations"))
	if err != nil {
		return nil, err
	}
	cacheOpLatency, err := meter.Float64Histogram("falcon/cache_op_latency",
		metric.WithDescription("distribution of block cache operation latencies"), metric.WithUnit("us"), defaultLatencyBuckets)
	if err != nil {
		return nil, err
	}
	cacheBytes, err := meter.Int64Counter("falcon/cache_bytes",
		metric.WithDescription("cumulative bytes moved through the block cache"), metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		rpcCount:       rpcCount,
		rpcErrorCount:  rpcErrorCount,
		rpcLatency:     rpcLatency,
		cacheOpCount:   cacheOpCount,
		cacheOpLatency: cacheOpLatency,
		cacheBytes:     cacheBytes,
	}, nil
}
