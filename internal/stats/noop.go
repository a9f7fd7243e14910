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
	"time"
)

// NewNoopMetrics is the handle used when no exporter is configured
// (falcon_use_prometheus=false and no OTel reader wired).
func NewNoopMetrics() MetricHandle {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) RPCCount(context.Context, string, int64)            {}
func (noopMetrics) RPCLatency(context.Context, string, time.Duration)  {}
func (noopMetrics) RPCErrorCount(context.Context, string, int64)       {}
func (noopMetrics) CacheOpCount(context.Context, string, int64)        {}
func (noopMetrics) CacheOpLatency(context.Context, string, time.Duration) {}
func (noopMetrics) CacheBytes(context.Context, string, int64)          {}
