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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSampler struct {
	n atomic.Int64
}

func (f *fakeSampler) Sample() Snapshot {
	return Snapshot{ReadOps: f.n.Add(1), SampledAt: time.Unix(0, 0)}
}

func TestCollector_PublishesInitialSnapshotImmediately(t *testing.T) {
	s := &fakeSampler{}
	c := NewCollector(s, 50*time.Millisecond)
	defer c.Stop()

	snap := c.Latest()
	assert.Equal(t, int64(1), snap.ReadOps)
}

func TestCollector_RefreshesOnTicker(t *testing.T) {
	s := &fakeSampler{}
	c := NewCollector(s, 10*time.Millisecond)
	defer c.Stop()

	require.Eventually(t, func() bool {
		return c.Latest().ReadOps >= int64(3)
	}, time.Second, 5*time.Millisecond)
}

func TestNewExporter_NoopWhenDisabled(t *testing.T) {
	handle, shutdown, err := NewExporter(context.Background(), ExporterConfig{UsePrometheus: false})
	require.NoError(t, err)
	require.NotNil(t, handle)
	assert.NoError(t, shutdown(context.Background()))

	handle.RPCCount(context.Background(), "Open", 1)
}
