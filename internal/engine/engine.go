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

package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/falconfs/falcon/internal/blobstore"
	"github.com/falconfs/falcon/internal/blockcache"
	"github.com/falconfs/falcon/internal/filelock"
	"github.com/falconfs/falcon/internal/membuf"
	"github.com/falconfs/falcon/internal/metaclient"
	"github.com/falconfs/falcon/internal/openfd"
	"github.com/falconfs/falcon/internal/readpipe"
	"github.com/falconfs/falcon/internal/roster"
	"github.com/falconfs/falcon/internal/rpcpeer"
	"github.com/falconfs/falcon/internal/stats"
	"github.com/falconfs/falcon/internal/workerpool"
	"github.com/falconfs/falcon/internal/writeback"
)

// clock is the minimal time source the engine needs, injected so
// close-time mtimes are deterministic in tests.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Engine is the storage engine core (H).
type Engine struct {
	cfg Config

	instances *openfd.Table
	cache     *blockcache.Manager
	locks     *filelock.Table
	pool      *membuf.Pool
	roster    *roster.Roster
	placer    *roster.Placer
	meta      *metaclient.Client
	blobs     blobstore.Store // nil when PERSIST is off
	workers   *workerpool.StaticWorkerPool
	metrics   stats.MetricHandle
	clock     clock

	assemblersMu sync.Mutex
	assemblers   map[uint64]*writeback.Assembler // fd -> assembler

	pipelinesMu sync.Mutex
	pipelines   map[uint64]*readpipe.Pipeline // fd -> live prefetch pipeline

	readOps  atomic.Int64
	writeOps atomic.Int64

	remoteMu  sync.Mutex
	remoteSeq uint64
	remoteFDs map[uint64]*remoteHandle // physical fd -> local file this node opened on a peer's behalf
}

// Deps bundles the already-constructed collaborators New wires
// together; every field is required except Blobs and Workers, which
// are nil-able (persistence/background-job use is optional).
type Deps struct {
	Cache   *blockcache.Manager
	Locks   *filelock.Table
	Pool    *membuf.Pool
	Roster  *roster.Roster
	Meta    *metaclient.Client
	Blobs   blobstore.Store
	Workers *workerpool.StaticWorkerPool
	Metrics stats.MetricHandle
}

// New builds the engine. The placer is constructed here since its
// policy (ToLocal/IsInference/ParentPathLevel) is engine config, not a
// roster concern.
func New(cfg Config, deps Deps) *Engine {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = stats.NewNoopMetrics()
	}
	return &Engine{
		cfg:        cfg,
		instances:  openfd.NewTable(cfg.MaxOpenInstances),
		cache:      deps.Cache,
		locks:      deps.Locks,
		pool:       deps.Pool,
		roster:     deps.Roster,
		placer:     roster.NewPlacer(deps.Roster, cfg.ToLocal, cfg.IsInference, cfg.ParentPathLevel),
		meta:       deps.Meta,
		blobs:      deps.Blobs,
		workers:    deps.Workers,
		metrics:    metrics,
		clock:      realClock{},
		assemblers: make(map[uint64]*writeback.Assembler),
		pipelines:  make(map[uint64]*readpipe.Pipeline),
		remoteFDs:  make(map[uint64]*remoteHandle),
	}
}

// Sample implements stats.Sampler for the stats collector.
func (e *Engine) Sample() stats.Snapshot {
	used, _, total := e.cache.Stats()
	return stats.Snapshot{
		NodeID:     e.roster.LocalID(),
		OpenFDs:    int64(e.instances.Len()),
		CacheUsed:  used,
		CacheTotal: total,
		ReadOps:    e.readOps.Load(),
		WriteOps:   e.writeOps.Load(),
		SampledAt:  e.clock.Now(),
	}
}

func (e *Engine) peerClient(nodeID uint32) (*rpcpeer.Client, bool) {
	node, ok := e.roster.Get(nodeID)
	if !ok {
		return nil, false
	}
	client, ok := node.Client.(*rpcpeer.Client)
	return client, ok
}

func (e *Engine) localHasSpace() bool {
	used, reserved, capacity := e.cache.Stats()
	return used+reserved < capacity
}
