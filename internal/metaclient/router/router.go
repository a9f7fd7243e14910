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

// Package router resolves a path to its owning metadata shard
// (component M) and keeps the coordinator and shard-table connections
// warm.
package router

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/falconfs/falcon/internal/metaproto"
)

// Router keeps the coordinator endpoint and the shard table
// (max_hash_key -> endpoint), refreshing both on SERVER_FAULT.
type Router struct {
	transport           metaproto.Transport
	coordinatorEndpoint string

	mu          sync.RWMutex
	coordinator string
	shards      []metaproto.ShardRange // sorted ascending by MaxHashKey
}

// New builds a Router pointed at the bootstrap coordinator endpoint.
// Call Refresh before serving traffic to populate the shard table.
func New(transport metaproto.Transport, coordinatorEndpoint string) *Router {
	return &Router{transport: transport, coordinatorEndpoint: coordinatorEndpoint, coordinator: coordinatorEndpoint}
}

// Refresh refetches the coordinator info and rebuilds the shard table,
// retrying up to 3 times with a 3s backoff (§7 metadata-fault policy).
func (r *Router) Refresh(ctx context.Context) error {
	const maxRetries = 3
	const backoff = 3 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		r.mu.RLock()
		endpoint := r.coordinator
		r.mu.RUnlock()

		info, err := r.transport.CoordinatorInfo(ctx, endpoint)
		if err == nil {
			shards := append([]metaproto.ShardRange(nil), info.Shards...)
			sort.Slice(shards, func(i, j int) bool { return shards[i].MaxHashKey < shards[j].MaxHashKey })

			r.mu.Lock()
			r.coordinator = info.Coordinator
			r.shards = shards
			r.mu.Unlock()
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

// Coordinator returns the current cluster leader endpoint.
func (r *Router) Coordinator() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.coordinator
}

// Resolve maps a path to the endpoint of the shard owning it.
func (r *Router) Resolve(p string) (string, bool) {
	key := hashKey(p)

	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := sort.Search(len(r.shards), func(i int) bool { return r.shards[i].MaxHashKey >= key })
	if idx == len(r.shards) {
		return "", false
	}
	return r.shards[idx].Endpoint, true
}

// hashKey implements §4.9's filename-to-shard hash: strip the trailing
// slash, take the final path component, run a 13-bit string hash over
// it, then feed that through a 32-bit integer hash.
//
// The exact string-hash and integer-hash algorithms aren't pinned down
// by the interface description; this uses a simple multiplicative
// string hash masked to 13 bits, then the Murmur3 fmix32 finalizer (a
// public-domain avalanche mix), which gives the same
// property the design wants -- dense, well-distributed keys across
// the full int32 range -- without depending on an external library.
func hashKey(p string) int32 {
	name := strings.TrimRight(p, "/")
	name = path.Base(name)

	var h13 uint32
	for i := 0; i < len(name); i++ {
		h13 = h13*131 + uint32(name[i])
	}
	h13 &= 0x1FFF // 13 bits

	return int32(hashUint32(h13))
}

// hashUint32 is Murmur3's fmix32 finalizer, reimplemented here since
// it's a fixed, public algorithm rather than a library dependency. It
// is not bit-compatible with PostgreSQL's hash_uint32.
func hashUint32(k uint32) uint32 {
	k ^= k >> 16
	k *= 0x85ebca6b
	k ^= k >> 13
	k *= 0xc2b2ae35
	k ^= k >> 16
	return k
}
