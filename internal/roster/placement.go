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

package roster

import (
	"hash/fnv"
	"sort"
	"strings"
	"sync"
)

// RoundRobin cycles through a fixed slice, wrapping at the end.
type RoundRobin[T any] struct {
	mu    sync.Mutex
	items []T
	next  int
}

// NewRoundRobin builds a RoundRobin over items (copied).
func NewRoundRobin[T any](items []T) *RoundRobin[T] {
	return &RoundRobin[T]{items: append([]T(nil), items...)}
}

// Get returns the next item in rotation, or the zero value and false
// if the rotation is empty.
func (rr *RoundRobin[T]) Get() (T, bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	var zero T
	if len(rr.items) == 0 {
		return zero, false
	}
	v := rr.items[rr.next]
	rr.next = (rr.next + 1) % len(rr.items)
	return v, true
}

// hash64 is the placement hash over an inode id, used to pick an owner
// node by hash64(inode) mod N when neither TO_LOCAL nor IS_INFERENCE
// placement applies. The reference design doesn't name a specific
// algorithm here, so this uses FNV-1a over the inode's 8 bytes, which
// gives the uniform, stable distribution the policy needs.
func hash64(inode uint64) uint64 {
	h := fnv.New64a()
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(inode >> (8 * i))
	}
	_, _ = h.Write(b[:])
	return h.Sum64()
}

// ParentPath extracts the placement key for inference-mode routing:
// the path truncated to level components from the leaf, per
// PARENT_PATH_LEVEL (-1 means "immediate parent").
func ParentPath(path string, level int) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) <= 1 {
		return "/"
	}
	parts = parts[:len(parts)-1] // drop the leaf
	if level < 0 || level >= len(parts) {
		return "/" + strings.Join(parts, "/")
	}
	return "/" + strings.Join(parts[len(parts)-level:], "/")
}

// Placer decides the owning node for new inodes (§4.6 open_file
// placement policy).
type Placer struct {
	roster      *Roster
	toLocal     bool
	isInference bool
	parentLevel int

	mu           sync.Mutex
	parentTable  map[string]uint32
	rotationSeed []uint32
}

// NewPlacer builds a Placer bound to roster with the TO_LOCAL /
// IS_INFERENCE policy flags and PARENT_PATH_LEVEL from config.
func NewPlacer(r *Roster, toLocal, isInference bool, parentLevel int) *Placer {
	return &Placer{
		roster:      r,
		toLocal:     toLocal,
		isInference: isInference,
		parentLevel: parentLevel,
		parentTable: make(map[string]uint32),
	}
}

// Pick chooses an owner node id for inode under path, given whether
// the local cache currently has free space (feeds the TO_LOCAL branch).
func (p *Placer) Pick(path string, inode uint64, localHasSpace bool) uint32 {
	if p.toLocal && localHasSpace {
		return p.roster.LocalID()
	}
	if p.isInference {
		return p.pickInference(path)
	}
	return p.pickHashed(inode)
}

func (p *Placer) pickHashed(inode uint64) uint32 {
	nodes := p.sortedNodeIDs()
	if len(nodes) == 0 {
		return p.roster.LocalID()
	}
	return nodes[hash64(inode)%uint64(len(nodes))]
}

func (p *Placer) pickInference(path string) uint32 {
	key := ParentPath(path, p.parentLevel)

	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.parentTable[key]; ok {
		if _, stillUp := p.roster.Get(id); stillUp || id == p.roster.LocalID() {
			return id
		}
		delete(p.parentTable, key)
	}

	// First sighting of this parent path: pick by its FNV-1a hash so
	// every file under it lands on the same node.
	nodes := p.sortedNodeIDs()
	id := p.roster.LocalID()
	if len(nodes) > 0 {
		h := fnv.New64a()
		_, _ = h.Write([]byte(key))
		id = nodes[h.Sum64()%uint64(len(nodes))]
	}
	p.parentTable[key] = id
	return id
}

// Reassign updates the inference placement table after a node is
// evicted for a remote-fault, per §4.7 "the parent-path placement
// table is updated accordingly".
func (p *Placer) Reassign(path string, newOwner uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parentTable[ParentPath(path, p.parentLevel)] = newOwner
}

func (p *Placer) sortedNodeIDs() []uint32 {
	nodes := p.roster.All()
	ids := make([]uint32, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
