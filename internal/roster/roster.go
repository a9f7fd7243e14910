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

// Package roster tracks node_id -> endpoint for the cluster (component
// F), refreshed from a membership source, and answers placement
// questions for the storage engine: is inode N local, or which peer
// owns it.
package roster

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/falconfs/falcon/internal/logger"
	"github.com/falconfs/falcon/internal/membership"
)

// Node is one roster entry: an endpoint and, once dialed, an opaque
// client handle. Client is untyped here so this package doesn't need
// to depend on the RPC transport; rpcpeer type-asserts it back.
type Node struct {
	ID       uint32
	Endpoint string
	Client   any
}

// Dialer builds a transport client for an endpoint. Supplied by the
// caller (normally rpcpeer.Dial) so roster stays transport-agnostic.
type Dialer func(endpoint string) (any, error)

const refreshPeriod = 3 * time.Second

// Roster is the live node_id -> Node map plus the local node's
// identity (persisted across restarts via the myid file, §6).
type Roster struct {
	source membership.Source
	dial   Dialer

	localEndpoint string
	myIDPath      string

	mu      sync.RWMutex
	nodes   map[uint32]Node
	localID uint32

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a Roster. cacheRoot is the block-cache root directory;
// the local node id is persisted at cacheRoot/myid.
func New(source membership.Source, dial Dialer, cacheRoot, localEndpoint string) *Roster {
	return &Roster{
		source:        source,
		dial:          dial,
		localEndpoint: localEndpoint,
		myIDPath:      cacheRoot + "/myid",
		nodes:         make(map[uint32]Node),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start registers (or recovers) the local node id, performs an initial
// refresh, and launches the background 3s refresher.
func (r *Roster) Start(ctx context.Context) error {
	localID, err := r.resolveLocalID(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.localID = localID
	r.mu.Unlock()

	if err := r.refresh(ctx); err != nil {
		return err
	}

	go r.loop()
	return nil
}

// resolveLocalID reads cache_root/myid if present; otherwise it
// registers with the membership source and persists the assigned id
// so a restart re-registers under the same identity.
func (r *Roster) resolveLocalID(ctx context.Context) (uint32, error) {
	if raw, err := os.ReadFile(r.myIDPath); err == nil {
		id, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 32)
		if err == nil {
			return uint32(id), nil
		}
		logger.Warnf("roster: malformed myid file %q: %v", r.myIDPath, err)
	}

	id, err := r.source.Register(ctx, r.localEndpoint)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(r.myIDPath, []byte(strconv.FormatUint(uint64(id), 10)), 0o644); err != nil {
		logger.Warnf("roster: persist myid: %v", err)
	}
	return id, nil
}

func (r *Roster) loop() {
	defer close(r.doneCh)
	ticker := time.NewTicker(refreshPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), refreshPeriod)
			if err := r.refresh(ctx); err != nil {
				logger.Warnf("roster: refresh: %v", err)
			}
			cancel()
		}
	}
}

// refresh pulls a fresh snapshot and reconciles it against the current
// map, reusing already-dialed clients for endpoints that didn't change
// and dialing new ones for nodes that appeared or moved.
func (r *Roster) refresh(ctx context.Context) error {
	snap, err := r.source.Snapshot(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	fresh := make(map[uint32]Node, len(snap.Nodes))
	for _, n := range snap.Nodes {
		if n.NodeID == r.localID {
			fresh[n.NodeID] = Node{ID: n.NodeID, Endpoint: n.Endpoint}
			continue
		}
		if existing, ok := r.nodes[n.NodeID]; ok && existing.Endpoint == n.Endpoint && existing.Client != nil {
			fresh[n.NodeID] = existing
			continue
		}
		client, err := r.dial(n.Endpoint)
		if err != nil {
			logger.Warnf("roster: dial %s (node %d): %v", n.Endpoint, n.NodeID, err)
			continue
		}
		fresh[n.NodeID] = Node{ID: n.NodeID, Endpoint: n.Endpoint, Client: client}
	}
	r.nodes = fresh
	return nil
}

// Get returns the node record for id, if known.
func (r *Roster) Get(id uint32) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	return n, ok
}

// LocalID returns this process's node id.
func (r *Roster) LocalID() uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.localID
}

// IsLocal reports whether id names this process.
func (r *Roster) IsLocal(id uint32) bool {
	return id == r.LocalID()
}

// All returns a snapshot of every known node, local node included.
func (r *Roster) All() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}

// Evict drops a node from the roster, forcing the next placement
// decision or open_file_from_remote iteration to pick another owner.
// Used on a non-timeout remote-fault per §7.
func (r *Roster) Evict(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, id)
}

// Stop halts the background refresher.
func (r *Roster) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

func (n Node) String() string {
	return fmt.Sprintf("node(%d)@%s", n.ID, n.Endpoint)
}
