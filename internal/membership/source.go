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

// Package membership defines the cluster membership source the roster
// and router poll for node_id/shard topology. The real backend is a
// ZooKeeper-like coordination service; this package only carries the
// consumed interface and a static implementation useful for tests and
// for the non-ZK_INIT "static cluster view" configuration path.
package membership

import "context"

// Node is one entry in a membership snapshot.
type Node struct {
	NodeID   uint32
	Endpoint string
}

// Snapshot is the cluster topology as the membership source currently
// sees it.
type Snapshot struct {
	Nodes         []Node
	Coordinator   Node
	LocalNodeID   uint32
	LocalAssigned bool // false when LocalNodeID still needs allocation
}

// Source produces membership snapshots on demand.
type Source interface {
	// Snapshot fetches the current view.
	Snapshot(ctx context.Context) (Snapshot, error)
	// Register allocates (or confirms) this process's node id, given
	// its advertised endpoint. Used once at startup when the local id
	// is not already pinned by cache_root/myid.
	Register(ctx context.Context, endpoint string) (uint32, error)
}

// Static is a Source backed by a fixed node list, grounding the
// falcon_cluster_view ("ZK_INIT off") configuration path where peers
// are supplied as a comma list of host:port rather than discovered.
type Static struct {
	nodes       []Node
	coordinator Node
	localNodeID uint32
}

// NewStatic builds a Static source from a pre-resolved node list. The
// first node is treated as the coordinator.
func NewStatic(nodes []Node, localNodeID uint32) *Static {
	var coordinator Node
	if len(nodes) > 0 {
		coordinator = nodes[0]
	}
	return &Static{nodes: nodes, coordinator: coordinator, localNodeID: localNodeID}
}

func (s *Static) Snapshot(context.Context) (Snapshot, error) {
	return Snapshot{
		Nodes:         append([]Node(nil), s.nodes...),
		Coordinator:   s.coordinator,
		LocalNodeID:   s.localNodeID,
		LocalAssigned: true,
	}, nil
}

func (s *Static) Register(context.Context, string) (uint32, error) {
	return s.localNodeID, nil
}
