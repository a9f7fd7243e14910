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
	"context"
	"math"
	"testing"
	"time"

	"github.com/falconfs/falcon/internal/blockcache"
	"github.com/falconfs/falcon/internal/filelock"
	"github.com/falconfs/falcon/internal/membership"
	"github.com/falconfs/falcon/internal/membuf"
	"github.com/falconfs/falcon/internal/metaclient"
	"github.com/falconfs/falcon/internal/metaclient/router"
	"github.com/falconfs/falcon/internal/metaproto"
	"github.com/falconfs/falcon/internal/roster"
	"github.com/stretchr/testify/require"
)

// fileRecord is a fake metadata server's notion of one path: which
// inode it is, which node currently owns its body, and its last known
// size (kept up to date by create/close so a later open sees it).
type fileRecord struct {
	inode  uint64
	nodeID uint32
	size   int64
}

// fakeTransport is a bare-bones metaproto.Transport backing a single
// shard ("local") that always resolves every path, used to drive the
// engine's metadata-client calls without a network.
type fakeTransport struct {
	nextInode uint64

	files  map[string]*fileRecord
	closes []metaproto.CloseRequest
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{files: make(map[string]*fileRecord)}
}

func (t *fakeTransport) Open(ctx context.Context, endpoint string, req metaproto.OpenRequest) (metaproto.OpenResponse, error) {
	rec, ok := t.files[req.Path]
	if !ok {
		return metaproto.OpenResponse{Code: metaproto.NotFound}, nil
	}
	return metaproto.OpenResponse{Code: metaproto.OK, InodeID: rec.inode, Size: rec.size, NodeID: rec.nodeID}, nil
}

func (t *fakeTransport) Create(ctx context.Context, endpoint string, req metaproto.CreateRequest) (metaproto.CreateResponse, error) {
	if rec, ok := t.files[req.Path]; ok {
		return metaproto.CreateResponse{Code: metaproto.OK, InodeID: rec.inode, NodeID: rec.nodeID}, nil
	}
	t.nextInode++
	rec := &fileRecord{inode: t.nextInode, nodeID: 0}
	t.files[req.Path] = rec
	return metaproto.CreateResponse{Code: metaproto.OK, InodeID: rec.inode, NodeID: rec.nodeID}, nil
}

func (t *fakeTransport) Stat(ctx context.Context, endpoint string, req metaproto.StatRequest) (metaproto.StatResponse, error) {
	return metaproto.StatResponse{Code: metaproto.OK}, nil
}

func (t *fakeTransport) Close(ctx context.Context, endpoint string, req metaproto.CloseRequest) (metaproto.CloseResponse, error) {
	t.closes = append(t.closes, req)
	if rec, ok := t.files[req.Path]; ok {
		rec.size = req.Size
		rec.nodeID = req.NodeID
	}
	return metaproto.CloseResponse{Code: metaproto.OK}, nil
}

func (t *fakeTransport) Unlink(ctx context.Context, endpoint string, req metaproto.UnlinkRequest) (metaproto.UnlinkResponse, error) {
	rec, ok := t.files[req.Path]
	if !ok {
		return metaproto.UnlinkResponse{Code: metaproto.NotFound}, nil
	}
	delete(t.files, req.Path)
	return metaproto.UnlinkResponse{Code: metaproto.OK, InodeID: rec.inode, Size: rec.size, NodeID: rec.nodeID}, nil
}

func (t *fakeTransport) Mkdir(ctx context.Context, endpoint string, req metaproto.MkdirRequest) (metaproto.MkdirResponse, error) {
	return metaproto.MkdirResponse{Code: metaproto.OK}, nil
}
func (t *fakeTransport) Rmdir(ctx context.Context, endpoint string, req metaproto.RmdirRequest) (metaproto.RmdirResponse, error) {
	return metaproto.RmdirResponse{Code: metaproto.OK}, nil
}
func (t *fakeTransport) Rename(ctx context.Context, endpoint string, req metaproto.RenameRequest) (metaproto.RenameResponse, error) {
	return metaproto.RenameResponse{Code: metaproto.OK}, nil
}
func (t *fakeTransport) Utimens(ctx context.Context, endpoint string, req metaproto.UtimensRequest) (metaproto.UtimensResponse, error) {
	return metaproto.UtimensResponse{Code: metaproto.OK}, nil
}
func (t *fakeTransport) Chown(ctx context.Context, endpoint string, req metaproto.ChownRequest) (metaproto.ChownResponse, error) {
	return metaproto.ChownResponse{Code: metaproto.OK}, nil
}
func (t *fakeTransport) Chmod(ctx context.Context, endpoint string, req metaproto.ChmodRequest) (metaproto.ChmodResponse, error) {
	return metaproto.ChmodResponse{Code: metaproto.OK}, nil
}
func (t *fakeTransport) Opendir(ctx context.Context, endpoint string, req metaproto.OpendirRequest) (metaproto.OpendirResponse, error) {
	return metaproto.OpendirResponse{Code: metaproto.OK}, nil
}
func (t *fakeTransport) Readdir(ctx context.Context, endpoint string, req metaproto.ReaddirRequest) (metaproto.ReaddirResponse, error) {
	return metaproto.ReaddirResponse{Code: metaproto.OK, EOF: true}, nil
}
func (t *fakeTransport) Closedir(ctx context.Context, endpoint string, req metaproto.ClosedirRequest) (metaproto.ClosedirResponse, error) {
	return metaproto.ClosedirResponse{Code: metaproto.OK}, nil
}

func (t *fakeTransport) CoordinatorInfo(ctx context.Context, coordinatorEndpoint string) (metaproto.CoordinatorInfo, error) {
	return metaproto.CoordinatorInfo{
		Coordinator: coordinatorEndpoint,
		Shards:      []metaproto.ShardRange{{MaxHashKey: math.MaxInt32, Endpoint: "local"}},
	}, nil
}

// newTestEngine builds a single-node engine (everything placed local)
// backed by a real on-disk block cache under t.TempDir(), a fake
// metadata transport, and no blob store (persistence off).
func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeTransport) {
	t.Helper()

	cacheDir := t.TempDir()
	cache, err := blockcache.NewManager(blockcache.Config{
		Root:         cacheDir,
		DirNum:       4,
		CapacityByte: 1 << 30,
		FreeRatio:    0.1,
		BgFreeRatio:  0.2,
		EvictPeriod:  time.Hour,
	})
	require.NoError(t, err)

	pool, err := membuf.New(4096, 32)
	require.NoError(t, err)

	source := membership.NewStatic([]membership.Node{{NodeID: 0, Endpoint: "local"}}, 0)
	rst := roster.New(source, func(string) (any, error) { return nil, nil }, cacheDir, "local")
	require.NoError(t, rst.Start(context.Background()))
	t.Cleanup(rst.Stop)

	transport := newFakeTransport()
	rtr := router.New(transport, "coordinator")
	require.NoError(t, rtr.Refresh(context.Background()))
	meta := metaclient.New(transport, rtr)

	if cfg.SmallFileThreshold == 0 {
		cfg.SmallFileThreshold = 1 << 20
	}
	if cfg.ReadPipelineBlocks == 0 {
		cfg.ReadPipelineBlocks = 2
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = 4096
	}

	eng := New(cfg, Deps{
		Cache:  cache,
		Locks:  filelock.NewTable(),
		Pool:   pool,
		Roster: rst,
		Meta:   meta,
	})
	return eng, transport
}
