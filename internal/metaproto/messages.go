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

// Package metaproto holds the typed request/response shapes the
// metadata client facade (L) sends over the metadata protocol, and the
// MetadataTransport interface that carries them. The wire protocol and
// coordinator election themselves are external collaborators (§1); this
// package only fixes the shapes the engine code depends on.
package metaproto

import "context"

// UnixEpochOffsetSeconds converts the protocol's raw epoch-offset
// microsecond timestamps to UNIX time by adding this many seconds
// (§6: "adding the offset 946684800 s").
const UnixEpochOffsetSeconds = 946684800

// NodeIDUnset is the sentinel OpenResponse/CreateResponse.NodeID
// carries for a file whose body has no owning node yet (a brand-new,
// zero-length create); the engine runs placement policy and reports
// the winner back on close.
const NodeIDUnset = ^uint32(0)

// Stat mirrors the typed struct returned by data-bearing replies (§6).
type Stat struct {
	Ino     uint64
	Dev     uint64
	Mode    uint32
	Nlink   uint32
	Uid     uint32
	Gid     uint32
	Rdev    uint64
	Size    int64
	AtimeUs int64
	MtimeUs int64
	CtimeUs int64
}

// ErrorCode is the metadata protocol's numeric status: OK (0) on
// success, a positive code on failure.
type ErrorCode int32

const (
	OK           ErrorCode = 0
	ServerFault  ErrorCode = 1
	NotFound     ErrorCode = 2
	Exists       ErrorCode = 3
	NotEmpty     ErrorCode = 4
	PermDenied   ErrorCode = 5
	InvalidInput ErrorCode = 6
)

// OpenRequest/OpenResponse back the metadata client's open(path) call
// used by H's open/open_file (§4.6): it returns the inode, its size,
// and the node currently owning the file body.
type OpenRequest struct {
	Path   string
	OFlags int32
}

type OpenResponse struct {
	Code   ErrorCode
	InodeID uint64
	Size    int64
	NodeID  uint32
	Stat    Stat
}

type CreateRequest struct {
	Path  string
	Mode  uint32
	Uid   uint32
	Gid   uint32
}

type CreateResponse struct {
	Code   ErrorCode
	InodeID uint64
	NodeID  uint32
	Stat    Stat
}

type StatRequest struct {
	Path string
}

type StatResponse struct {
	Code ErrorCode
	Stat Stat
}

type CloseRequest struct {
	Path    string
	Size    int64
	MtimeUs int64
	NodeID  uint32
}

type CloseResponse struct {
	Code ErrorCode
}

type UnlinkRequest struct {
	Path string
}

type UnlinkResponse struct {
	Code    ErrorCode
	InodeID uint64
	Size    int64
	NodeID  uint32
}

type RmdirRequest struct{ Path string }
type RmdirResponse struct{ Code ErrorCode }

type MkdirRequest struct {
	Path string
	Mode uint32
	Uid  uint32
	Gid  uint32
}
type MkdirResponse struct {
	Code    ErrorCode
	InodeID uint64
}

type RenameRequest struct {
	OldPath string
	NewPath string
}
type RenameResponse struct{ Code ErrorCode }

type UtimensRequest struct {
	Path    string
	AtimeUs int64
	MtimeUs int64
}
type UtimensResponse struct{ Code ErrorCode }

type ChownRequest struct {
	Path string
	Uid  uint32
	Gid  uint32
}
type ChownResponse struct{ Code ErrorCode }

type ChmodRequest struct {
	Path string
	Mode uint32
}
type ChmodResponse struct{ Code ErrorCode }

type DirEntry struct {
	Name string
	Mode uint32
}

type OpendirRequest struct{ Path string }
type OpendirResponse struct {
	Code    ErrorCode
	DirFd   uint64
	Entries []DirEntry
}

type ReaddirRequest struct {
	DirFd  uint64
	Offset int64
}
type ReaddirResponse struct {
	Code    ErrorCode
	Entries []DirEntry
	EOF     bool
}

type ClosedirRequest struct{ DirFd uint64 }
type ClosedirResponse struct{ Code ErrorCode }

// CoordinatorInfo is what the router refetches on SERVER_FAULT (§4.9):
// a fresh shard table and the coordinator's own endpoint.
type CoordinatorInfo struct {
	Coordinator string
	Shards      []ShardRange
}

// ShardRange is one row of the router's `max_hash_key -> endpoint`
// table: the shard owning every hash up to and including MaxHashKey.
type ShardRange struct {
	MaxHashKey int32
	Endpoint   string
}

// Transport is the consumed metadata wire protocol (§1, §4.9): every
// facade call serializes a request, dispatches it to an endpoint, and
// parses a typed response. A concrete implementation owns connection
// pooling and the ConnectionCache reuse described in §4.9; this
// package only fixes the call shapes.
type Transport interface {
	Open(ctx context.Context, endpoint string, req OpenRequest) (OpenResponse, error)
	Create(ctx context.Context, endpoint string, req CreateRequest) (CreateResponse, error)
	Stat(ctx context.Context, endpoint string, req StatRequest) (StatResponse, error)
	Close(ctx context.Context, endpoint string, req CloseRequest) (CloseResponse, error)
	Unlink(ctx context.Context, endpoint string, req UnlinkRequest) (UnlinkResponse, error)
	Mkdir(ctx context.Context, endpoint string, req MkdirRequest) (MkdirResponse, error)
	Rmdir(ctx context.Context, endpoint string, req RmdirRequest) (RmdirResponse, error)
	Rename(ctx context.Context, endpoint string, req RenameRequest) (RenameResponse, error)
	Utimens(ctx context.Context, endpoint string, req UtimensRequest) (UtimensResponse, error)
	Chown(ctx context.Context, endpoint string, req ChownRequest) (ChownResponse, error)
	Chmod(ctx context.Context, endpoint string, req ChmodRequest) (ChmodResponse, error)
	Opendir(ctx context.Context, endpoint string, req OpendirRequest) (OpendirResponse, error)
	Readdir(ctx context.Context, endpoint string, req ReaddirRequest) (ReaddirResponse, error)
	Closedir(ctx context.Context, endpoint string, req ClosedirRequest) (ClosedirResponse, error)
	// CoordinatorInfo fetches a fresh shard table from the cluster
	// leader, used by the router on SERVER_FAULT and at startup.
	CoordinatorInfo(ctx context.Context, coordinatorEndpoint string) (CoordinatorInfo, error)
}
