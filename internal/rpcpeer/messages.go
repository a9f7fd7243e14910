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

// Package rpcpeer is the peer RPC client and server (components G and
// I): the typed calls one storage-engine process uses to reach the
// node that owns a file's body, and the handler surface a process
// exposes to its peers for the same calls.
package rpcpeer

import "context"

// OpenFileRequest/Response open a remote physical fd against a cache
// file the requesting node doesn't own locally.
type OpenFileRequest struct {
	InodeID uint64
	OFlags  int32
}

type OpenFileResponse struct {
	Code       int32
	PhysicalFD uint64
	Size       int64
}

type CloseFileRequest struct {
	PhysicalFD uint64
	IsFlush    bool
	Datasync   bool
	Trailing   []byte // buffered payload flushed in the same call, §4.4
	Offset     int64
}

type CloseFileResponse struct {
	Code int32
}

type ReadFileRequest struct {
	PhysicalFD uint64
	Offset     int64
	Length     int64
}

type ReadFileResponse struct {
	Code int32
	Data []byte
}

// ReadSmallFileRequest fetches a whole small file in one round trip,
// skipping the open/read/close sequence (§4.6 small-file fast path).
type ReadSmallFileRequest struct {
	InodeID uint64
	Size    int64
}

type ReadSmallFileResponse struct {
	Code int32
	Data []byte
}

type WriteFileRequest struct {
	PhysicalFD  uint64
	Offset      int64
	Data        []byte
	CurrentSize int64
}

type WriteFileResponse struct {
	Code    int32
	NewSize int64
}

type DeleteFileRequest struct {
	InodeID uint64
}

type DeleteFileResponse struct {
	Code int32
}

type StatfsRequest struct{}

type StatfsResponse struct {
	Code        int32
	UsedBytes   int64
	TotalBytes  int64
}

type TruncateOpenInstanceRequest struct {
	PhysicalFD uint64
	Size       int64
}

type TruncateOpenInstanceResponse struct {
	Code int32
}

type TruncateFileRequest struct {
	InodeID uint64
	Size    int64
}

type TruncateFileResponse struct {
	Code int32
}

type CheckConnectionRequest struct{}

type CheckConnectionResponse struct {
	Code int32
}

// StatClusterRequest/Response back the `falcon stats` CLI (§6): a
// point-in-time dump of the node's counters for a human-readable table.
type StatClusterRequest struct{}

type StatClusterResponse struct {
	Code        int32
	NodeID      uint32
	OpenFDs     int64
	CacheUsed   int64
	CacheTotal  int64
	ReadOps     int64
	WriteOps    int64
}

// Server is what the engine implements and rpcpeer exposes to peers.
// It is the same surface rpcpeer.Client consumes, so a process can
// talk to itself through the loopback path during tests.
type Server interface {
	OpenFile(ctx context.Context, req OpenFileRequest) (OpenFileResponse, error)
	CloseFile(ctx context.Context, req CloseFileRequest) (CloseFileResponse, error)
	ReadFile(ctx context.Context, req ReadFileRequest) (ReadFileResponse, error)
	ReadSmallFile(ctx context.Context, req ReadSmallFileRequest) (ReadSmallFileResponse, error)
	WriteFile(ctx context.Context, req WriteFileRequest) (WriteFileResponse, error)
	DeleteFile(ctx context.Context, req DeleteFileRequest) (DeleteFileResponse, error)
	Statfs(ctx context.Context, req StatfsRequest) (StatfsResponse, error)
	TruncateOpenInstance(ctx context.Context, req TruncateOpenInstanceRequest) (TruncateOpenInstanceResponse, error)
	TruncateFile(ctx context.Context, req TruncateFileRequest) (TruncateFileResponse, error)
	CheckConnection(ctx context.Context, req CheckConnectionRequest) (CheckConnectionResponse, error)
	StatCluster(ctx context.Context, req StatClusterRequest) (StatClusterResponse, error)
}
