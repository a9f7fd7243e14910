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
	"io"
	"os"

	"github.com/falconfs/falcon/internal/efs"
	"github.com/falconfs/falcon/internal/rpcpeer"
)

// remoteHandle is the local side of a physical fd this node handed a
// peer at open_file time: the peer addresses it opaquely, we keep the
// *os.File and the inode it belongs to so CloseFile/ReadFile/WriteFile
// can find their way back to the cache entry.
type remoteHandle struct {
	inode uint64
	file  *os.File
}

// OpenFile serves a peer's open_file_from_remote call against an inode
// this node owns: pin the cache entry, open its backing file, and hand
// back an opaque physical fd.
func (e *Engine) OpenFile(ctx context.Context, req rpcpeer.OpenFileRequest) (rpcpeer.OpenFileResponse, error) {
	entry, hit := e.cache.Find(req.InodeID, true)
	if !hit {
		return rpcpeer.OpenFileResponse{}, efs.ENOENT("engine.OpenFile", nil)
	}

	f, err := os.OpenFile(e.cache.Path(req.InodeID), osFlags(int(req.OFlags)), 0o644)
	if err != nil {
		e.cache.Unpin(req.InodeID)
		return rpcpeer.OpenFileResponse{}, efs.IO("engine.OpenFile", err)
	}

	e.remoteMu.Lock()
	e.remoteSeq++
	fd := e.remoteSeq
	e.remoteFDs[fd] = &remoteHandle{inode: req.InodeID, file: f}
	e.remoteMu.Unlock()

	return rpcpeer.OpenFileResponse{PhysicalFD: fd, Size: entry.Size}, nil
}

func (e *Engine) remoteHandleFor(fd uint64) (*remoteHandle, bool) {
	e.remoteMu.Lock()
	defer e.remoteMu.Unlock()
	h, ok := e.remoteFDs[fd]
	return h, ok
}

// ReadFile serves a peer's read against a physical fd we own.
func (e *Engine) ReadFile(ctx context.Context, req rpcpeer.ReadFileRequest) (rpcpeer.ReadFileResponse, error) {
	h, ok := e.remoteHandleFor(req.PhysicalFD)
	if !ok {
		return rpcpeer.ReadFileResponse{}, efs.EBADF("engine.ReadFile")
	}
	buf := make([]byte, req.Length)
	n, err := h.file.ReadAt(buf, req.Offset)
	if err != nil && err != io.EOF {
		return rpcpeer.ReadFileResponse{}, efs.IO("engine.ReadFile", err)
	}
	return rpcpeer.ReadFileResponse{Data: buf[:n]}, nil
}

// ReadSmallFile serves the whole-object fast path directly from the
// cache file, falling back to nothing special: a cache miss here is a
// caller bug (small-file placement always warms the cache first).
func (e *Engine) ReadSmallFile(ctx context.Context, req rpcpeer.ReadSmallFileRequest) (rpcpeer.ReadSmallFileResponse, error) {
	if _, hit := e.cache.Find(req.InodeID, false); !hit {
		return rpcpeer.ReadSmallFileResponse{}, efs.ENOENT("engine.ReadSmallFile", nil)
	}
	f, err := os.Open(e.cache.Path(req.InodeID))
	if err != nil {
		return rpcpeer.ReadSmallFileResponse{}, efs.IO("engine.ReadSmallFile", err)
	}
	defer f.Close()

	buf := make([]byte, req.Size)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return rpcpeer.ReadSmallFileResponse{}, efs.IO("engine.ReadSmallFile", err)
	}
	return rpcpeer.ReadSmallFileResponse{Data: buf[:n]}, nil
}

// WriteFile serves a peer's write assembler persist against a
// physical fd we own.
func (e *Engine) WriteFile(ctx context.Context, req rpcpeer.WriteFileRequest) (rpcpeer.WriteFileResponse, error) {
	h, ok := e.remoteHandleFor(req.PhysicalFD)
	if !ok {
		return rpcpeer.WriteFileResponse{}, efs.EBADF("engine.WriteFile")
	}
	if _, err := h.file.WriteAt(req.Data, req.Offset); err != nil {
		return rpcpeer.WriteFileResponse{}, efs.IO("engine.WriteFile", err)
	}
	newSize := req.CurrentSize
	if end := req.Offset + int64(len(req.Data)); end > newSize {
		e.cache.Add(h.inode, end-newSize)
		newSize = end
	}
	return rpcpeer.WriteFileResponse{NewSize: newSize}, nil
}

// CloseFile releases a physical fd a peer opened against us.
func (e *Engine) CloseFile(ctx context.Context, req rpcpeer.CloseFileRequest) (rpcpeer.CloseFileResponse, error) {
	e.remoteMu.Lock()
	h, ok := e.remoteFDs[req.PhysicalFD]
	if ok && !req.IsFlush {
		delete(e.remoteFDs, req.PhysicalFD)
	}
	e.remoteMu.Unlock()
	if !ok {
		return rpcpeer.CloseFileResponse{}, efs.EBADF("engine.CloseFile")
	}

	if len(req.Trailing) > 0 {
		if _, err := h.file.WriteAt(req.Trailing, req.Offset); err != nil {
			return rpcpeer.CloseFileResponse{}, efs.IO("engine.CloseFile", err)
		}
	}

	if req.IsFlush {
		if req.Datasync {
			if err := h.file.Sync(); err != nil {
				return rpcpeer.CloseFileResponse{}, efs.IO("engine.CloseFile", err)
			}
		}
		return rpcpeer.CloseFileResponse{}, nil
	}

	h.file.Close()
	e.cache.Unpin(h.inode)
	return rpcpeer.CloseFileResponse{}, nil
}

// DeleteFile serves unlink()'s cleanup RPC against the node owning an
// unlinked file's body.
func (e *Engine) DeleteFile(ctx context.Context, req rpcpeer.DeleteFileRequest) (rpcpeer.DeleteFileResponse, error) {
	e.cache.Delete(req.InodeID)
	return rpcpeer.DeleteFileResponse{}, nil
}

// TruncateOpenInstance serves truncate()'s per-sibling RPC against an
// instance a peer has open against us.
func (e *Engine) TruncateOpenInstance(ctx context.Context, req rpcpeer.TruncateOpenInstanceRequest) (rpcpeer.TruncateOpenInstanceResponse, error) {
	h, ok := e.remoteHandleFor(req.PhysicalFD)
	if !ok {
		return rpcpeer.TruncateOpenInstanceResponse{}, efs.EBADF("engine.TruncateOpenInstance")
	}
	if err := h.file.Truncate(req.Size); err != nil {
		return rpcpeer.TruncateOpenInstanceResponse{}, efs.IO("engine.TruncateOpenInstance", err)
	}
	e.cache.Update(h.inode, req.Size)
	return rpcpeer.TruncateOpenInstanceResponse{}, nil
}

// TruncateFile truncates a cached body not currently open anywhere on
// this node.
func (e *Engine) TruncateFile(ctx context.Context, req rpcpeer.TruncateFileRequest) (rpcpeer.TruncateFileResponse, error) {
	f, err := os.OpenFile(e.cache.Path(req.InodeID), os.O_RDWR, 0o644)
	if err != nil {
		return rpcpeer.TruncateFileResponse{}, efs.IO("engine.TruncateFile", err)
	}
	defer f.Close()
	if err := f.Truncate(req.Size); err != nil {
		return rpcpeer.TruncateFileResponse{}, efs.IO("engine.TruncateFile", err)
	}
	e.cache.Update(req.InodeID, req.Size)
	return rpcpeer.TruncateFileResponse{}, nil
}

// Statfs reports this node's cache usage to a peer aggregating cluster
// statfs.
func (e *Engine) Statfs(ctx context.Context, req rpcpeer.StatfsRequest) (rpcpeer.StatfsResponse, error) {
	used, _, total := e.cache.Stats()
	return rpcpeer.StatfsResponse{UsedBytes: used, TotalBytes: total}, nil
}

// CheckConnection is the peer liveness probe.
func (e *Engine) CheckConnection(ctx context.Context, req rpcpeer.CheckConnectionRequest) (rpcpeer.CheckConnectionResponse, error) {
	return rpcpeer.CheckConnectionResponse{}, nil
}

// StatCluster backs the `falcon stats` CLI (§6).
func (e *Engine) StatCluster(ctx context.Context, req rpcpeer.StatClusterRequest) (rpcpeer.StatClusterResponse, error) {
	snap := e.Sample()
	return rpcpeer.StatClusterResponse{
		NodeID:     snap.NodeID,
		OpenFDs:    snap.OpenFDs,
		CacheUsed:  snap.CacheUsed,
		CacheTotal: snap.CacheTotal,
		ReadOps:    snap.ReadOps,
		WriteOps:   snap.WriteOps,
	}, nil
}
