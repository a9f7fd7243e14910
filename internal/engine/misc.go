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
	"syscall"

	"github.com/falconfs/falcon/internal/blobstore"
	"github.com/falconfs/falcon/internal/efs"
	"github.com/falconfs/falcon/internal/openfd"
	"github.com/falconfs/falcon/internal/rpcpeer"
)

// Unlink implements §4.6 unlink(): metadata removes the name, then the
// owning node (local or remote) drops its cached body, and the blob
// object follows if persistence is on.
func (e *Engine) Unlink(ctx context.Context, path string) error {
	resp, err := e.meta.Unlink(ctx, path)
	if err != nil {
		return err
	}

	if e.roster.IsLocal(resp.NodeID) {
		_, hit := e.cache.Find(resp.InodeID, false)
		if hit {
			e.cache.Delete(resp.InodeID)
		} else if !e.cfg.Persist {
			return efs.ENOENT("engine.Unlink", nil)
		}
	} else if client, ok := e.peerClient(resp.NodeID); ok {
		_, _ = client.DeleteFile(ctx, rpcpeer.DeleteFileRequest{InodeID: resp.InodeID})
	}

	if e.cfg.Persist && e.blobs != nil {
		if err := e.blobs.Delete(ctx, blobstore.Key(path)); err != nil {
			return efs.Persistence("engine.Unlink", err)
		}
	}
	return nil
}

// Truncate implements §4.6 truncate(): open the file for write, shrink
// or grow every sibling instance's backing body through its owning
// node, then close with a flush so the metadata close records the new
// size.
func (e *Engine) Truncate(ctx context.Context, path string, size int64) error {
	fd, _, err := e.Open(ctx, path, syscall.O_WRONLY)
	if err != nil {
		return err
	}

	inst := e.instances.Get(fd)
	if inst == nil {
		return efs.EBADF("engine.Truncate")
	}

	if err := e.openFile(ctx, inst); err != nil {
		e.Close(ctx, fd, false, false)
		return err
	}

	for _, sibling := range e.instances.GetByInode(inst.Inode) {
		if err := e.truncateInstance(ctx, sibling, size); err != nil {
			e.Close(ctx, fd, false, false)
			return err
		}
	}

	if err := e.Close(ctx, fd, true, false); err != nil {
		e.Close(ctx, fd, false, false)
		return err
	}
	return e.Close(ctx, fd, false, false)
}

func (e *Engine) truncateInstance(ctx context.Context, inst *openfd.Instance, size int64) error {
	if !inst.IsOpened.Load() {
		inst.CurrentSize.Store(size)
		return nil
	}

	if e.roster.IsLocal(inst.NodeID) {
		if f, ok := localFile(inst); ok {
			if err := f.Truncate(size); err != nil {
				return efs.IO("engine.Truncate", err)
			}
			e.cache.Update(inst.Inode, size)
		}
	} else {
		client, ok := e.peerClient(inst.NodeID)
		if !ok {
			return efs.RemoteFault("engine.Truncate", syscall.ENOTCONN, nil)
		}
		if _, err := client.TruncateOpenInstance(ctx, rpcpeer.TruncateOpenInstanceRequest{
			PhysicalFD: uint64(inst.PhysicalFD),
			Size:       size,
		}); err != nil {
			return err
		}
	}

	inst.CurrentSize.Store(size)
	return nil
}

// ClusterStatfs implements §4.6 statfs(): the local cache root's
// statvfs, summed with every peer's statfs RPC and, when persistence is
// on, the blob store's own usage report. (Statfs is the peer RPC
// handler in server.go.)
func (e *Engine) ClusterStatfs(ctx context.Context, cacheRoot string) (blobstore.FSStat, error) {
	var out blobstore.FSStat

	var raw syscall.Statfs_t
	if err := syscall.Statfs(cacheRoot, &raw); err != nil {
		return out, efs.IO("engine.Statfs", err)
	}
	total := int64(raw.Blocks) * int64(raw.Bsize)
	free := int64(raw.Bfree) * int64(raw.Bsize)
	out.TotalBytes += total
	out.UsedBytes += total - free

	for _, node := range e.roster.All() {
		if e.roster.IsLocal(node.ID) {
			continue
		}
		client, ok := e.peerClient(node.ID)
		if !ok {
			continue
		}
		resp, err := client.Statfs(ctx, rpcpeer.StatfsRequest{})
		if err != nil {
			continue
		}
		out.UsedBytes += resp.UsedBytes
		out.TotalBytes += resp.TotalBytes
	}

	if e.cfg.Persist && e.blobs != nil {
		blobStat, err := e.blobs.StatFS(ctx)
		if err == nil {
			out.UsedBytes += blobStat.UsedBytes
			out.TotalBytes += blobStat.TotalBytes
		}
	}

	return out, nil
}
