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

	"github.com/falconfs/falcon/internal/blobstore"
	"github.com/falconfs/falcon/internal/efs"
	"github.com/falconfs/falcon/internal/metaproto"
	"github.com/falconfs/falcon/internal/openfd"
	"github.com/falconfs/falcon/internal/rpcpeer"
)

// wireMicros converts the engine's wall-clock mtime into the
// metadata protocol's raw epoch-offset microseconds (the inverse of
// metaproto.UnixEpochOffsetSeconds).
func wireMicros(t interface{ UnixMicro() int64 }) int64 {
	return t.UnixMicro() - metaproto.UnixEpochOffsetSeconds*1_000_000
}

// Close implements §4.6 close(): the adapter calls this once with
// isFlush true, then once more with isFlush false. The first call
// drains data; the second releases the instance and, unless the size
// is unchanged and nothing failed, tells metadata about the new size.
func (e *Engine) Close(ctx context.Context, fd uint64, isFlush, datasync bool) error {
	inst := e.instances.Get(fd)
	if inst == nil {
		return efs.EBADF("engine.Close")
	}

	inst.CloseMutex.Lock()
	defer inst.CloseMutex.Unlock()

	if inst.ReadBuffer == nil && inst.IsOpened.Load() {
		if err := e.closeTmpFiles(ctx, inst, isFlush, datasync); err != nil {
			return err
		}
	}

	if isFlush {
		return nil
	}

	defer e.instances.Delete(fd, true)
	e.deleteAssembler(fd)

	size := inst.CurrentSize.Load()
	failed := inst.WriteFail.Load() || inst.ReadFail.Load()
	if failed || size != inst.OriginalSize {
		return e.meta.Close(ctx, inst.Path, size, wireMicros(e.clock.Now()), inst.NodeID)
	}
	return nil
}

// closeTmpFiles is §4.6 close_tmp_files: stop prefetch, drain the
// write assembler, and release the backing descriptor.
func (e *Engine) closeTmpFiles(ctx context.Context, inst *openfd.Instance, isFlush, datasync bool) error {
	e.stopPrefetch(inst)

	if asm, ok := e.lookupAssembler(inst.Fd); ok {
		inst.FileMutex.Lock()
		newSize, err := asm.Complete(inst.CurrentSize.Load(), isFlush, datasync)
		if err == nil {
			inst.CurrentSize.Store(newSize)
		}
		inst.FileMutex.Unlock()
		if err != nil {
			return err
		}
	}

	if !e.roster.IsLocal(inst.NodeID) {
		return e.closeRemote(ctx, inst, isFlush, datasync)
	}
	return e.closeLocal(inst, isFlush, datasync)
}

func (e *Engine) closeLocal(inst *openfd.Instance, isFlush, datasync bool) error {
	f, ok := localFile(inst)
	if !ok {
		return nil
	}

	if !isFlush {
		f.Close()
		e.cache.Unpin(inst.Inode)
		return nil
	}

	size := inst.CurrentSize.Load()
	e.cache.Update(inst.Inode, size)
	if datasync {
		if err := f.Sync(); err != nil {
			return efs.IO("engine.Close", err)
		}
	}
	if e.cfg.Persist {
		e.uploadToBlob(inst.Inode, inst.Path)
	}
	return nil
}

func (e *Engine) closeRemote(ctx context.Context, inst *openfd.Instance, isFlush, datasync bool) error {
	client, ok := e.peerClient(inst.NodeID)
	if !ok {
		return nil
	}
	_, err := client.CloseFile(ctx, rpcpeer.CloseFileRequest{
		PhysicalFD: uint64(inst.PhysicalFD),
		IsFlush:    isFlush,
		Datasync:   datasync,
	})
	return err
}

// uploadToBlob pushes the cache file to the blob store, synchronously
// or fire-and-forget per falcon_async (§6).
func (e *Engine) uploadToBlob(inode uint64, path string) {
	key := blobstore.Key(path)
	upload := func() {
		_ = e.blobs.PutFile(context.Background(), key, e.cache.Path(inode))
	}
	if e.cfg.Async {
		if e.workers != nil {
			e.workers.Submit(upload)
		} else {
			go upload()
		}
		return
	}
	upload()
}
