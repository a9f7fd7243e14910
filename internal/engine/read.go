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
	"fmt"
	"io"
	"syscall"

	"github.com/falconfs/falcon/internal/blobstore"
	"github.com/falconfs/falcon/internal/efs"
	"github.com/falconfs/falcon/internal/openfd"
	"github.com/falconfs/falcon/internal/readpipe"
	"github.com/falconfs/falcon/internal/rpcpeer"
)

// Read implements §4.6 read(): flush any buffered write first, then
// either memcpy out of the small-file fast-path buffer or dispatch to
// the sequential pipeline / random-read path.
func (e *Engine) Read(ctx context.Context, fd uint64, buf []byte, offset int64) (int, error) {
	inst := e.instances.Get(fd)
	if inst == nil {
		return 0, efs.EBADF("engine.Read")
	}

	if inst.ReadBuffer != nil {
		return readSmallBuffer(inst, buf, offset), nil
	}

	if err := e.flushPendingWrite(inst); err != nil {
		return 0, err
	}

	if err := e.openFile(ctx, inst); err != nil {
		inst.ReadFail.Store(true)
		return 0, err
	}

	n, err := e.readData(ctx, inst, buf, offset)
	if err != nil {
		inst.ReadFail.Store(true)
		return n, err
	}
	e.readOps.Add(1)
	return n, nil
}

func readSmallBuffer(inst *openfd.Instance, buf []byte, offset int64) int {
	if offset < 0 || offset >= int64(len(inst.ReadBuffer)) {
		return 0
	}
	return copy(buf, inst.ReadBuffer[offset:])
}

// flushPendingWrite drains any in-flight write-assembler run before a
// read observes the file (§4.6: "if any buffered write exists, flush
// it first").
func (e *Engine) flushPendingWrite(inst *openfd.Instance) error {
	asm, ok := e.lookupAssembler(inst.Fd)
	if !ok || !asm.Pending() {
		return nil
	}
	inst.FileMutex.Lock()
	defer inst.FileMutex.Unlock()
	newSize, err := asm.Complete(inst.CurrentSize.Load(), true, false)
	if err != nil {
		return err
	}
	inst.CurrentSize.Store(newSize)
	return nil
}

// readData is §4.5's seek/sequential/random dispatch. Large or
// write-opened files get the prefetch pipeline as long as reads stay
// serial; anything else (or a seek) falls back to a single pread/RPC.
func (e *Engine) readData(ctx context.Context, inst *openfd.Instance, buf []byte, offset int64) (int, error) {
	// A locally-owned instance with no local file attached (read-only
	// persistent cache miss) is read straight from the blob store.
	if _, ok := localFile(inst); !ok && e.roster.IsLocal(inst.NodeID) && e.blobs != nil {
		if offset >= inst.OriginalSize {
			return 0, nil
		}
		length := min(int64(len(buf)), inst.OriginalSize-offset)
		n, err := e.blobs.ReadRange(ctx, blobstore.Key(inst.Path), offset, length, &sliceWriter{buf: buf})
		if err != nil {
			return int(n), efs.Persistence("engine.Read", err)
		}
		inst.SerialReadEnd.Store(offset + n)
		return int(n), nil
	}

	accmode := inst.OFlags & syscall.O_ACCMODE
	pipelineEligible := inst.OriginalSize >= e.cfg.SmallFileThreshold || accmode != syscall.O_RDONLY

	if !pipelineEligible || inst.DirectReadFile.Load() {
		return e.randomRead(ctx, inst, buf, offset)
	}

	if offset != inst.SerialReadEnd.Load() {
		e.stopPrefetch(inst)
		inst.DirectReadFile.Store(true)
		return e.randomRead(ctx, inst, buf, offset)
	}

	pipeline, err := e.ensurePipeline(inst, offset)
	if err != nil {
		return 0, err
	}
	n, end, err := pipeline.WaitPop(buf)
	if err != nil {
		inst.DirectReadFile.Store(true)
		return n, efs.IO("engine.Read", err)
	}
	inst.SerialReadEnd.Add(int64(n))
	if end {
		inst.PreReadStopped.Store(true)
	}
	return n, nil
}

// ensurePipeline lazily starts the read pipeline the first time an
// instance is read sequentially (§4.5 init/start), reusing it across
// subsequent calls.
func (e *Engine) ensurePipeline(inst *openfd.Instance, startOffset int64) (*readpipe.Pipeline, error) {
	e.pipelinesMu.Lock()
	defer e.pipelinesMu.Unlock()

	if p, ok := e.pipelines[inst.Fd]; ok {
		return p, nil
	}
	p, err := readpipe.New(e.pool, e.cfg.ReadPipelineBlocks, e.fillerFor(inst))
	if err != nil {
		return nil, efs.ENOMEM("engine.Read")
	}
	p.Start(startOffset)
	e.pipelines[inst.Fd] = p
	inst.PreReadStarted.Store(true)
	return p, nil
}

// stopPrefetch tears down a live pipeline for inst, if any (§4.5 seek
// handling, §4.6 write()).
func (e *Engine) stopPrefetch(inst *openfd.Instance) {
	e.pipelinesMu.Lock()
	p, ok := e.pipelines[inst.Fd]
	if ok {
		delete(e.pipelines, inst.Fd)
	}
	e.pipelinesMu.Unlock()

	if ok {
		p.Stop()
		inst.PreReadStopped.Store(true)
	}
}

// fillerFor binds a readpipe.Filler to inst's local file or remote
// physical fd, whichever owns its body.
func (e *Engine) fillerFor(inst *openfd.Instance) readpipe.Filler {
	return func(dst []byte, offset int64) (int, error) {
		if e.roster.IsLocal(inst.NodeID) {
			f, ok := localFile(inst)
			if !ok {
				return 0, efs.IO("engine.readFill", fmt.Errorf("no local file for inode %d", inst.Inode))
			}
			n, err := f.ReadAt(dst, offset)
			if err != nil && err != io.EOF {
				return n, efs.IO("engine.readFill", err)
			}
			return n, nil
		}

		client, ok := e.peerClient(inst.NodeID)
		if !ok {
			return 0, efs.RemoteFault("engine.readFill", syscall.ENOTCONN, fmt.Errorf("no peer for node %d", inst.NodeID))
		}
		resp, err := client.ReadFile(context.Background(), rpcpeer.ReadFileRequest{
			PhysicalFD: uint64(inst.PhysicalFD),
			Offset:     offset,
			Length:     int64(len(dst)),
		})
		if err != nil {
			return 0, err
		}
		return copy(dst, resp.Data), nil
	}
}

// randomRead is the non-pipelined single-shot path: one pread locally
// or one read_file RPC remotely.
func (e *Engine) randomRead(ctx context.Context, inst *openfd.Instance, buf []byte, offset int64) (int, error) {
	if e.roster.IsLocal(inst.NodeID) {
		f, ok := localFile(inst)
		if !ok {
			return 0, efs.IO("engine.Read", fmt.Errorf("no local file for inode %d", inst.Inode))
		}
		n, err := f.ReadAt(buf, offset)
		if err != nil && err != io.EOF {
			return n, efs.IO("engine.Read", err)
		}
		inst.SerialReadEnd.Store(offset + int64(n))
		return n, nil
	}

	client, ok := e.peerClient(inst.NodeID)
	if !ok {
		return 0, efs.RemoteFault("engine.Read", syscall.ENOTCONN, fmt.Errorf("no peer for node %d", inst.NodeID))
	}
	resp, err := client.ReadFile(ctx, rpcpeer.ReadFileRequest{
		PhysicalFD: uint64(inst.PhysicalFD),
		Offset:     offset,
		Length:     int64(len(buf)),
	})
	if err != nil {
		return 0, err
	}
	n := copy(buf, resp.Data)
	inst.SerialReadEnd.Store(offset + int64(n))
	return n, nil
}
