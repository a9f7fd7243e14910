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
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/falconfs/falcon/internal/efs"
	"github.com/falconfs/falcon/internal/openfd"
	"github.com/falconfs/falcon/internal/rpcpeer"
)

// defaultBRPCRetryNum is BRPC_RETRY_NUM's default (§5).
const defaultBRPCRetryNum = 3

// errRetryPlacement signals that failoverNode picked a new owner and
// the caller should re-evaluate locality before trying again.
var errRetryPlacement = errors.New("engine: retry with reassigned node")

func (e *Engine) brpcRetryNum() int {
	if e.cfg.BRPCRetryNum > 0 {
		return e.cfg.BRPCRetryNum
	}
	return defaultBRPCRetryNum
}

// openFileRemote is §4.7's open_file_from_remote: it opens a physical
// fd on the owning peer, retrying ETIMEDOUT in place and failing the
// node over to a freshly-placed owner on any other connection error.
func (e *Engine) openFileRemote(ctx context.Context, inst *openfd.Instance) error {
	client, ok := e.peerClient(inst.NodeID)
	if !ok {
		return e.failoverNode(inst, fmt.Errorf("no connection to node %d", inst.NodeID))
	}

	req := rpcpeer.OpenFileRequest{InodeID: inst.Inode, OFlags: int32(inst.OFlags)}
	resp, err := client.OpenFile(ctx, req)
	for retries := e.brpcRetryNum(); err != nil && efs.IsTimeout(err) && retries > 0; retries-- {
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
		resp, err = client.OpenFile(ctx, req)
	}
	if err != nil {
		if efs.IsTimeout(err) {
			return err
		}
		return e.failoverNode(inst, err)
	}

	inst.PhysicalFD = int64(resp.PhysicalFD)
	inst.IsRemoteCall.Store(true)
	return nil
}

// failoverNode evicts the unreachable node from the roster, re-runs
// placement, and (in inference mode) updates the parent-path table so
// future opens under the same prefix land on the new owner too.
func (e *Engine) failoverNode(inst *openfd.Instance, cause error) error {
	e.roster.Evict(inst.NodeID)
	newOwner := e.placer.Pick(inst.Path, inst.Inode, e.localHasSpace())
	if e.cfg.IsInference {
		e.placer.Reassign(inst.Path, newOwner)
	}
	inst.NodeID = newOwner
	inst.NodeFail.Store(true)
	_ = cause
	return errRetryPlacement
}

// readSmallFile implements §4.6 read_small_files: fill inst.ReadBuffer
// without going through open_file/the read pipeline at all.
func (e *Engine) readSmallFile(ctx context.Context, inst *openfd.Instance, buf []byte) error {
	if !inst.NodePicked.Load() {
		inst.NodeID = e.placer.Pick(inst.Path, inst.Inode, e.localHasSpace())
		inst.NodePicked.Store(true)
	}

	if !e.roster.IsLocal(inst.NodeID) {
		return e.readSmallFileRemote(ctx, inst, buf)
	}

	if _, hit := e.cache.Find(inst.Inode, false); hit {
		f, err := os.Open(e.cache.Path(inst.Inode))
		if err == nil {
			_, rerr := io.ReadFull(f, buf)
			f.Close()
			if rerr == nil || rerr == io.ErrUnexpectedEOF || rerr == io.EOF {
				return nil
			}
		}
	}
	return e.downloadSync(ctx, inst.Inode, inst.Path, inst.OriginalSize, buf)
}

// readSmallFileRemote asks the owning peer for the whole object in one
// round trip, falling back to a direct blob range get when the roster
// can't reach it and persistence is available (§4.7).
func (e *Engine) readSmallFileRemote(ctx context.Context, inst *openfd.Instance, buf []byte) error {
	client, ok := e.peerClient(inst.NodeID)
	if ok {
		resp, err := client.ReadSmallFile(ctx, rpcpeer.ReadSmallFileRequest{
			InodeID: inst.Inode,
			Size:    inst.OriginalSize,
		})
		if err == nil {
			copy(buf, resp.Data)
			return nil
		}
		if !e.cfg.Persist {
			return err
		}
	}
	return e.downloadSync(ctx, inst.Inode, inst.Path, inst.OriginalSize, buf)
}
