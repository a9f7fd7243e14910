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
	"os"
	"syscall"

	"github.com/falconfs/falcon/internal/blockcache"
	"github.com/falconfs/falcon/internal/efs"
	"github.com/falconfs/falcon/internal/rpcpeer"
)

// localPersister is the write assembler's sink (§4.4) for an instance
// whose body lives on this node: writes go straight at the cache file,
// and capacity is reserved against the block cache ahead of growth.
type localPersister struct {
	cache   *blockcache.Manager
	inode   uint64
	file    *os.File
	release func()
}

func (p *localPersister) Preallocate(extra int64) (func(), error) {
	if err := p.cache.PreAlloc(extra); err != nil {
		return nil, err
	}
	release := func() { p.cache.FreePreAlloc(extra) }
	p.release = release
	return release, nil
}

func (p *localPersister) Persist(buf []byte, offset, currentSize int64) (int64, error) {
	if _, err := p.file.WriteAt(buf, offset); err != nil {
		return currentSize, efs.IO("engine.persist", err)
	}
	newSize := currentSize
	if end := offset + int64(len(buf)); end > newSize {
		grown := end - currentSize
		if p.release != nil {
			p.release()
			p.release = nil
		}
		p.cache.Add(p.inode, grown)
		newSize = end
	}
	return newSize, nil
}

func (p *localPersister) IsRemote() bool { return false }

// remotePersister is the write assembler's sink for an instance owned
// by a peer: every persist is a write_file RPC against the physical
// fd that node handed back at open_file time. The owning node is
// responsible for its own cache accounting, so Preallocate is a no-op
// here.
type remotePersister struct {
	client     *rpcpeer.Client
	physicalFD uint64
}

func (p *remotePersister) Preallocate(extra int64) (func(), error) {
	return func() {}, nil
}

func (p *remotePersister) Persist(buf []byte, offset, currentSize int64) (int64, error) {
	resp, err := p.client.WriteFile(context.Background(), rpcpeer.WriteFileRequest{
		PhysicalFD:  p.physicalFD,
		Offset:      offset,
		Data:        buf,
		CurrentSize: currentSize,
	})
	if err != nil {
		return currentSize, err
	}
	return resp.NewSize, nil
}

func (p *remotePersister) IsRemote() bool { return true }

// unavailablePersister backs an instance whose owning node dropped out
// of the roster between open_file and a later write: every persist
// fails immediately rather than nil-dereferencing a missing client.
type unavailablePersister struct{ nodeID uint32 }

func (p *unavailablePersister) Preallocate(extra int64) (func(), error) {
	return func() {}, nil
}

func (p *unavailablePersister) Persist(buf []byte, offset, currentSize int64) (int64, error) {
	return currentSize, efs.RemoteFault("engine.persist", syscall.ENOTCONN, nil)
}

func (p *unavailablePersister) IsRemote() bool { return false }
