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
	"github.com/falconfs/falcon/internal/openfd"
	"github.com/falconfs/falcon/internal/writeback"
)

// lookupAssembler returns the write assembler already built for fd,
// if any, without creating one (a pure reader should never spin up a
// writer sink).
func (e *Engine) lookupAssembler(fd uint64) (*writeback.Assembler, bool) {
	e.assemblersMu.Lock()
	defer e.assemblersMu.Unlock()
	a, ok := e.assemblers[fd]
	return a, ok
}

// assemblerFor returns inst's write assembler, building it (and its
// local or remote persister) on first use.
func (e *Engine) assemblerFor(inst *openfd.Instance) *writeback.Assembler {
	e.assemblersMu.Lock()
	defer e.assemblersMu.Unlock()

	if a, ok := e.assemblers[inst.Fd]; ok {
		return a
	}

	var p writeback.Persister
	if e.roster.IsLocal(inst.NodeID) {
		f, _ := localFile(inst)
		p = &localPersister{cache: e.cache, inode: inst.Inode, file: f}
	} else if client, ok := e.peerClient(inst.NodeID); ok {
		p = &remotePersister{client: client, physicalFD: uint64(inst.PhysicalFD)}
	} else {
		p = &unavailablePersister{nodeID: inst.NodeID}
	}

	a := writeback.New(p)
	e.assemblers[inst.Fd] = a
	return a
}

// deleteAssembler drops fd's assembler, called once close has drained
// it for the last time.
func (e *Engine) deleteAssembler(fd uint64) {
	e.assemblersMu.Lock()
	delete(e.assemblers, fd)
	e.assemblersMu.Unlock()
}
