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

// Package openfd is the per-process open-instance table (component J): it
// allocates opaque file descriptors, keeps the inode -> {descriptors}
// reverse index, and gates new allocations behind a bounded semaphore so
// the process never runs unbounded numbers of concurrent opens.
package openfd

import (
	"sync"
	"sync/atomic"
)

// Instance is the per-open() state described in §3 ("OpenInstance"). The
// storage engine (component H) owns every field below fd and Inode;
// openfd only manages the table these instances live in.
type Instance struct {
	Fd     uint64
	Inode  uint64
	NodeID uint32
	Path   string
	OFlags int

	OriginalSize int64
	CurrentSize  atomic.Int64

	// FileMutex protects the mutable fields above (other than CurrentSize,
	// which is itself atomic) and is acquired multi-reader/one-writer by
	// the storage engine's read/write/close paths.
	FileMutex sync.RWMutex
	// CloseMutex additionally guards against a peer RPC handler using this
	// instance after local close has begun.
	CloseMutex sync.Mutex

	IsOpened        atomic.Bool
	IsClosed        atomic.Bool
	IsFlushed       atomic.Bool
	PreReadStarted  atomic.Bool
	PreReadStopped  atomic.Bool
	DirectReadFile  atomic.Bool
	WriteFail       atomic.Bool
	ReadFail        atomic.Bool
	NodeFail        atomic.Bool
	RemoteFailed    atomic.Bool
	IsRemoteCall    atomic.Bool
	WriteCnt        atomic.Int64
	SerialReadEnd   atomic.Int64

	// NodePicked records whether placement has already run for this
	// instance, since NodeID's zero value is a valid node id and
	// cannot itself signal "unset".
	NodePicked atomic.Bool

	PhysicalFD int64 // opaque: local OS fd, or a peer-assigned descriptor

	// LocalFile is the *os.File backing PhysicalFD when this instance
	// is locally owned; nil for a remotely-owned instance. The engine
	// package is the only reader/writer, stored as `any` here so this
	// table package stays storage-backend agnostic.
	LocalFile any

	// ReadBuffer is populated only for the small-file read-only fast path
	// (§4.6 open): the whole object slurped eagerly at open time.
	ReadBuffer []byte

	refs atomic.Int32
}

// Acquire increments the reference count held by callers outside the
// fd-map (e.g. a peer RPC handler serving a request against this
// instance) so the instance outlives a concurrent close until the handler
// finishes.
func (i *Instance) Acquire() { i.refs.Add(1) }

// Release undoes Acquire.
func (i *Instance) Release() { i.refs.Add(-1) }

const (
	// fdReserved is the first descriptor handed out: 0, 1 and 2 are
	// never used, so descriptors never collide with a caller's
	// stdin/stdout/stderr assumptions. fdSentinel is never handed out.
	fdReserved = 3
	fdSentinel = ^uint64(0)
)
