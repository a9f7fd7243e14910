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

package openfd

import (
	"context"
	"sync"
	"time"

	"github.com/falconfs/falcon/internal/logger"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxOpenInstances is the default semaphore capacity (§3).
const DefaultMaxOpenInstances = 40000

// waitTimeout is how long wait_new_instance blocks before surfacing
// EMFILE to the caller (§3, §8 scenario 5).
const waitTimeout = 3 * time.Second

// Table is the process-wide open-instance table (component J). The
// fd-map and inode-map are independently locked, never held together for
// longer than the swap that keeps them consistent (§4.1 Concurrency).
type Table struct {
	sem *semaphore.Weighted

	fdMu  sync.RWMutex
	byFd  map[uint64]*Instance

	inodeMu sync.RWMutex
	byInode map[uint64]map[uint64]*Instance // inode -> set<fd>

	nextFd uint64
	nextFdMu  sync.Mutex // guards nextFd independent of fdMu's map lock
}

// NewTable builds an open-instance table with the given semaphore
// capacity (0 means DefaultMaxOpenInstances).
func NewTable(maxOpenInstances int64) *Table {
	if maxOpenInstances <= 0 {
		maxOpenInstances = DefaultMaxOpenInstances
	}
	return &Table{
		sem:     semaphore.NewWeighted(maxOpenInstances),
		byFd:    make(map[uint64]*Instance),
		byInode: make(map[uint64]map[uint64]*Instance),
		nextFd:  fdReserved,
	}
}

// ObtainFd allocates the next descriptor, skipping the reserved low
// values and the sentinel. On exhaustion of the 64-bit space (meaning:
// nextFd reached the sentinel) it resets the counter to fdReserved and
// logs the wraparound -- a condition that in
// practice would require more opens than the process could ever keep a
// table entry for.
func (t *Table) ObtainFd() uint64 {
	t.nextFdMu.Lock()
	defer t.nextFdMu.Unlock()

	if t.nextFd == fdSentinel {
		logger.Errorf("openfd: fd counter wrapped, restarting from %d", fdReserved)
		t.nextFd = fdReserved
	}
	fd := t.nextFd
	t.nextFd++
	return fd
}

// WaitNewInstance acquires a slot in the bounded instance semaphore when
// charge is true, blocking up to 3s before giving up. When charge is
// false (a caller that doesn't consume a slot, e.g. re-attaching an
// instance across a handoff) it always succeeds.
func (t *Table) WaitNewInstance(ctx context.Context, charge bool) bool {
	if !charge {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	return t.sem.Acquire(ctx, 1) == nil
}

// Attach inserts instance into the fd-map and the inode reverse index. It
// is an invariant violation to attach a duplicate fd.
func (t *Table) Attach(instance *Instance) {
	t.fdMu.Lock()
	if _, exists := t.byFd[instance.Fd]; exists {
		t.fdMu.Unlock()
		panic("openfd: duplicate fd attached")
	}
	t.byFd[instance.Fd] = instance
	t.fdMu.Unlock()

	t.inodeMu.Lock()
	bucket, ok := t.byInode[instance.Inode]
	if !ok {
		bucket = make(map[uint64]*Instance)
		t.byInode[instance.Inode] = bucket
	}
	bucket[instance.Fd] = instance
	t.inodeMu.Unlock()
}

// Get returns the instance for fd, or nil if none is attached.
func (t *Table) Get(fd uint64) *Instance {
	t.fdMu.RLock()
	defer t.fdMu.RUnlock()
	return t.byFd[fd]
}

// GetByInode returns every instance currently open against inode.
func (t *Table) GetByInode(inode uint64) []*Instance {
	t.inodeMu.RLock()
	defer t.inodeMu.RUnlock()
	bucket := t.byInode[inode]
	out := make([]*Instance, 0, len(bucket))
	for _, inst := range bucket {
		out = append(out, inst)
	}
	return out
}

// Delete removes fd from both maps. If releaseCharge is true, the
// semaphore slot it held is returned to the pool.
func (t *Table) Delete(fd uint64, releaseCharge bool) {
	t.fdMu.Lock()
	instance, ok := t.byFd[fd]
	if ok {
		delete(t.byFd, fd)
	}
	t.fdMu.Unlock()

	if ok {
		t.inodeMu.Lock()
		if bucket, exists := t.byInode[instance.Inode]; exists {
			delete(bucket, fd)
			if len(bucket) == 0 {
				delete(t.byInode, instance.Inode)
			}
		}
		t.inodeMu.Unlock()
	}

	if releaseCharge {
		t.sem.Release(1)
	}
}

// Len reports the number of currently-attached instances, for stats.
func (t *Table) Len() int {
	t.fdMu.RLock()
	defer t.fdMu.RUnlock()
	return len(t.byFd)
}
