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

package blockcache

import (
	"container/list"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/falconfs/falcon/internal/efs"
	"github.com/falconfs/falcon/internal/logger"
)

// Config carries the parameters needed to bring up a Manager (§4.2).
type Config struct {
	Root         string
	DirNum       uint32
	CapacityByte int64
	FreeRatio    float64 // evictor wakes the foreground path below this
	BgFreeRatio  float64 // background evictor target, BgFreeRatio > FreeRatio
	EvictPeriod  time.Duration
}

// Manager is the block-cache manager (component A): an LRU index over
// whole-file bodies cached on local disk, keyed by inode.
type Manager struct {
	root   string
	dirNum uint32

	capacity int64

	mu           sync.Mutex
	lru          *list.List // back is most-recently-used
	index        map[uint64]*Entry
	usedCapacity int64
	reservedCap  int64

	freeRatio   float64
	bgFreeRatio float64
	evictPeriod time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewManager constructs a Manager and scans Root to rebuild the LRU from
// whatever cache files already exist on disk, ordered by atime so that a
// restart doesn't just forget recency.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.DirNum == 0 {
		cfg.DirNum = 1
	}
	if cfg.EvictPeriod <= 0 {
		cfg.EvictPeriod = 10 * time.Second
	}
	m := &Manager{
		root:        cfg.Root,
		dirNum:      cfg.DirNum,
		capacity:    cfg.CapacityByte,
		lru:         list.New(),
		index:       make(map[uint64]*Entry),
		freeRatio:   cfg.FreeRatio,
		bgFreeRatio: cfg.BgFreeRatio,
		evictPeriod: cfg.EvictPeriod,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}

	if err := m.scan(); err != nil {
		return nil, err
	}

	ratios, err := statfsRatios(m.root)
	if err != nil {
		return nil, err
	}
	if ratios.blocksFree < m.bgFreeRatio || ratios.inodesFree < m.bgFreeRatio {
		return nil, efs.ENOSPC("blockcache.NewManager", fmt.Errorf(
			"%s is below the background watermark at startup (blocks_free=%.4f inodes_free=%.4f bg_free_ratio=%.4f): not provisioned for operation",
			m.root, ratios.blocksFree, ratios.inodesFree, m.bgFreeRatio))
	}

	go m.evictorLoop()

	return m, nil
}

// scan walks the DirNum shard directories, indexing every "<inode>-large"
// file it finds under an Entry ordered oldest-atime-first.
func (m *Manager) scan() error {
	type found struct {
		inode uint64
		size  int64
		atime time.Time
	}
	var entries []found

	for shard := uint32(0); shard < m.dirNum; shard++ {
		dir := filepath.Join(m.root, strconv.FormatUint(uint64(shard), 10))
		dirEntries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return efs.IO("blockcache.scan", err)
		}
		for _, de := range dirEntries {
			if de.IsDir() {
				continue
			}
			inode, ok := parseEntryName(de.Name())
			if !ok {
				continue
			}
			info, err := de.Info()
			if err != nil {
				continue
			}
			entries = append(entries, found{inode: inode, size: info.Size(), atime: atimeOf(info)})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].atime.Before(entries[j].atime) })

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range entries {
		e := &Entry{InodeID: f.inode, Size: f.size, Atime: f.atime}
		e.element = m.lru.PushBack(e)
		m.index[f.inode] = e
		m.usedCapacity += f.size
	}
	return nil
}

// Find returns the entry for inode, touching its LRU position and
// optionally pinning it (refs++) against eviction.
func (m *Manager) Find(inode uint64, pin bool) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.index[inode]
	if !ok {
		return nil, false
	}
	e.Atime = time.Now()
	m.lru.MoveToBack(e.element)
	if pin {
		e.Refs++
	}
	return e, true
}

// Path exposes the on-disk location for inode for callers outside the
// package (the downloader, the read pipeline).
func (m *Manager) Path(inode uint64) string {
	return m.path(inode)
}

// Pin increments inode's refcount, keeping it ineligible for eviction.
// It is a no-op if inode isn't resident.
func (m *Manager) Pin(inode uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.index[inode]; ok {
		e.Refs++
	}
}

// Unpin decrements inode's refcount. Panics on an unbalanced call, which
// would indicate a caller releasing a pin it never took.
func (m *Manager) Unpin(inode uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.index[inode]
	if !ok {
		return
	}
	if e.Refs <= 0 {
		panic("blockcache: unbalanced Unpin")
	}
	e.Refs--
}

// InsertOrUpdate records inode as newly cached with the given size,
// replacing any prior entry. The caller has already written the bytes to
// Path(inode).
func (m *Manager) InsertOrUpdate(inode uint64, size int64, pin bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.index[inode]; ok {
		m.usedCapacity += size - e.Size
		e.Size = size
		e.Atime = time.Now()
		m.lru.MoveToBack(e.element)
		if pin {
			e.Refs++
		}
		return
	}

	e := &Entry{InodeID: inode, Size: size, Atime: time.Now()}
	if pin {
		e.Refs = 1
	}
	e.element = m.lru.PushBack(e)
	m.index[inode] = e
	m.usedCapacity += size
}

// Add adjusts an already-resident entry's size by delta, for incremental
// writes to the cached body (e.g. the write assembler appending bytes).
func (m *Manager) Add(inode uint64, delta int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.index[inode]
	if !ok {
		return
	}
	e.Size += delta
	m.usedCapacity += delta
	e.Atime = time.Now()
	m.lru.MoveToBack(e.element)
}

// Update overwrites inode's recorded size outright (e.g. after a truncate).
func (m *Manager) Update(inode uint64, newSize int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.index[inode]
	if !ok {
		return
	}
	m.usedCapacity += newSize - e.Size
	e.Size = newSize
	e.Atime = time.Now()
}

// Delete removes inode from the index and the on-disk cache. The caller
// is responsible for there being no outstanding pins; Delete does not
// check Refs, matching an explicit unlink which must win regardless.
func (m *Manager) Delete(inode uint64) {
	m.mu.Lock()
	e, ok := m.index[inode]
	if ok {
		m.lru.Remove(e.element)
		delete(m.index, inode)
		m.usedCapacity -= e.Size
	}
	m.mu.Unlock()

	if ok {
		_ = os.Remove(m.path(inode))
	}
}

// PreAlloc reserves size bytes of capacity ahead of a download, evicting
// as needed. It retries the eviction pass up to three times with a 1s
// backoff before giving up with ENOSPC (§4.2).
func (m *Manager) PreAlloc(size int64) error {
	const maxRetries = 3
	const backoff = time.Second

	for attempt := 0; attempt < maxRetries; attempt++ {
		m.mu.Lock()
		if m.capacity == 0 || m.reservedCap+m.usedCapacity+size <= m.capacity {
			m.reservedCap += size
			m.mu.Unlock()
			return nil
		}
		need := m.reservedCap + m.usedCapacity + size - m.capacity
		m.mu.Unlock()

		if m.evict(need) == 0 {
			time.Sleep(backoff)
		}
	}
	return efs.ENOSPC("blockcache.PreAlloc", nil)
}

// FreePreAlloc releases a reservation taken by PreAlloc, typically
// because the download landed and InsertOrUpdate now accounts for it
// directly, or because the download failed outright.
func (m *Manager) FreePreAlloc(size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservedCap -= size
	if m.reservedCap < 0 {
		m.reservedCap = 0
	}
}

// evictOne removes the least-recently-used unpinned entry from the LRU
// and deletes its backing file. It reports whether an entry was found.
func (m *Manager) evictOne() (*Entry, bool) {
	m.mu.Lock()
	front := m.lru.Front()
	for front != nil {
		e := front.Value.(*Entry)
		if e.Refs > 0 {
			front = front.Next()
			continue
		}
		break
	}
	if front == nil {
		m.mu.Unlock()
		return nil, false
	}
	e := front.Value.(*Entry)
	m.lru.Remove(front)
	delete(m.index, e.InodeID)
	m.usedCapacity -= e.Size
	m.mu.Unlock()

	if err := os.Remove(m.path(e.InodeID)); err != nil && !os.IsNotExist(err) {
		logger.Warnf("blockcache: evict inode %d: %v", e.InodeID, err)
	}
	return e, true
}

// evict walks the LRU from the front (least-recently-used) evicting
// unpinned entries until at least need bytes have been freed, or the
// list is exhausted. It returns the number of bytes actually freed.
func (m *Manager) evict(need int64) int64 {
	var freed int64
	for freed < need {
		e, ok := m.evictOne()
		if !ok {
			break
		}
		freed += e.Size
	}
	return freed
}

// evictCount walks the LRU from the front evicting up to n unpinned
// entries, for watermark breaches (like a low inode-free ratio) that
// are about entry count rather than bytes. It returns the number of
// entries actually evicted.
func (m *Manager) evictCount(n int) int {
	var evicted int
	for evicted < n {
		if _, ok := m.evictOne(); !ok {
			break
		}
		evicted++
	}
	return evicted
}

// evictorLoop is the background evictor: it wakes every evictPeriod and
// compares the cache root's free space against the two watermarks,
// evicting down toward bgFreeRatio whenever the filesystem is tighter
// than freeRatio (§4.2 dual watermark policy).
func (m *Manager) evictorLoop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.evictPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.maybeEvictBackground()
		}
	}
}

func (m *Manager) maybeEvictBackground() {
	ratios, err := statfsRatios(m.root)
	if err != nil {
		logger.Warnf("blockcache: statfs %s: %v", m.root, err)
		return
	}

	lowOnBlocks := ratios.blocksFree < m.freeRatio
	lowOnInodes := ratios.inodesFree < m.freeRatio
	if !lowOnBlocks && !lowOnInodes {
		return
	}

	if lowOnBlocks {
		m.mu.Lock()
		total := m.usedCapacity + m.reservedCap
		m.mu.Unlock()
		if target := int64(float64(total) * (m.bgFreeRatio - ratios.blocksFree)); target > 0 {
			if freed := m.evict(target); freed > 0 {
				logger.Infof("blockcache: background evictor freed %d bytes (block pressure)", freed)
			}
		}
	}

	if lowOnInodes {
		m.mu.Lock()
		entries := m.lru.Len()
		m.mu.Unlock()
		if n := int(float64(entries) * (m.bgFreeRatio - ratios.inodesFree)); n > 0 {
			if evicted := m.evictCount(n); evicted > 0 {
				logger.Infof("blockcache: background evictor freed %d entries (inode pressure)", evicted)
			}
		}
	}
}

// Stop halts the background evictor and waits for it to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.doneCh
}

// Stats returns the current used and reserved capacity, for the stats
// collector (component N).
func (m *Manager) Stats() (used, reserved, capacity int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usedCapacity, m.reservedCap, m.capacity
}
